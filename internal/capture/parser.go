package capture

import (
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

const (
	protoTCP          = "TCP"
	protoUDP          = "UDP"
	stateEstablished  = "(ESTABLISHED)"
	streamCycleMarker = "======="
)

// ParseLine turns one line of capture output into a ConnectionEvent.
// It understands two grammars:
//
//	snapshot: <process>,<src>:<sport>-><dst>:<dport>
//	stream:   <process> <pid> <user> <fd> <type> ... TCP <src>:<sport>-><dst>:<dport> (ESTABLISHED)
//
// Headers, cycle markers, blank lines, non-TCP and non-established records
// return ok=false. ParseLine never panics on malformed input.
func ParseLine(line string, capturedAt time.Time) (ConnectionEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" || isCycleMarker(line) || strings.HasPrefix(line, "COMMAND ") {
		return ConnectionEvent{}, false
	}

	fields := strings.Fields(line)
	if idx := protocolIndex(fields); idx > 0 && idx+1 < len(fields) {
		if _, _, _, _, ok := parsePair(fields[idx+1]); ok {
			return parseStreamFields(fields, idx, capturedAt)
		}
	}
	return parseSnapshotLine(line, capturedAt)
}

// ParseLines parses a batch, skipping anything ParseLine rejects.
func ParseLines(lines []string, capturedAt time.Time) []ConnectionEvent {
	out := make([]ConnectionEvent, 0, len(lines))
	for _, l := range lines {
		if ev, ok := ParseLine(l, capturedAt); ok {
			out = append(out, ev)
		}
	}
	return out
}

// FoldFieldOutput converts `lsof -F cn` records (p/c/f/n lines) into snapshot
// grammar lines, one per connection.
func FoldFieldOutput(lines []string) []string {
	out := make([]string, 0, len(lines)/2)
	var command string
	for _, l := range lines {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		switch l[0] {
		case 'p':
			command = ""
		case 'c':
			command = l[1:]
		case 'n':
			if command != "" && strings.Contains(l, "->") {
				out = append(out, command+","+l[1:])
			}
		}
	}
	return out
}

func isCycleMarker(line string) bool {
	return line == "m" || strings.HasPrefix(line, streamCycleMarker)
}

// protocolIndex finds the protocol column, scanning from the right so a
// process literally named "TCP" does not confuse it. Index 0 is the process
// name and never counts.
func protocolIndex(fields []string) int {
	for i := len(fields) - 1; i > 0; i-- {
		if fields[i] == protoTCP || fields[i] == protoUDP {
			return i
		}
	}
	return -1
}

func parseStreamFields(fields []string, protoIdx int, capturedAt time.Time) (ConnectionEvent, bool) {
	if fields[protoIdx] != protoTCP || protoIdx+2 >= len(fields) {
		return ConnectionEvent{}, false
	}
	if fields[protoIdx+2] != stateEstablished {
		return ConnectionEvent{}, false
	}

	src, sport, dst, dport, ok := parsePair(fields[protoIdx+1])
	if !ok {
		return ConnectionEvent{}, false
	}
	name := decodeLsofEscapes(fields[0])
	if name == "" {
		return ConnectionEvent{}, false
	}

	return ConnectionEvent{
		ProcessName:   name,
		SourceAddress: src,
		SourcePort:    sport,
		DestAddress:   dst,
		DestPort:      dport,
		CapturedAt:    capturedAt,
	}, true
}

func parseSnapshotLine(line string, capturedAt time.Time) (ConnectionEvent, bool) {
	for i := strings.LastIndex(line, ","); i > 0; i = strings.LastIndex(line[:i], ",") {
		src, sport, dst, dport, ok := parsePair(strings.TrimSpace(line[i+1:]))
		if !ok {
			continue
		}
		name := decodeLsofEscapes(strings.TrimSpace(line[:i]))
		if name == "" {
			return ConnectionEvent{}, false
		}
		return ConnectionEvent{
			ProcessName:   name,
			SourceAddress: src,
			SourcePort:    sport,
			DestAddress:   dst,
			DestPort:      dport,
			CapturedAt:    capturedAt,
		}, true
	}
	return ConnectionEvent{}, false
}

// parsePair parses "src:port->dst:port"; IPv6 hosts must be bracketed.
func parsePair(s string) (src string, sport int, dst string, dport int, ok bool) {
	left, right, found := strings.Cut(s, "->")
	if !found || strings.Contains(right, "->") {
		return "", 0, "", 0, false
	}
	if src, sport, ok = parseEndpoint(left); !ok {
		return "", 0, "", 0, false
	}
	if dst, dport, ok = parseEndpoint(right); !ok {
		return "", 0, "", 0, false
	}
	return src, sport, dst, dport, true
}

func parseEndpoint(s string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "", 0, false
	}
	return addr.WithZone("").Unmap().String(), port, true
}

// decodeLsofEscapes undoes lsof's \xNN escaping of non-printable and space
// characters in command names.
func decodeLsofEscapes(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
