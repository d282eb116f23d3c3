package capture

import (
	"strconv"
	"strings"
	"time"
)

// ConnectionEvent is one established outbound socket as reported by a capture tool.
type ConnectionEvent struct {
	ProcessName   string
	SourceAddress string
	SourcePort    int
	DestAddress   string
	DestPort      int
	CapturedAt    time.Time
}

// DedupKey identifies this exact process + socket pair.
func (e ConnectionEvent) DedupKey() string {
	var b strings.Builder
	b.Grow(len(e.ProcessName) + len(e.SourceAddress) + len(e.DestAddress) + 16)
	b.WriteString(e.ProcessName)
	b.WriteByte('|')
	b.WriteString(e.SourceAddress)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(e.SourcePort))
	b.WriteByte('|')
	b.WriteString(e.DestAddress)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(e.DestPort))
	return b.String()
}
