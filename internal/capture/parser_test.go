package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseLineSnapshot(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ConnectionEvent
	}{
		{
			name: "plain",
			line: "firefox,192.168.1.10:52344->142.250.80.46:443",
			want: ConnectionEvent{"firefox", "192.168.1.10", 52344, "142.250.80.46", 443, at},
		},
		{
			name: "comma in name",
			line: "Helper, Renderer,10.0.0.2:5000->1.1.1.1:443",
			want: ConnectionEvent{"Helper, Renderer", "10.0.0.2", 5000, "1.1.1.1", 443, at},
		},
		{
			name: "arrow in name",
			line: "weird->name,10.0.0.2:5000->1.1.1.1:443",
			want: ConnectionEvent{"weird->name", "10.0.0.2", 5000, "1.1.1.1", 443, at},
		},
		{
			name: "protocol word in name",
			line: "My TCP Tool,10.0.0.2:5000->8.8.8.8:443",
			want: ConnectionEvent{"My TCP Tool", "10.0.0.2", 5000, "8.8.8.8", 443, at},
		},
		{
			name: "ipv6",
			line: "curl,[2001:db8::1]:50000->[2606:4700::1111]:443",
			want: ConnectionEvent{"curl", "2001:db8::1", 50000, "2606:4700::1111", 443, at},
		},
		{
			name: "escaped name",
			line: `Google\x20Chrome,10.0.0.2:5000->8.8.4.4:443`,
			want: ConnectionEvent{"Google Chrome", "10.0.0.2", 5000, "8.8.4.4", 443, at},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line, at)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLineStream(t *testing.T) {
	line := `Google\x20Chrome 1234 alice 45u IPv4 0xabc123 0t0 TCP 192.168.1.10:52344->142.250.80.46:443 (ESTABLISHED)`
	got, ok := ParseLine(line, at)
	require.True(t, ok)
	assert.Equal(t, "Google Chrome", got.ProcessName)
	assert.Equal(t, "192.168.1.10", got.SourceAddress)
	assert.Equal(t, 52344, got.SourcePort)
	assert.Equal(t, "142.250.80.46", got.DestAddress)
	assert.Equal(t, 443, got.DestPort)

	v6 := `curl 99 bob 3u IPv6 0xdef 0t0 TCP [2001:db8::1]:50000->[2606:4700::1111]:443 (ESTABLISHED)`
	got, ok = ParseLine(v6, at)
	require.True(t, ok)
	assert.Equal(t, "2606:4700::1111", got.DestAddress)
}

func TestParseLineRejects(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"=======",
		"m",
		"COMMAND     PID  USER   FD   TYPE DEVICE SIZE/OFF NODE NAME",
		"firefox 1 a 1u IPv4 0x1 0t0 UDP 10.0.0.1:5000->8.8.8.8:53",
		"firefox 1 a 1u IPv4 0x1 0t0 TCP 10.0.0.1:5000->8.8.8.8:443 (CLOSE_WAIT)",
		"firefox 1 a 1u IPv4 0x1 0t0 TCP 10.0.0.1:5000->8.8.8.8:443",
		"firefox 1 a 1u IPv4 0x1 0t0 TCP *:443 (LISTEN)",
		"firefox,10.0.0.1:5000",
		"firefox,10.0.0.1:5000->8.8.8.8:99999",
		"firefox,10.0.0.1:5000->not-an-ip:443",
		",10.0.0.1:5000->8.8.8.8:443",
		"garbage ->->-> ,,, :::",
	} {
		_, ok := ParseLine(line, at)
		assert.False(t, ok, "line %q", line)
	}
}

func TestParseLines(t *testing.T) {
	events := ParseLines([]string{
		"COMMAND PID USER",
		"a,10.0.0.1:1->8.8.8.8:443",
		"junk",
		"b,10.0.0.1:2->1.1.1.1:443",
	}, at)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ProcessName)
	assert.Equal(t, "b", events[1].ProcessName)
}

func TestFoldFieldOutput(t *testing.T) {
	lines := []string{
		"p123",
		"cfirefox",
		"f45",
		"n10.0.0.1:5000->1.2.3.4:443",
		"f46",
		"n*:80",
		"p456",
		"ccurl",
		"f3",
		"n10.0.0.1:5001->5.6.7.8:80\r",
		"p789",
		"f4",
		"n10.0.0.1:5002->9.9.9.9:443",
	}
	assert.Equal(t, []string{
		"firefox,10.0.0.1:5000->1.2.3.4:443",
		"curl,10.0.0.1:5001->5.6.7.8:80",
	}, FoldFieldOutput(lines))
}

func TestDedupKey(t *testing.T) {
	ev := ConnectionEvent{"chrome", "10.0.0.1", 5000, "8.8.8.8", 443, at}
	assert.Equal(t, "chrome|10.0.0.1|5000|8.8.8.8|443", ev.DedupKey())
}
