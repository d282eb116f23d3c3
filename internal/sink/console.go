package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"netglobe/internal/models"

	"golang.org/x/term"
)

// Console prints one line per event: an aligned table row on a terminal,
// a JSON object otherwise.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	table bool
}

// NewConsole writes to w. Table output is used when w is a terminal.
func NewConsole(w io.Writer) *Console {
	table := false
	if f, ok := w.(*os.File); ok {
		table = term.IsTerminal(int(f.Fd()))
	}
	return &Console{w: w, table: table}
}

// NewConsoleFormat forces table or JSON output.
func NewConsoleFormat(w io.Writer, table bool) *Console {
	return &Console{w: w, table: table}
}

func (c *Console) Emit(ev models.EnrichedEvent) {
	var line string
	if c.table {
		line = FormatRow(ev)
	} else {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		line = string(b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

// FormatRow renders an event as a single table row.
func FormatRow(ev models.EnrichedEvent) string {
	dest := fmt.Sprintf("%s:%d", ev.DestAddr, ev.DestPort)
	if strings.Contains(ev.DestAddr, ":") {
		dest = fmt.Sprintf("[%s]:%d", ev.DestAddr, ev.DestPort)
	}
	return fmt.Sprintf("%s  %-13s %-24s -> %-28s %s",
		ev.CapturedAt.Local().Format("15:04:05"),
		ev.Category,
		truncate(ev.Process, 24),
		dest,
		Place(ev.Location),
	)
}

// Place is a short human description of a location.
func Place(loc models.Location) string {
	if !loc.OK() {
		if loc.Error != "" {
			return "unresolved (" + loc.Error + ")"
		}
		return "unresolved"
	}
	parts := make([]string, 0, 2)
	if loc.City != "" {
		parts = append(parts, loc.City)
	}
	if loc.Country != "" {
		parts = append(parts, loc.Country)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%.2f, %.2f", loc.Lat, loc.Lon)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
