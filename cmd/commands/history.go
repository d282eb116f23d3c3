package commands

import (
	"database/sql"
	"fmt"
	"strconv"

	"netglobe/internal/models"
	"netglobe/internal/sink"
	"netglobe/internal/system"

	"github.com/dustin/go-humanize"
)

// history [n]
func runHistory(db *sql.DB, args []string) {
	limit := 50
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			usage("history [count]")
		}
		limit = n
	}

	events, err := system.RecentHistory(db, limit)
	if err != nil {
		fatal(models.Wrap(models.CodeDBOpen, models.ExitIO, "failed to read history", err))
	}
	if len(events) == 0 {
		fmt.Println("no history recorded")
		return
	}

	for _, ev := range events {
		fmt.Printf("%-14s %s  (%s)\n", humanize.Time(ev.CapturedAt), sink.FormatRow(ev), ev.CaptureMode)
	}
}
