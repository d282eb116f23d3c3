package commands

import (
	"context"
	"fmt"
	"time"

	"netglobe/internal/models"
	"netglobe/internal/sink"
	"netglobe/internal/web"

	"github.com/dustin/go-humanize"
)

func runListConnections(e *Env) {
	client := web.NewClient(e.Config.Admin.Listen, "")
	if web.RequiresAuth(e.Config.Admin.Listen) {
		client.Password = promptPassword("Admin password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	groups, err := client.DestGroups(ctx)
	if err != nil {
		fatal(
			models.Wrap(
				models.CodeAdminUnreachable,
				models.ExitExternal,
				"could not reach a running netglobe",
				err,
			).WithHint("start it with `netglobe run`, or check --admin-listen"),
		)
	}

	if len(groups) == 0 {
		fmt.Println("no recent connections")
		return
	}

	for _, g := range groups {
		place := ""
		if len(g.Events) > 0 {
			place = sink.Place(g.Events[0].Location)
		}
		fmt.Printf("DEST %s %s (%d events)\n", g.DestAddr, place, g.Count)

		for _, ev := range g.Events {
			fmt.Printf(
				"  %-20s %-14s :%-5d %s\n",
				ev.Process,
				ev.Category,
				ev.DestPort,
				humanize.Time(ev.CapturedAt),
			)
		}

		fmt.Println()
	}
}
