package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"netglobe/internal/category"
	"netglobe/internal/models"
	"netglobe/internal/netscope"
	"netglobe/internal/sink"
)

// lookup <ip>...
func runLookup(e *Env, addrs []string, asJSON bool) {
	for _, a := range addrs {
		if strings.TrimSpace(a) == "" {
			fatal(models.NewCLIError(models.CodeLookupInput, models.ExitUsage, "empty address"))
		}
	}

	r := e.MustResolver()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	locs := r.ResolveMany(ctx, addrs)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(locs)
		return
	}

	for i, loc := range locs {
		note := ""
		if netscope.IsPrivateOrReserved(addrs[i]) {
			note = " (private/reserved)"
		}
		fmt.Printf("%-40s %s%s\n", addrs[i], sink.Place(loc), note)
		if loc.OK() && loc.ISP != "" {
			fmt.Printf("%-40s isp=%s as=%s\n", "", loc.ISP, loc.AS)
		}
	}
}

// classify <name>...
func runClassify(c *category.Classifier, names []string) {
	for _, n := range names {
		fmt.Printf("%-30s %s\n", n, c.Classify(n))
	}
}

// categories
func runListCategories(c *category.Classifier) {
	for _, r := range c.Rules() {
		fmt.Printf("%-14s %s\n", r.Category, strings.Join(r.Patterns, ", "))
	}
	fmt.Printf("%-14s (anything unmatched)\n", category.Other)
}
