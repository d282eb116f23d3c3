package commands

import (
	"fmt"

	"netglobe/internal/models"
	"netglobe/internal/sink"

	"github.com/dustin/go-humanize"
)

// cache-list
func runCacheList(e *Env) {
	r := e.MustResolver()
	entries := r.Entries()
	if len(entries) == 0 {
		fmt.Println("geo cache is empty")
		return
	}

	for _, ce := range entries {
		fmt.Printf("%-40s %-8s %-40s %s\n",
			ce.Address,
			ce.Status,
			sink.Place(ce.Location),
			humanize.Time(ce.ResolvedAt()),
		)
	}
	fmt.Printf("\n%s entries (%s)\n", humanize.Comma(int64(len(entries))), e.Config.Geo.CacheBackend)
}

// cache-evict
func runCacheEvict(e *Env) {
	stored := 0
	if s, err := e.OpenGeoStore(); err == nil && s != nil {
		if m, err := s.Load(); err == nil {
			stored = len(m)
		}
		_ = s.Close()
	}

	// the resolver drops expired entries while loading; Flush persists that
	r := e.MustResolver()
	r.EvictExpired()
	kept := r.Stats().CacheSize
	if err := r.Flush(); err != nil {
		fatal(models.Wrap(models.CodeCacheOpen, models.ExitIO, "failed to write geo cache", err))
	}
	fmt.Printf("evicted %d expired entries, %d remain\n", max(stored-kept, 0), kept)
}

// cache-clear
func runCacheClear(e *Env) {
	r := e.MustResolver()
	before := r.Stats().CacheSize
	if err := r.Clear(); err != nil {
		fatal(models.Wrap(models.CodeCacheOpen, models.ExitIO, "failed to clear geo cache", err))
	}
	fmt.Printf("geo cache cleared (%d entries removed)\n", before)
}
