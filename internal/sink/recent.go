package sink

import (
	"sort"
	"sync"

	"netglobe/internal/models"
)

// Recent keeps the last N events in a ring buffer for the admin endpoint.
type Recent struct {
	mu   sync.RWMutex
	buf  []models.EnrichedEvent
	next int
	full bool
}

func NewRecent(size int) *Recent {
	if size <= 0 {
		size = 500
	}
	return &Recent{buf: make([]models.EnrichedEvent, size)}
}

func (r *Recent) Emit(ev models.EnrichedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns buffered events, newest first.
func (r *Recent) Snapshot() []models.EnrichedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]models.EnrichedEvent, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// GroupByDest groups events by destination address. Each group's events
// are newest first; groups are ordered by their newest event.
func GroupByDest(events []models.EnrichedEvent) []models.DestGroup {
	byDest := make(map[string][]models.EnrichedEvent, 16)
	for _, ev := range events {
		byDest[ev.DestAddr] = append(byDest[ev.DestAddr], ev)
	}

	groups := make([]models.DestGroup, 0, len(byDest))
	for dest, list := range byDest {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CapturedAt.After(list[j].CapturedAt)
		})
		groups = append(groups, models.DestGroup{
			DestAddr: dest,
			Country:  list[0].Location.Country,
			City:     list[0].Location.City,
			Count:    len(list),
			Events:   list,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Events[0].CapturedAt, groups[j].Events[0].CapturedAt
		if a.Equal(b) {
			return groups[i].DestAddr < groups[j].DestAddr
		}
		return a.After(b)
	})
	return groups
}
