package geo

import (
	"sort"
	"strings"
	"sync"
	"time"

	"netglobe/internal/models"
)

// Entry is one cached lookup. On disk it is the location fields plus a
// unix-millisecond timestamp.
type Entry struct {
	models.Location
	Timestamp int64 `json:"timestamp"`
}

func newEntry(loc models.Location, now time.Time) Entry {
	return Entry{Location: loc, Timestamp: now.UnixMilli()}
}

func (e Entry) ResolvedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// CachedEntry is an address with its entry, for listings.
type CachedEntry struct {
	Address string `json:"address"`
	Entry
}

type cache struct {
	mu         sync.Mutex
	items      map[string]Entry
	ttl        time.Duration
	failureTTL time.Duration
}

func newCache(ttl, failureTTL time.Duration) *cache {
	return &cache{
		items:      make(map[string]Entry),
		ttl:        ttl,
		failureTTL: failureTTL,
	}
}

func (c *cache) ttlFor(e Entry) time.Duration {
	if e.Status == models.StatusFail {
		return c.failureTTL
	}
	return c.ttl
}

func (c *cache) expired(e Entry, now time.Time) bool {
	return now.Sub(e.ResolvedAt()) > c.ttlFor(e)
}

// get returns a live entry; an expired one is deleted.
func (c *cache) get(key string, now time.Time) (Entry, bool) {
	if strings.TrimSpace(key) == "" {
		return Entry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	if c.expired(e, now) {
		delete(c.items, key)
		return Entry{}, false
	}
	return e, true
}

func (c *cache) set(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = e
}

// load merges persisted entries, dropping stale ones. Returns the count kept.
func (c *cache) load(entries map[string]Entry, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := 0
	for k, e := range entries {
		if k == "" || c.expired(e, now) {
			continue
		}
		c.items[k] = e
		kept++
	}
	return kept
}

func (c *cache) evictExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.items {
		if c.expired(e, now) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]Entry)
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *cache) snapshot() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entry, len(c.items))
	for k, e := range c.items {
		out[k] = e
	}
	return out
}

// list returns entries newest first.
func (c *cache) list() []CachedEntry {
	c.mu.Lock()
	out := make([]CachedEntry, 0, len(c.items))
	for k, e := range c.items {
		out = append(out, CachedEntry{Address: k, Entry: e})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Address < out[j].Address
	})
	return out
}
