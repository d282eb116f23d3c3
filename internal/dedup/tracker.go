// Package dedup decides whether a captured connection is new enough to
// report. A connection is suppressed while its exact socket pair, or its
// destination address, has been seen within the configured window.
package dedup

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Timeouts is the suppression window pair. Address is the coarser regime and
// is normally the longer of the two.
type Timeouts struct {
	Connection time.Duration `yaml:"connection" env:"CONNECTION"`
	Address    time.Duration `yaml:"address" env:"ADDRESS"`
}

// DefaultTimeouts suits both capture modes: long enough that a snapshot poll
// does not re-report, short enough that a reconnect after a pause shows up.
var DefaultTimeouts = Timeouts{
	Connection: 30 * time.Second,
	Address:    60 * time.Second,
}

type Stats struct {
	Connections int    `json:"connections"`
	Addresses   int    `json:"addresses"`
	Checked     uint64 `json:"checked"`
	New         uint64 `json:"new"`
	Swept       uint64 `json:"swept"`
	Expired     uint64 `json:"expired"`
}

// Tracker holds last-seen state per connection key and per destination.
// It is not safe for concurrent use; callers serialize access.
type Tracker struct {
	timeouts Timeouts
	clock    clock.Clock

	conns map[string]time.Time
	addrs map[string]time.Time

	checked uint64
	fresh   uint64
	swept   uint64
	expired uint64
}

func New(t Timeouts, clk clock.Clock) *Tracker {
	if t.Connection <= 0 {
		t.Connection = DefaultTimeouts.Connection
	}
	if t.Address <= 0 {
		t.Address = DefaultTimeouts.Address
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		timeouts: t,
		clock:    clk,
		conns:    make(map[string]time.Time),
		addrs:    make(map[string]time.Time),
	}
}

func (t *Tracker) Timeouts() Timeouts { return t.timeouts }

// IsNew reports whether neither key nor dest was seen within its window.
func (t *Tracker) IsNew(key, dest string) bool {
	now := t.clock.Now()
	t.checked++

	if seen, ok := t.conns[key]; ok && now.Sub(seen) <= t.timeouts.Connection {
		return false
	}
	if seen, ok := t.addrs[dest]; ok && now.Sub(seen) <= t.timeouts.Address {
		return false
	}
	t.fresh++
	return true
}

// RecordSeen refreshes both entries to now.
func (t *Tracker) RecordSeen(key, dest string) {
	now := t.clock.Now()
	t.conns[key] = now
	t.addrs[dest] = now
}

// SweepInactive drops connection entries whose keys are not in current.
// Address entries are left to expire on their own.
func (t *Tracker) SweepInactive(current map[string]struct{}) int {
	removed := 0
	for key := range t.conns {
		if _, ok := current[key]; !ok {
			delete(t.conns, key)
			removed++
		}
	}
	t.swept += uint64(removed)
	return removed
}

// ExpireStale removes entries older than their timeout from both maps.
func (t *Tracker) ExpireStale() int {
	now := t.clock.Now()
	removed := 0
	for key, seen := range t.conns {
		if now.Sub(seen) > t.timeouts.Connection {
			delete(t.conns, key)
			removed++
		}
	}
	for addr, seen := range t.addrs {
		if now.Sub(seen) > t.timeouts.Address {
			delete(t.addrs, addr)
			removed++
		}
	}
	t.expired += uint64(removed)
	return removed
}

// Known reports whether dest is in the seen-address set.
func (t *Tracker) Known(dest string) bool {
	_, ok := t.addrs[dest]
	return ok
}

// Reset forgets all state, keeping counters.
func (t *Tracker) Reset() {
	t.conns = make(map[string]time.Time)
	t.addrs = make(map[string]time.Time)
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Connections: len(t.conns),
		Addresses:   len(t.addrs),
		Checked:     t.checked,
		New:         t.fresh,
		Swept:       t.swept,
		Expired:     t.expired,
	}
}
