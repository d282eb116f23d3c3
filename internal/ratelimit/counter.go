// Package ratelimit throttles repetitive log lines such as persist or
// publish failures that can fire on every event.
package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Counter counts occurrences and allows a log at most once per interval.
// It is safe for concurrent use.
type Counter struct {
	interval time.Duration
	clock    clock.Clock
	lastLog  atomic.Int64
	logged   atomic.Bool
	total    atomic.Uint64
}

// NewCounter returns a Counter. A zero or negative interval always allows.
func NewCounter(interval time.Duration, clk clock.Clock) *Counter {
	if clk == nil {
		clk = clock.New()
	}
	return &Counter{interval: interval, clock: clk}
}

// Inc increments the counter and reports whether logging is allowed.
func (c *Counter) Inc() (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}
	now := c.clock.Now().UnixNano()
	last := c.lastLog.Load()
	if c.logged.Load() && now-last < c.interval.Nanoseconds() {
		return total, false
	}
	if c.lastLog.CompareAndSwap(last, now) {
		c.logged.Store(true)
		return total, true
	}
	return total, false
}

func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
