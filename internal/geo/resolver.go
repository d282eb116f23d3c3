// Package geo resolves destination addresses to locations through a
// rate-limited HTTP lookup service, with an in-memory cache backed by a
// persistent store.
package geo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"netglobe/internal/logging"
	"netglobe/internal/models"
	"netglobe/internal/ratelimit"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidAddress = errors.New("address is empty")
	ErrClosed         = errors.New("resolver closed")
)

const (
	DefaultCacheDuration        = 24 * time.Hour
	DefaultFailureCacheDuration = 10 * time.Minute
	DefaultMaxConcurrent        = 3
	DefaultRateLimitDelay       = 1400 * time.Millisecond
	DefaultMaxRetries           = 3
	DefaultRetryBaseDelay       = time.Second

	persistQueueSize = 256
)

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	CacheDuration        time.Duration
	CacheFailures        bool
	FailureCacheDuration time.Duration

	// Zero values for RateLimitDelay, MaxRetries and RetryBaseDelay are
	// honored as-is.
	MaxConcurrent  int
	RateLimitDelay time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration

	Store  Store
	Logger *logrus.Logger
	Clock  clock.Clock
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:              DefaultBaseURL,
		Timeout:              DefaultTimeout,
		CacheDuration:        DefaultCacheDuration,
		FailureCacheDuration: DefaultFailureCacheDuration,
		MaxConcurrent:        DefaultMaxConcurrent,
		RateLimitDelay:       DefaultRateLimitDelay,
		MaxRetries:           DefaultMaxRetries,
		RetryBaseDelay:       DefaultRetryBaseDelay,
	}
}

type Stats struct {
	CacheSize     int    `json:"cache_size"`
	Queued        int    `json:"queued"`
	InFlight      int    `json:"in_flight"`
	Pending       int    `json:"pending"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Coalesced     uint64 `json:"coalesced"`
	Requests      uint64 `json:"requests"`
	Retries       uint64 `json:"retries"`
	Successes     uint64 `json:"successes"`
	Failures      uint64 `json:"failures"`
	PersistErrors uint64 `json:"persist_errors"`
}

// lookup is one address moving through queued, in-flight and retry-wait.
type lookup struct {
	address    string
	retries    int
	enqueuedAt time.Time
	waiters    []chan models.Location
	waiting    bool
}

type persistOp struct {
	address string
	entry   Entry
	replace map[string]Entry
	done    chan error
}

// Resolver owns the cache, the FIFO lookup queue and its dispatch loop.
type Resolver struct {
	cfg    Config
	client *Client
	cache  *cache
	store  Store
	log    *logrus.Logger
	clock  clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	queue        []*lookup
	pending      map[string]*lookup
	retryTimers  map[*lookup]*clock.Timer
	inFlight     int
	draining     bool
	lastDispatch time.Time
	closed       bool
	stats        Stats

	pmu           sync.RWMutex
	persistClosed bool
	persistCh     chan persistOp
	persistDone   chan struct{}
	persistErrs   *ratelimit.Counter
}

// New builds a resolver and loads the persisted cache. A store that fails to
// load is logged and treated as empty.
func New(cfg Config) *Resolver {
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = DefaultCacheDuration
	}
	if cfg.FailureCacheDuration <= 0 {
		cfg.FailureCacheDuration = DefaultFailureCacheDuration
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Store == nil {
		cfg.Store = nopStore{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent("")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		cfg:         cfg,
		client:      NewClient(cfg.BaseURL, cfg.UserAgent, cfg.Timeout),
		cache:       newCache(cfg.CacheDuration, cfg.FailureCacheDuration),
		store:       cfg.Store,
		log:         cfg.Logger,
		clock:       cfg.Clock,
		ctx:         ctx,
		cancel:      cancel,
		pending:     make(map[string]*lookup),
		retryTimers: make(map[*lookup]*clock.Timer),
		persistCh:   make(chan persistOp, persistQueueSize),
		persistDone: make(chan struct{}),
		persistErrs: ratelimit.NewCounter(time.Minute, cfg.Clock),
	}

	entries, err := r.store.Load()
	if err != nil {
		r.log.WithError(err).Warn("geo cache unreadable, starting empty")
	} else {
		kept := r.cache.load(entries, r.clock.Now())
		r.log.WithFields(logrus.Fields{
			"loaded":  kept,
			"dropped": len(entries) - kept,
		}).Debug("geo cache loaded")
	}

	go r.persistLoop()
	return r
}

// Resolve returns the location of address. The only errors are an empty
// address, caller cancellation, and use after Close; lookup failures come
// back as a Location with Status "fail".
func (r *Resolver) Resolve(ctx context.Context, address string) (models.Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Location{}, ErrInvalidAddress
	}

	if e, ok := r.cache.get(address, r.clock.Now()); ok {
		r.mu.Lock()
		r.stats.Hits++
		r.mu.Unlock()
		return e.Location, nil
	}

	ch := make(chan models.Location, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return models.Location{}, ErrClosed
	}
	// A lookup may have completed since the unlocked check.
	if e, ok := r.cache.get(address, r.clock.Now()); ok {
		r.stats.Hits++
		r.mu.Unlock()
		return e.Location, nil
	}
	r.stats.Misses++
	if l, ok := r.pending[address]; ok {
		l.waiters = append(l.waiters, ch)
		r.stats.Coalesced++
	} else {
		l := &lookup{address: address, enqueuedAt: r.clock.Now(), waiters: []chan models.Location{ch}}
		r.pending[address] = l
		r.queue = append(r.queue, l)
		r.kickLocked()
	}
	r.mu.Unlock()

	select {
	case loc := <-ch:
		return loc, nil
	case <-ctx.Done():
		return models.Location{}, ctx.Err()
	}
}

// ResolveMany resolves each address concurrently. Results are in input order;
// an address that cannot be resolved gets a failure record.
func (r *Resolver) ResolveMany(ctx context.Context, addresses []string) []models.Location {
	out := make([]models.Location, len(addresses))
	var wg sync.WaitGroup
	for i, addr := range addresses {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			loc, err := r.Resolve(ctx, addr)
			if err != nil {
				loc = failure(addr, err)
			}
			out[i] = loc
		}(i, addr)
	}
	wg.Wait()
	return out
}

// Cached returns the live cache entry for address without triggering a lookup.
func (r *Resolver) Cached(address string) (Entry, bool) {
	return r.cache.get(strings.TrimSpace(address), r.clock.Now())
}

// kickLocked starts the dispatch loop if work is waiting and none is running.
func (r *Resolver) kickLocked() {
	if r.draining || r.closed || len(r.queue) == 0 || r.inFlight >= r.cfg.MaxConcurrent {
		return
	}
	r.draining = true
	go r.drain()
}

// drain dispatches queued lookups in FIFO order, spacing dispatches by
// RateLimitDelay and holding at most MaxConcurrent in flight.
func (r *Resolver) drain() {
	for {
		r.mu.Lock()
		if r.closed || len(r.queue) == 0 || r.inFlight >= r.cfg.MaxConcurrent {
			r.draining = false
			r.mu.Unlock()
			return
		}

		now := r.clock.Now()
		if !r.lastDispatch.IsZero() {
			if wait := r.cfg.RateLimitDelay - now.Sub(r.lastDispatch); wait > 0 {
				r.mu.Unlock()
				if !r.sleep(wait) {
					r.mu.Lock()
					r.draining = false
					r.mu.Unlock()
					return
				}
				continue
			}
		}

		l := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.inFlight++
		r.lastDispatch = now
		r.stats.Requests++
		r.mu.Unlock()

		go r.attempt(l)
	}
}

func (r *Resolver) sleep(d time.Duration) bool {
	t := r.clock.Timer(d)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Resolver) attempt(l *lookup) {
	loc, err := r.client.Lookup(r.ctx, l.address)
	if err == nil {
		if loc.Query == "" {
			loc.Query = l.address
		}
		if !loc.OK() {
			// A well-formed upstream failure is final.
			loc.Lat, loc.Lon = 0, 0
		}
		r.finish(l, loc, true, true)
		return
	}

	if r.ctx.Err() != nil {
		r.finish(l, failure(l.address, ErrClosed), true, false)
		return
	}

	if l.retries >= r.cfg.MaxRetries {
		r.log.WithFields(logrus.Fields{
			"address":  l.address,
			"attempts": l.retries + 1,
		}).WithError(err).Warn("geo lookup failed")
		r.finish(l, failure(l.address, err), true, true)
		return
	}

	l.retries++
	delay := r.cfg.RetryBaseDelay << (l.retries - 1)
	r.log.WithFields(logrus.Fields{
		"address": l.address,
		"retry":   l.retries,
		"delay":   delay.String(),
		"error":   err.Error(),
	}).Warn("geo lookup failed, retrying")

	r.mu.Lock()
	r.inFlight--
	r.stats.Retries++
	l.waiting = true
	r.kickLocked()
	r.mu.Unlock()

	// The timer is registered after creation because a mock clock may fire
	// it synchronously.
	t := r.clock.AfterFunc(delay, func() { r.requeue(l) })

	r.mu.Lock()
	if l.waiting && !r.closed {
		r.retryTimers[l] = t
		r.mu.Unlock()
		return
	}
	abandoned := l.waiting && r.closed
	r.mu.Unlock()
	if abandoned && t.Stop() {
		r.finish(l, failure(l.address, ErrClosed), false, false)
	}
}

// requeue puts a lookup back at the tail of the queue after its backoff.
func (r *Resolver) requeue(l *lookup) {
	r.mu.Lock()
	l.waiting = false
	delete(r.retryTimers, l)
	if r.closed {
		r.mu.Unlock()
		r.finish(l, failure(l.address, ErrClosed), false, false)
		return
	}
	r.queue = append(r.queue, l)
	r.kickLocked()
	r.mu.Unlock()
}

// finish records the outcome and wakes every waiter on this address.
func (r *Resolver) finish(l *lookup, loc models.Location, wasInFlight, cacheable bool) {
	now := r.clock.Now()
	if cacheable && (loc.OK() || r.cfg.CacheFailures) {
		e := newEntry(loc, now)
		r.cache.set(l.address, e)
		r.persist(l.address, e)
	}

	r.mu.Lock()
	delete(r.pending, l.address)
	waiters := l.waiters
	l.waiters = nil
	if wasInFlight {
		r.inFlight--
	}
	if loc.OK() {
		r.stats.Successes++
	} else {
		r.stats.Failures++
	}
	r.kickLocked()
	r.mu.Unlock()

	for _, w := range waiters {
		w <- loc
	}
}

// failure is the terminal record returned when a lookup cannot succeed.
func failure(address string, err error) models.Location {
	msg := "lookup failed"
	if err != nil {
		msg = err.Error()
	}
	return models.Location{
		Status: models.StatusFail,
		Query:  address,
		Error:  msg,
		Lat:    0,
		Lon:    0,
	}
}

func (r *Resolver) persist(address string, e Entry) {
	r.pmu.RLock()
	defer r.pmu.RUnlock()
	if r.persistClosed {
		return
	}
	select {
	case r.persistCh <- persistOp{address: address, entry: e}:
	default:
		if n, ok := r.persistErrs.Inc(); ok {
			r.log.WithField("total", n).Warn("geo cache persist queue full, dropping write")
		}
	}
}

func (r *Resolver) persistLoop() {
	defer close(r.persistDone)
	for op := range r.persistCh {
		var err error
		if op.replace != nil {
			err = r.store.Replace(op.replace)
		} else {
			err = r.store.Put(op.address, op.entry)
		}
		if op.done != nil {
			op.done <- err
			continue
		}
		if err != nil {
			r.mu.Lock()
			r.stats.PersistErrors++
			r.mu.Unlock()
			if n, ok := r.persistErrs.Inc(); ok {
				r.log.WithError(err).WithField("total", n).Warn("geo cache persist failed")
			}
		}
	}
}

// replace writes a full snapshot through the persist goroutine so it is
// ordered after any queued single-entry writes.
func (r *Resolver) replace(entries map[string]Entry) error {
	r.pmu.RLock()
	if r.persistClosed {
		r.pmu.RUnlock()
		return r.store.Replace(entries)
	}
	done := make(chan error, 1)
	r.persistCh <- persistOp{replace: entries, done: done}
	r.pmu.RUnlock()
	return <-done
}

// Flush writes the whole live cache to the store.
func (r *Resolver) Flush() error {
	return r.replace(r.cache.snapshot())
}

// Clear drops every cached entry in memory and in the store.
func (r *Resolver) Clear() error {
	r.cache.clear()
	return r.replace(map[string]Entry{})
}

// EvictExpired drops entries older than their cache duration.
func (r *Resolver) EvictExpired() int {
	return r.cache.evictExpired(r.clock.Now())
}

// Entries lists the cache, newest first.
func (r *Resolver) Entries() []CachedEntry {
	return r.cache.list()
}

func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	s := r.stats
	s.Queued = len(r.queue)
	s.InFlight = r.inFlight
	s.Pending = len(r.pending)
	r.mu.Unlock()
	s.CacheSize = r.cache.len()
	return s
}

// Close aborts outstanding lookups, flushes the cache and closes the store.
// Waiters still blocked receive a failure record.
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	queued := r.queue
	r.queue = nil
	timers := r.retryTimers
	r.retryTimers = make(map[*lookup]*clock.Timer)
	r.mu.Unlock()

	r.cancel()
	for _, l := range queued {
		r.finish(l, failure(l.address, ErrClosed), false, false)
	}
	for l, t := range timers {
		if t.Stop() {
			r.finish(l, failure(l.address, ErrClosed), false, false)
		}
	}

	err := r.Flush()

	r.pmu.Lock()
	r.persistClosed = true
	close(r.persistCh)
	r.pmu.Unlock()
	<-r.persistDone

	if cerr := r.store.Close(); err == nil {
		err = cerr
	}
	return err
}
