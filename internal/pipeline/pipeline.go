// Package pipeline wires capture, filtering, deduplication, classification
// and geolocation into a stream of enriched events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"netglobe/internal/capture"
	"netglobe/internal/category"
	"netglobe/internal/dedup"
	"netglobe/internal/logging"
	"netglobe/internal/metrics"
	"netglobe/internal/models"
	"netglobe/internal/netscope"
	"netglobe/internal/sink"
	"netglobe/internal/system"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Resolver is the geolocation dependency.
type Resolver interface {
	Resolve(ctx context.Context, address string) (models.Location, error)
	EvictExpired() int
}

// IgnoreSource supplies the destination ignore list and its version.
type IgnoreSource interface {
	Version() (int64, error)
	Load() (*system.IgnoreSet, error)
}

type Config struct {
	Capture            capture.Config
	Timeouts           dedup.Timeouts
	CleanupInterval    time.Duration
	IgnorePollInterval time.Duration

	Classifier *category.Classifier
	Resolver   Resolver
	Sink       sink.Sink
	Ignore     IgnoreSource
	Metrics    *metrics.Metrics

	Logger *logrus.Logger
	Clock  clock.Clock
}

type Stats struct {
	State      capture.State `json:"state"`
	Mode       capture.Mode  `json:"mode"`
	Batches    uint64        `json:"batches"`
	Lines      uint64        `json:"lines"`
	Parsed     uint64        `json:"parsed"`
	Private    uint64        `json:"private"`
	Ignored    uint64        `json:"ignored"`
	Duplicates uint64        `json:"duplicates"`
	Emitted    uint64        `json:"emitted"`
	IgnoreSet  int           `json:"ignore_rules"`
	Tracker    dedup.Stats   `json:"tracker"`
}

// Pipeline is the orchestrator. It implements capture.Observer.
type Pipeline struct {
	cfg     Config
	log     *logrus.Logger
	clock   clock.Clock
	source  *capture.Source
	metrics *metrics.Metrics

	// guards tracker
	mu      sync.Mutex
	tracker *dedup.Tracker

	ignMu      sync.RWMutex
	ignore     *system.IgnoreSet
	ignVersion int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	fatal  chan error

	batches, lines, parsed  atomic.Uint64
	private, ignored, dupes atomic.Uint64
	emitted                 atomic.Uint64
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = category.New(nil)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	if cfg.IgnorePollInterval <= 0 {
		cfg.IgnorePollInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Capture.Logger == nil {
		cfg.Capture.Logger = cfg.Logger
	}
	if cfg.Capture.Clock == nil {
		cfg.Capture.Clock = cfg.Clock
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:     cfg,
		log:     cfg.Logger,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		tracker: dedup.New(cfg.Timeouts, cfg.Clock),
		ctx:     ctx,
		cancel:  cancel,
		fatal:   make(chan error, 1),
	}
	p.source = capture.New(cfg.Capture, p)
	return p, nil
}

// Run captures until ctx is cancelled or capture fails for good. In-flight
// enrichments are abandoned on return.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.ReloadIgnoreList(); err != nil {
		p.log.WithError(err).Warn("ignore list load failed")
	}

	if err := p.source.Start(ctx); err != nil {
		return err
	}
	defer p.shutdown()

	cleanup := p.clock.Ticker(p.cfg.CleanupInterval)
	defer cleanup.Stop()

	var ignoreC <-chan time.Time
	if p.cfg.Ignore != nil {
		t := p.clock.Ticker(p.cfg.IgnorePollInterval)
		defer t.Stop()
		ignoreC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-p.fatal:
			return fmt.Errorf("capture: %w", err)
		case <-cleanup.C:
			p.Cleanup()
		case <-ignoreC:
			p.pollIgnoreList()
		}
	}
}

func (p *Pipeline) shutdown() {
	p.source.Stop()
	p.cancel()
	p.wg.Wait()
}

// Wait blocks until in-flight enrichments finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) CaptureStarted(mode capture.Mode) {
	p.log.WithField("mode", string(mode)).Info("capture started")
}

func (p *Pipeline) CaptureBatch(b capture.Batch) {
	p.HandleBatch(b)
}

func (p *Pipeline) CaptureFailed(err error) {
	p.metrics.ObserveCaptureFailure()
	select {
	case p.fatal <- err:
	default:
	}
}

// HandleBatch parses and filters one batch, records sightings, and starts
// enrichment for connections that are new.
func (p *Pipeline) HandleBatch(b capture.Batch) {
	p.batches.Add(1)
	p.lines.Add(uint64(len(b.Lines)))
	p.metrics.ObserveBatch(string(b.Mode), len(b.Lines))

	events := capture.ParseLines(b.Lines, b.At)
	p.parsed.Add(uint64(len(events)))

	current := make(map[string]struct{}, len(events))
	var fresh []capture.ConnectionEvent

	p.mu.Lock()
	for _, ev := range events {
		if netscope.IsPrivateOrReserved(ev.DestAddress) {
			p.private.Add(1)
			p.metrics.ObserveOutcome(metrics.OutcomePrivate)
			continue
		}
		if p.ignoredDest(ev.DestAddress) {
			p.ignored.Add(1)
			p.metrics.ObserveOutcome(metrics.OutcomeIgnored)
			continue
		}

		key := ev.DedupKey()
		current[key] = struct{}{}
		if p.tracker.IsNew(key, ev.DestAddress) {
			fresh = append(fresh, ev)
			p.metrics.ObserveOutcome(metrics.OutcomeNew)
		} else {
			p.dupes.Add(1)
			p.metrics.ObserveOutcome(metrics.OutcomeDuplicate)
		}
		p.tracker.RecordSeen(key, ev.DestAddress)
	}
	if b.Complete {
		p.tracker.SweepInactive(current)
	}
	p.mu.Unlock()

	for _, ev := range fresh {
		p.wg.Add(1)
		go p.enrich(ev, b.Mode)
	}
}

func (p *Pipeline) enrich(ev capture.ConnectionEvent, mode capture.Mode) {
	defer p.wg.Done()

	cat := p.cfg.Classifier.Classify(ev.ProcessName)

	start := p.clock.Now()
	loc, err := p.cfg.Resolver.Resolve(p.ctx, ev.DestAddress)
	if err != nil {
		if p.ctx.Err() != nil {
			return
		}
		loc = models.Location{Status: models.StatusFail, Query: ev.DestAddress, Error: err.Error()}
	}
	resolvedAt := p.clock.Now()
	p.metrics.ObserveResolve(loc.Status, resolvedAt.Sub(start))

	out := models.EnrichedEvent{
		Process:     ev.ProcessName,
		Category:    cat,
		SourceAddr:  ev.SourceAddress,
		SourcePort:  ev.SourcePort,
		DestAddr:    ev.DestAddress,
		DestPort:    ev.DestPort,
		Location:    loc,
		CapturedAt:  ev.CapturedAt,
		ResolvedAt:  resolvedAt,
		CaptureMode: string(mode),
	}

	p.cfg.Sink.Emit(out)
	p.emitted.Add(1)
	p.metrics.ObserveEmit(cat)
	logging.LogEnriched(p.log, out)
}

// Cleanup expires stale dedup state and stale geo cache entries.
func (p *Pipeline) Cleanup() {
	p.mu.Lock()
	expired := p.tracker.ExpireStale()
	p.mu.Unlock()
	evicted := p.cfg.Resolver.EvictExpired()

	if expired > 0 || evicted > 0 {
		p.log.WithFields(logrus.Fields{
			"dedup_expired": expired,
			"geo_evicted":   evicted,
		}).Debug("cleanup")
	}
}

func (p *Pipeline) ignoredDest(addr string) bool {
	p.ignMu.RLock()
	set := p.ignore
	p.ignMu.RUnlock()
	_, hit := set.Match(addr)
	return hit
}

// ReloadIgnoreList loads the ignore list unconditionally.
func (p *Pipeline) ReloadIgnoreList() error {
	if p.cfg.Ignore == nil {
		return nil
	}
	v, err := p.cfg.Ignore.Version()
	if err != nil {
		return err
	}
	return p.loadIgnore(v)
}

func (p *Pipeline) pollIgnoreList() {
	v, err := p.cfg.Ignore.Version()
	if err != nil {
		p.log.WithError(err).Warn("ignore list version check failed")
		return
	}

	p.ignMu.RLock()
	cur := p.ignVersion
	p.ignMu.RUnlock()

	if v == cur {
		return
	}
	if err := p.loadIgnore(v); err != nil {
		p.log.WithError(err).Warn("ignore list reload failed")
	}
}

func (p *Pipeline) loadIgnore(version int64) error {
	set, err := p.cfg.Ignore.Load()
	if err != nil {
		return err
	}

	p.ignMu.Lock()
	p.ignore = set
	p.ignVersion = version
	p.ignMu.Unlock()

	p.log.WithFields(logrus.Fields{
		"version": version,
		"rules":   set.Len(),
	}).Info("ignore list reloaded")
	return nil
}

// Stats snapshots counters and tracker state.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	ts := p.tracker.Stats()
	p.mu.Unlock()

	p.ignMu.RLock()
	rules := p.ignore.Len()
	p.ignMu.RUnlock()

	return Stats{
		State:      p.source.State(),
		Mode:       p.source.Mode(),
		Batches:    p.batches.Load(),
		Lines:      p.lines.Load(),
		Parsed:     p.parsed.Load(),
		Private:    p.private.Load(),
		Ignored:    p.ignored.Load(),
		Duplicates: p.dupes.Load(),
		Emitted:    p.emitted.Load(),
		IgnoreSet:  rules,
		Tracker:    ts,
	}
}

// TrackerStats is a convenience for metrics collectors.
func (p *Pipeline) TrackerStats() dedup.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.Stats()
}
