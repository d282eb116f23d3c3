// Package metrics exposes pipeline counters and resolver state in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"netglobe/internal/dedup"
	"netglobe/internal/geo"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netglobe"

// Event outcomes counted per parsed connection.
const (
	OutcomePrivate   = "private"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeNew       = "new"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	batches      *prometheus.CounterVec
	lines        prometheus.Counter
	events       *prometheus.CounterVec
	emitted      *prometheus.CounterVec
	resolve      *prometheus.HistogramVec
	captureFails prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_batches_total",
			Help:      "Capture batches received, by capture mode.",
		}, []string{"mode"}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_lines_total",
			Help:      "Raw capture lines received.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Parsed connections by pipeline outcome.",
		}, []string{"outcome"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Enriched events handed to sinks, by category.",
		}, []string{"category"}),
		resolve: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geo_resolve_seconds",
			Help:      "Time spent waiting for a location, by result status.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2, 5, 10, 30},
		}, []string{"status"}),
		captureFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Fatal capture failures.",
		}),
	}
	m.registry.MustRegister(
		m.batches, m.lines, m.events, m.emitted, m.resolve, m.captureFails,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveBatch(mode string, lines int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(mode).Inc()
	m.lines.Add(float64(lines))
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEmit(category string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveResolve(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolve.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ObserveCaptureFailure() {
	if m == nil {
		return
	}
	m.captureFails.Inc()
}

// WatchState registers gauges read from the tracker and resolver at scrape time.
func (m *Metrics) WatchState(tracker func() dedup.Stats, resolver func() geo.Stats) {
	if m == nil {
		return
	}
	m.registry.MustRegister(newStateCollector(tracker, resolver))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type stateCollector struct {
	tracker  func() dedup.Stats
	resolver func() geo.Stats

	connections *prometheus.Desc
	addresses   *prometheus.Desc
	cacheSize   *prometheus.Desc
	queued      *prometheus.Desc
	inFlight    *prometheus.Desc
	requests    *prometheus.Desc
	retries     *prometheus.Desc
	results     *prometheus.Desc
	cacheHits   *prometheus.Desc
}

func newStateCollector(tracker func() dedup.Stats, resolver func() geo.Stats) *stateCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &stateCollector{
		tracker:     tracker,
		resolver:    resolver,
		connections: desc("tracked_connections", "Live connection keys in the dedup tracker."),
		addresses:   desc("tracked_addresses", "Live destination addresses in the dedup tracker."),
		cacheSize:   desc("geo_cache_entries", "Entries in the geo cache."),
		queued:      desc("geo_queue_length", "Lookups waiting for dispatch."),
		inFlight:    desc("geo_in_flight", "Lookups currently in flight."),
		requests:    desc("geo_requests_total", "Upstream lookup requests."),
		retries:     desc("geo_retries_total", "Upstream lookup retries."),
		results:     desc("geo_results_total", "Completed lookups by status.", "status"),
		cacheHits:   desc("geo_cache_hits_total", "Lookups served from cache."),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.connections, c.addresses, c.cacheSize, c.queued, c.inFlight,
		c.requests, c.retries, c.results, c.cacheHits,
	} {
		ch <- d
	}
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.tracker != nil {
		t := c.tracker()
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(t.Connections))
		ch <- prometheus.MustNewConstMetric(c.addresses, prometheus.GaugeValue, float64(t.Addresses))
	}
	if c.resolver != nil {
		r := c.resolver()
		ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(r.CacheSize))
		ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(r.Queued))
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(r.InFlight))
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(r.Requests))
		ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(r.Retries))
		ch <- prometheus.MustNewConstMetric(c.results, prometheus.CounterValue, float64(r.Successes), "success")
		ch <- prometheus.MustNewConstMetric(c.results, prometheus.CounterValue, float64(r.Failures), "fail")
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(r.Hits))
	}
}
