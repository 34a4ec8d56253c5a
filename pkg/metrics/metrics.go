// Package metrics defines the Prometheus metric collectors used by the
// indexer and searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueriesTotal        *prometheus.CounterVec
	QueryLatency        *prometheus.HistogramVec
	QueryCandidates     prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	DocsIndexedTotal    prometheus.Counter
	DocsSkippedTotal    prometheus.Counter
	IndexedDocuments    prometheus.Gauge
	BandBuckets         prometheus.Gauge
	DuplicatePairs      prometheus.Gauge
	BuildDuration       prometheus.Histogram
	SnapshotReloads     *prometheus.CounterVec
	ReportSinkErrors    *prometheus.CounterVec
	DocsIngestedTotal   *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neardup_queries_total",
				Help: "Near-duplicate queries by outcome (match, no_signature, no_candidates, above_threshold, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neardup_query_latency_seconds",
				Help:    "Near-duplicate query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "neardup_query_candidates",
				Help:    "Candidates verified per query.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "neardup_docs_indexed_total",
				Help: "Total documents given a signature and placed in the band tables.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "neardup_docs_skipped_total",
				Help: "Total documents skipped because their shingle set was empty.",
			},
		),
		IndexedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "neardup_indexed_documents",
				Help: "Documents in the currently loaded index.",
			},
		),
		BandBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "neardup_band_buckets",
				Help: "Occupied buckets across all band tables.",
			},
		),
		DuplicatePairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "neardup_duplicate_pairs",
				Help: "Confirmed near-duplicate pairs in the last extraction.",
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "neardup_build_duration_seconds",
				Help:    "Time to sign and band a whole corpus.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		SnapshotReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neardup_snapshot_reloads_total",
				Help: "Snapshot reloads by status.",
			},
			[]string{"status"},
		),
		ReportSinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neardup_report_sink_errors_total",
				Help: "Failed duplicate-pair writes by sink.",
			},
			[]string{"sink"},
		),
		DocsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neardup_docs_ingested_total",
				Help: "Documents written to the corpus table by status (created, exists).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryCandidates,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.IndexedDocuments,
		m.BandBuckets,
		m.DuplicatePairs,
		m.BuildDuration,
		m.SnapshotReloads,
		m.ReportSinkErrors,
		m.DocsIngestedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
