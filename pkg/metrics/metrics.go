// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	CacheWritesTotal     *prometheus.CounterVec
	CacheWriteFailures   prometheus.Counter
	CacheSweepDeleted    prometheus.Counter
	CompressionRatio     prometheus.Histogram
	FetchRequestsTotal   prometheus.Counter
	FetchSuccessTotal    prometheus.Counter
	FetchFailuresTotal   prometheus.Counter
	FetchRetriesTotal    prometheus.Counter
	FetchBlockedTotal    prometheus.Counter
	FetchQueueDepth      prometheus.Gauge
	FetchWaitSeconds     prometheus.Histogram
	FetchDurationSeconds prometheus.Histogram
	SearchQueriesTotal   *prometheus.CounterVec
	SearchResultsCount   prometheus.Histogram
	FallbackSearches     prometheus.Counter
	ArticlesIndexed      prometheus.Counter
	ScrapesTotal         *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total cache hits by tier.",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total cache misses by tier (absent or expired).",
			},
			[]string{"tier"},
		),
		CacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_writes_total",
				Help: "Total cache writes by tier.",
			},
			[]string{"tier"},
		),
		CacheWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_write_failures_total",
				Help: "Total cache writes that failed and were swallowed.",
			},
		),
		CacheSweepDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_sweep_deleted_total",
				Help: "Total expired entries removed by the sweep loop.",
			},
		),
		CompressionRatio: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cache_compression_ratio",
				Help:    "Stored-to-original payload size ratio for compressed entries.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1},
			},
		),
		FetchRequestsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_requests_total",
				Help: "Total fetch tasks accepted by the queue.",
			},
		),
		FetchSuccessTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_success_total",
				Help: "Total fetch tasks that completed successfully.",
			},
		),
		FetchFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_failures_total",
				Help: "Total fetch tasks that exhausted their retry budget.",
			},
		),
		FetchRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_retries_total",
				Help: "Total retry attempts scheduled by the queue.",
			},
		),
		FetchBlockedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_blocked_total",
				Help: "Total enqueue attempts rejected because the queue was full.",
			},
		),
		FetchQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetch_queue_depth",
				Help: "Current number of tasks waiting in the fetch queue.",
			},
		),
		FetchWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fetch_wait_seconds",
				Help:    "Time a task spends queued and rate-limit waiting before dispatch.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		FetchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fetch_duration_seconds",
				Help:    "Wall-clock duration of dispatched fetches.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (local, fallback, degraded, zero_result).",
			},
			[]string{"outcome"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		FallbackSearches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fallback_searches_total",
				Help: "Total live fallback searches triggered by thin local coverage.",
			},
		),
		ArticlesIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "articles_indexed_total",
				Help: "Total articles newly persisted into the corpus.",
			},
		),
		ScrapesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapes_total",
				Help: "Total article scrapes by result (ok, insufficient, error, cached).",
			},
			[]string{"result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Per-domain circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"domain"},
		),
	}

	prometheus.MustRegister(
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheWritesTotal,
		m.CacheWriteFailures,
		m.CacheSweepDeleted,
		m.CompressionRatio,
		m.FetchRequestsTotal,
		m.FetchSuccessTotal,
		m.FetchFailuresTotal,
		m.FetchRetriesTotal,
		m.FetchBlockedTotal,
		m.FetchQueueDepth,
		m.FetchWaitSeconds,
		m.FetchDurationSeconds,
		m.SearchQueriesTotal,
		m.SearchResultsCount,
		m.FallbackSearches,
		m.ArticlesIndexed,
		m.ScrapesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
