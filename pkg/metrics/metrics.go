// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	ConfidenceScore      prometheus.Histogram
	RouterFallbacksTotal prometheus.Counter
	RouterRelaxedTotal   prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	RebuildsTotal        *prometheus.CounterVec
	RebuildDuration      prometheus.Histogram
	IndexedPassages      *prometheus.GaugeVec
	IndexGeneration      prometheus.Gauge
	// DependencyState is the circuit breaker state per dependency:
	// 0 closed, 1 half-open, 2 open.
	DependencyState *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
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
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by classification and scope.",
			},
			[]string{"classification", "scope"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of passages returned per search.",
				Buckets: []float64{0, 1, 3, 5, 10, 25, 50},
			},
		),
		ConfidenceScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_confidence_score",
				Help:    "Confidence score reported per search.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		RouterFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "router_fallbacks_total",
				Help: "Scoped searches widened to the full corpus.",
			},
		),
		RouterRelaxedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "router_relaxed_total",
				Help: "Searches retried with the relaxed relevance threshold.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Index rebuilds by status (success, failed, rejected).",
			},
			[]string{"status"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_rebuild_duration_seconds",
				Help:    "Index rebuild duration in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		IndexedPassages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexed_passages",
				Help: "Number of indexed passages per competition.",
			},
			[]string{"competition"},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation",
				Help: "Generation number of the active index.",
			},
		),
		DependencyState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dependency_breaker_state",
				Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
			},
			[]string{"dependency"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ConfidenceScore,
		m.RouterFallbacksTotal,
		m.RouterRelaxedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RebuildsTotal,
		m.RebuildDuration,
		m.IndexedPassages,
		m.IndexGeneration,
		m.DependencyState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
