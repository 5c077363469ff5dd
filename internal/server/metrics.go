package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric name.
const namespace = "drivesearch"

// serverMetrics holds the Prometheus collectors owned by the server. Tests
// inject a fresh registry so they never touch the default one.
type serverMetrics struct {
	// httpRequestsTotal counts requests by method, route pattern and status.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds records request latency by method and route.
	httpDurationSeconds *prometheus.HistogramVec
	// ingestRunsTotal counts ingest runs by outcome: success, empty, failed.
	ingestRunsTotal *prometheus.CounterVec
	// filesIngestedTotal counts vectors stored by ingest runs.
	filesIngestedTotal prometheus.Counter
	// filesSkippedTotal counts files dropped during ingest, by stage.
	filesSkippedTotal *prometheus.CounterVec
	// searchRequestsTotal counts searches by outcome: ok, invalid, error.
	searchRequestsTotal *prometheus.CounterVec
	// authRejectionsTotal counts request gate rejections by reason.
	authRejectionsTotal *prometheus.CounterVec
	// rateLimitedTotal counts throttled requests by route pattern.
	rateLimitedTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route and status code.",
		}, []string{"method", "route", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"method", "route"}),

		ingestRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingest runs completed, by outcome.",
		}, []string{"outcome"}),

		filesIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_stored_total",
			Help:      "Files embedded and stored in the vector index.",
		}),

		filesSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_skipped_total",
			Help:      "Files dropped during ingest, by pipeline stage.",
		}, []string{"stage"}),

		searchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests, by outcome.",
		}, []string{"outcome"}),

		authRejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Requests rejected by the token gate, by reason.",
		}, []string{"reason"}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit, by route.",
		}, []string{"route"}),
	}
}
