package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "api_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		})

	// Landing funnel metrics
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_tokens_issued_total",
			Help: "Session tokens issued, by which ad parameter gated them",
		},
		[]string{"source"},
	)
	EventsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_events_tracked_total",
			Help: "Client events recorded",
		},
		[]string{"event_type"},
	)
	Conversions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "landing_conversions_total",
			Help: "Conversion redirects issued",
		})

	// Quote scraper metrics
	QuoteLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_lookups_total",
			Help: "Quote lookups by outcome source",
		},
		[]string{"source"},
	)
	QuoteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_failures_total",
			Help: "Quote scrape failures by kind",
		},
		[]string{"kind"},
	)
	QuoteFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_fetch_duration_seconds",
			Help:    "Upstream quote page fetch duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total database health check errors",
		})
	DatabaseOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_operation_duration_seconds",
			Help:    "Database operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total database errors",
		},
		[]string{"operation"},
	)

	// Authentication metrics
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total authentication operations",
		},
		[]string{"operation", "status"},
	)
	AuthMiddlewareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_middleware_errors_total",
			Help: "Total authentication middleware errors",
		},
		[]string{"error_type"},
	)

	// Janitor metrics
	JanitorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_runs_total",
			Help: "Retention passes by status",
		},
		[]string{"status"},
	)
	JanitorPurgedSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "janitor_purged_sessions_total",
			Help: "Expired sessions removed by the retention job",
		})

	// System metrics
	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "system_live_subscribers",
			Help: "Number of connected live event websocket clients",
		})
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		APIRequestDuration, APIRequestTotal, RateLimited,
		TokensIssued, EventsTracked, Conversions,
		QuoteLookups, QuoteFailures, QuoteFetchDuration,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckErrors,
		DatabaseOperationDuration, DatabaseErrors,
		AuthOperations, AuthMiddlewareErrors,
		JanitorRuns, JanitorPurgedSessions,
		LiveSubscribers,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to the label value used across operation metrics.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
