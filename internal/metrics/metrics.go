// Package metrics provides Prometheus metrics for the portfolio tracker.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokefolio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pokefolio_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Price Tracker Metrics
	TrackerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokefolio_tracker_cycles_total",
			Help: "Completed price update cycles by result",
		},
		[]string{"result"}, // "success", "failed"
	)

	TrackerAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokefolio_tracker_attempts_total",
			Help: "Total number of attempts across all cycles",
		},
	)

	TrackerTriggersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokefolio_tracker_triggers_dropped_total",
			Help: "Triggers dropped because a cycle was already running",
		},
		[]string{"trigger"}, // "schedule", "manual"
	)

	TrackerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokefolio_tracker_running",
			Help: "1 while a price update cycle is running",
		},
	)

	TrackerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pokefolio_tracker_cycle_duration_seconds",
			Help:    "Wall time of a full cycle including retry waits",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1200, 1800},
		},
	)

	CardFetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokefolio_card_fetch_failures_total",
			Help: "Per-card fetch or history write failures during attempts",
		},
	)

	CardPricesRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokefolio_card_prices_recorded_total",
			Help: "Card price history rows written",
		},
	)

	ValuationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokefolio_valuation_failures_total",
			Help: "Per-user valuation failures (logged, never retried)",
		},
	)

	PortfoliosValued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokefolio_portfolios_valued",
			Help: "Number of portfolios valued in the last successful cycle",
		},
	)

	TrackedCards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokefolio_tracked_cards",
			Help: "Distinct cards referenced by holdings at the start of the last attempt",
		},
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokefolio_tracker_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cycle",
		},
	)

	// Upstream API Metrics
	UpstreamRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokefolio_upstream_requests_total",
			Help: "Total number of Pokemon TCG API requests made",
		},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokefolio_upstream_errors_total",
			Help: "Pokemon TCG API errors by type",
		},
		[]string{"type"}, // "network", "status", "decode"
	)
)

// GinMiddleware records request counts and latency. The route template is
// used as the path label to keep cardinality bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
