// Package metrics exposes Prometheus collectors for the scraper and its API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Unit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Recovery modes.
const (
	RecoveryReload   = "reload"
	RecoveryNavigate = "navigate"
	RecoveryFailed   = "failed"
)

var (
	unitsTotal                 *prometheus.CounterVec
	tableFailuresTotal         *prometheus.CounterVec
	staleRetriesTotal          prometheus.Counter
	recoveriesTotal            *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	lastRunUnits               prometheus.Gauge
	throttledTotal             *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpsjus_units_total",
				Help: "Units processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		tableFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpsjus_table_failures_total",
				Help: "Tables that could not be located or parsed, labeled by table.",
			},
			[]string{"table"},
		)

		staleRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gpsjus_stale_retries_total",
				Help: "Reads restarted because the element was replaced mid-read.",
			},
		)

		recoveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpsjus_recoveries_total",
				Help: "Page recoveries after a unit failure, labeled by the step that succeeded.",
			},
			[]string{"mode"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gpsjus_run_duration_seconds",
				Help:    "Wall time of complete scrape runs.",
				Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
			},
		)

		lastRunUnits = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gpsjus_last_run_units",
				Help: "Records produced by the most recent run.",
			},
		)

		throttledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpsjus_http_throttled_total",
				Help: "Requests rejected by a rate limiter, labeled by route.",
			},
			[]string{"route"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit counts a processed unit.
func ObserveUnit(outcome string) {
	Init()
	unitsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTableFailure counts a table that yielded no data.
func ObserveTableFailure(table string) {
	Init()
	tableFailuresTotal.WithLabelValues(table).Inc()
}

// ObserveStaleRetry counts a restarted read.
func ObserveStaleRetry() {
	Init()
	staleRetriesTotal.Inc()
}

// ObserveRecovery counts a recovery attempt outcome.
func ObserveRecovery(mode string) {
	Init()
	recoveriesTotal.WithLabelValues(mode).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(duration time.Duration, units int) {
	Init()
	runDurationSeconds.Observe(duration.Seconds())
	lastRunUnits.Set(float64(units))
}

// ObserveThrottled counts a request rejected with 429.
func ObserveThrottled(route string) {
	Init()
	throttledTotal.WithLabelValues(route).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
