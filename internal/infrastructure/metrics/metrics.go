// Package metrics defines the Prometheus collectors exported by the gateway.
//
// All collectors are registered in the default Prometheus registry when the
// package is imported and exposed by Handler on GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "camgate"

// Login and verify results used as label values.
const (
	ResultAuthenticated     = "authenticated"
	ResultTwoFactorRequired = "2fa_required"
	ResultFailed            = "failed"
	ResultRateLimited       = "rate_limited"
	ResultSessionExpired    = "session_expired"
)

var (
	// httpRequestsTotal counts HTTP requests by method, route pattern and status.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// httpRequestDuration measures request latency by method and route pattern.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	loginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		},
		[]string{"result"},
	)

	verifyAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_attempts_total",
			Help:      "Two-factor verification attempts by outcome",
		},
		[]string{"result"},
	)

	lockoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_lockouts_total",
			Help:      "Number of times the login rate limiter locked",
		},
	)

	// activeSessions tracks cached upstream sessions.
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of cached upstream sessions",
		},
	)

	upstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Upstream operations by name and result",
		},
		[]string{"operation", "result"},
	)

	eventLogLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_log_lines_total",
			Help:      "Lines appended to the activity log",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		loginAttemptsTotal,
		verifyAttemptsTotal,
		lockoutsTotal,
		activeSessions,
		upstreamCallsTotal,
		eventLogLinesTotal,
	)
}

// ObserveHTTPRequest records one served request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncLogin counts a login attempt outcome.
func IncLogin(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// IncVerify counts a verification attempt outcome.
func IncVerify(result string) {
	verifyAttemptsTotal.WithLabelValues(result).Inc()
}

// IncLockout counts a limiter lock.
func IncLockout() {
	lockoutsTotal.Inc()
}

// SetActiveSessions sets the cached session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// ObserveUpstream counts an upstream operation.
func ObserveUpstream(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	upstreamCallsTotal.WithLabelValues(operation, result).Inc()
}

// IncEventLogLines counts an activity log append.
func IncEventLogLines() {
	eventLogLinesTotal.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
