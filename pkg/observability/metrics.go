package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionguide_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visionguide_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visionguide_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Backend metrics
	backendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionguide_backend_calls_total",
			Help: "Total number of calls to speech, vision and storage backends",
		},
		[]string{"adapter", "backend", "status"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visionguide_backend_duration_seconds",
			Help:    "Backend call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"adapter", "backend"},
	)

	degradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionguide_degraded_responses_total",
			Help: "Responses served from canned phrases because an adapter had no working backend",
		},
		[]string{"adapter"},
	)

	// Session metrics
	sessionStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionguide_session_store_errors_total",
			Help: "Session storage errors absorbed at the store boundary",
		},
		[]string{"backend", "op"},
	)

	sessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visionguide_sessions_swept_total",
			Help: "Expired sessions removed by explicit sweeps",
		},
	)

	turnsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionguide_turns_recorded_total",
			Help: "Completed interactions by mode and language",
		},
		[]string{"mode", "language"},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default Prometheus registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			rateLimitedTotal,
			backendCallsTotal,
			backendDuration,
			degradedTotal,
			sessionStoreErrors,
			sessionsSwept,
			turnsRecorded,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected request.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// Backend call outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeTransient = "transient"
	OutcomeError     = "error"
)

// Outcome classifies a backend call result. Errors that implement
// Temporary() bool and report true are transient.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) && tmp.Temporary() {
		return OutcomeTransient
	}
	return OutcomeError
}

// RecordBackendCall records one call to an external backend.
func RecordBackendCall(adapter, backend string, err error, duration time.Duration) {
	backendCallsTotal.WithLabelValues(adapter, backend, Outcome(err)).Inc()
	backendDuration.WithLabelValues(adapter, backend).Observe(duration.Seconds())
}

// RecordDegraded counts a canned response served by adapter.
func RecordDegraded(adapter string) {
	degradedTotal.WithLabelValues(adapter).Inc()
}

// RecordSessionStoreError counts a storage error that was absorbed.
func RecordSessionStoreError(backend, op string) {
	sessionStoreErrors.WithLabelValues(backend, op).Inc()
}

// RecordSessionsSwept adds n to the swept sessions counter.
func RecordSessionsSwept(n int) {
	sessionsSwept.Add(float64(n))
}

// RecordTurn counts a completed interaction.
func RecordTurn(mode, language string) {
	turnsRecorded.WithLabelValues(mode, language).Inc()
}
