package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bloggers-platform/backend/internal/autherr"
)

// Outcome labels for AuthOperations.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalidCode  = "invalid_code"
	OutcomeInvalidToken = "invalid_token"
	OutcomeDenied       = "denied"
	OutcomeConflict     = "conflict"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidInput = "invalid_input"
	OutcomeError        = "error"
)

// Session change labels for SessionChanges.
const (
	ChangeCreated = "created"
	ChangeRotated = "rotated"
	ChangeRevoked = "revoked"
)

// AuthOperations counts credential and session operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Total number of credential and session operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// SessionChanges counts device sessions created, rotated and revoked.
var SessionChanges = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_sessions_active_changes_total",
		Help: "Device session lifecycle changes",
	},
	[]string{"change"},
)

// HTTPDuration observes HTTP request latency by route pattern and status code.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "code"},
)

// RateLimited counts requests rejected with 429 by route.
var RateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter",
	},
	[]string{"route"},
)

// RegisterMetrics registers the package metrics with reg. Panics if registration fails.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthOperations)
	reg.MustRegister(SessionChanges)
	reg.MustRegister(HTTPDuration)
	reg.MustRegister(RateLimited)
}

// RecordOperation increments the operation counter.
func RecordOperation(operation, outcome string) {
	AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// OutcomeOf maps an operation result to its outcome label.
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch {
	case errors.Is(err, autherr.ErrInvalidCode):
		return OutcomeInvalidCode
	case errors.Is(err, autherr.ErrInvalidToken), errors.Is(err, autherr.ErrInvalidCredentials):
		return OutcomeInvalidToken
	case errors.Is(err, autherr.ErrForbidden):
		return OutcomeDenied
	case errors.Is(err, autherr.ErrStateConflict), errors.Is(err, autherr.ErrAlreadyConfirmed),
		errors.Is(err, autherr.ErrDuplicateCredential):
		return OutcomeConflict
	case errors.Is(err, autherr.ErrNotFound):
		return OutcomeNotFound
	}
	if _, ok := autherr.AsValidation(err); ok {
		return OutcomeInvalidInput
	}
	return OutcomeError
}

// RecordSessionChange adds n to the session change counter; n <= 0 is ignored.
func RecordSessionChange(change string, n int64) {
	if n <= 0 {
		return
	}
	SessionChanges.WithLabelValues(change).Add(float64(n))
}

// RecordRateLimited counts one rejected request.
func RecordRateLimited(route string) {
	RateLimited.WithLabelValues(route).Inc()
}

// RecordHTTPDuration observes one request.
func RecordHTTPDuration(route, code string, d time.Duration) {
	HTTPDuration.WithLabelValues(route, code).Observe(d.Seconds())
}
