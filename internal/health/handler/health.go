// Package handler reports readiness over HTTP (/healthz) and the standard gRPC health service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bloggers-platform/backend/internal/server/httpapi"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency that can be pinged (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker is a policy engine that can self-check (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// PingCheck adapts a Pinger. A nil pinger yields a check that always passes.
func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Fn: func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		return p.Ping(ctx)
	}}
}

// PolicyCheck adapts a PolicyChecker. A nil checker yields a check that always passes.
func PolicyCheck(p PolicyChecker) Check {
	return Check{Name: "policy", Fn: func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		return p.HealthCheck(ctx)
	}}
}

// Checker runs every check; the service is ready only when all pass.
type Checker struct {
	checks []Check
}

// NewChecker returns a Checker over checks.
func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

type statusResponse struct {
	Status string `json:"status"`
	Failed string `json:"failed,omitempty"`
}

// Run returns the name of the first failing check, or "" when all pass.
func (c *Checker) Run(ctx context.Context) string {
	for _, check := range c.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check.Fn(checkCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("check", check.Name).Msg("health: check failed")
			return check.Name
		}
	}
	return ""
}

// ServeHTTP answers 200 when ready and 503 naming the failed check otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if failed := c.Run(r.Context()); failed != "" {
		httpapi.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Failed: failed})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Watch updates hs with the overall status every interval until ctx is done.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration) {
	c.update(ctx, hs)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.update(ctx, hs)
		}
	}
}

func (c *Checker) update(ctx context.Context, hs *health.Server) {
	status := healthpb.HealthCheckResponse_SERVING
	if c.Run(ctx) != "" {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
}
