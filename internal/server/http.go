package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"bloggers-platform/backend/internal/server/middleware"
)

// Routes registers a group of handlers on the mux.
type Routes interface {
	Register(mux *http.ServeMux)
}

// HTTPDeps holds what the HTTP API serves.
type HTTPDeps struct {
	// Routes are the API route groups (auth, devices, and dev codes when enabled).
	Routes []Routes
	// Health answers GET /healthz. If nil, /healthz is not served.
	Health http.Handler
	// Gatherer backs GET /metrics. If nil, /metrics is not served.
	Gatherer prometheus.Gatherer
	// TrustedProxies may set the client IP through X-Forwarded-For or X-Real-IP. Empty trusts no one.
	TrustedProxies middleware.TrustedProxies
}

// NewHTTPHandler builds the API mux and wraps it with tracing, client IP capture and access logging.
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	mux := http.NewServeMux()
	for _, r := range deps.Routes {
		if r != nil {
			r.Register(mux)
		}
	}
	if deps.Health != nil {
		mux.Handle("GET /healthz", deps.Health)
	}
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	h = middleware.AccessLog(h, "/metrics", "/healthz")
	h = middleware.StoreClientIP(h, deps.TrustedProxies)
	return otelhttp.NewHandler(h, "http.server")
}
