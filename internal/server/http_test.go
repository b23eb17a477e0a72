package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloggers-platform/backend/internal/server/middleware"
	"bloggers-platform/backend/internal/telemetry"
)

type ipRoutes struct{}

func (ipRoutes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.ClientIP(r.Context())))
	})
}

func TestNewHTTPHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	telemetry.RegisterMetrics(reg)
	trusted, err := middleware.ParseTrustedProxies([]string{"192.0.2.0/24"})
	require.NoError(t, err)
	h := NewHTTPHandler(HTTPDeps{
		Routes:         []Routes{ipRoutes{}, nil},
		Health:         http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		Gatherer:       reg,
		TrustedProxies: trusted,
	})

	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.Header.Set("X-Forwarded-For", "7.7.7.7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7.7.7.7", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_request_duration_seconds"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/whoami", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNewHTTPHandler_IgnoresForwardedFromUntrustedPeer(t *testing.T) {
	h := NewHTTPHandler(HTTPDeps{Routes: []Routes{ipRoutes{}}})

	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.RemoteAddr = "203.0.113.9:4321"
	r.Header.Set("X-Forwarded-For", "7.7.7.7")
	r.Header.Set("X-Real-IP", "8.8.8.8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "203.0.113.9", w.Body.String())
}
