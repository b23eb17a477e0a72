package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloggers-platform/backend/internal/ratelimit"
	"bloggers-platform/backend/internal/security"
	"bloggers-platform/backend/internal/telemetry"
)

func TestPrincipalID_NotSet(t *testing.T) {
	id, ok := PrincipalID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)

	_, ok = PrincipalID(WithPrincipal(context.Background(), ""))
	assert.False(t, ok)
}

func TestRequestIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "", "::1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "10.1.2.3:1234", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "10.1.2.3:1234", "3.3.3.3"},
		{"ipv6 loopback proxy", map[string]string{"X-Real-IP": "3.3.3.3"}, "[::1]:1234", "3.3.3.3"},
		{"untrusted peer spoofs forwarded", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "9.9.9.9:1234", "9.9.9.9"},
		{"untrusted peer spoofs real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1234", "9.9.9.9"},
		{"trusted peer without headers", nil, "10.1.2.3:1234", "10.1.2.3"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
		{"no remote", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, RequestIP(r, trusted))
		})
	}
}

func TestRequestIP_NoTrustedProxies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:1234"
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	assert.Equal(t, "10.1.2.3", RequestIP(r, nil))
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestStoreClientIP(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r.Context())
	})
	trusted, err := ParseTrustedProxies([]string{"192.0.2.0/24"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "4.4.4.4")
	StoreClientIP(next, trusted).ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "4.4.4.4", got)

	StoreClientIP(next, nil).ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "192.0.2.1", got)
}

func TestRequireBearer(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	access, err := tokens.IssueAccess("user-1", time.Now())
	require.NoError(t, err)

	var seen string
	h := RequireBearer(tokens, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + access.Token, http.StatusOK},
		{"lowercase scheme", "bearer " + access.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "user-1", seen)
			}
		})
	}
}

func TestAccessLog_PassesThroughStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := AccessLog(mux, "/metrics")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/1", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, ratelimit.ErrUnavailable
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Limit{Window: time.Minute, Max: 2})
	before := testutil.ToFloat64(telemetry.RateLimited.WithLabelValues("login"))
	var hits int
	h := RateLimit(limiter, "login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) int {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r = r.WithContext(WithClientIP(r.Context(), ip))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, send("1.1.1.1"))
	assert.Equal(t, http.StatusNoContent, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1"))
	assert.Equal(t, http.StatusNoContent, send("2.2.2.2"))
	assert.Equal(t, 3, hits)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.RateLimited.WithLabelValues("login")))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, "login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimit_NilLimiter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(nil, "login", next)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
