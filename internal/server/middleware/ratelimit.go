package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/ratelimit"
	"bloggers-platform/backend/internal/telemetry"
)

// RateLimit answers 429 once the client IP has spent its budget on route in the current window.
// The IP comes from StoreClientIP. A nil limiter disables the check; limiter failures let the
// request through.
func RateLimit(limiter ratelimit.Limiter, route string, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r.Context())
		if ip == "" {
			ip = remoteHost(r.RemoteAddr)
		}
		ok, err := limiter.Allow(r.Context(), route+":"+ip)
		if err != nil {
			log.Error().Err(err).Str("route", route).Msg("rate limiter failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			telemetry.RecordRateLimited(route)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
