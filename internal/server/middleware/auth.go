package middleware

import (
	"net/http"
	"strings"

	"bloggers-platform/backend/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator verifies access tokens. *security.TokenProvider implements it.
type AccessValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// RequireBearer validates the Bearer access token and puts the principal id in the request context.
// Requests without a valid token get 401 and never reach next.
func RequireBearer(tokens AccessValidator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.PrincipalID())))
	})
}

// BearerToken returns the token from the Authorization header, or "" if missing or malformed.
func BearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
