package middleware

import "context"

type contextKey struct{ name string }

var (
	principalIDKey = contextKey{"principal_id"}
	clientIPKey    = contextKey{"client_ip"}
)

// WithPrincipal returns a context carrying the authenticated principal id.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalIDKey, principalID)
}

// PrincipalID returns the principal id set by RequireBearer and true if set; otherwise "", false.
func PrincipalID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalIDKey).(string)
	return v, ok && v != ""
}

// WithClientIP returns a context carrying the caller's IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the IP stored by the ClientIP middleware, or "" when absent.
// Its signature matches audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}
