package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies are the peer networks whose X-Forwarded-For and X-Real-IP headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses CIDRs or bare addresses. Blank entries are skipped.
func ParseTrustedProxies(list []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(list))
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Trusts reports whether host is inside one of the trusted networks.
func (t TrustedProxies) Trusts(host string) bool {
	if len(t) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RequestIP returns the client IP. X-Forwarded-For (first entry) and X-Real-IP are honored only
// when the direct peer is a trusted proxy; otherwise the remote address is used.
func RequestIP(r *http.Request, trusted TrustedProxies) string {
	peer := remoteHost(r.RemoteAddr)
	if trusted.Trusts(peer) {
		if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
			if i := strings.Index(s, ","); i > 0 {
				s = strings.TrimSpace(s[:i])
			}
			if s != "" {
				return s
			}
		}
		if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
			return s
		}
	}
	if peer != "" {
		return peer
	}
	return "unknown"
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// StoreClientIP puts RequestIP into the request context for handlers, the rate limiter and the
// audit logger.
func StoreClientIP(next http.Handler, trusted TrustedProxies) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), RequestIP(r, trusted))))
	})
}
