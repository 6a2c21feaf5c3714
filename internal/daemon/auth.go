package daemon

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r, token) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware admits scrapers whose address falls inside allow, plus
// any request carrying the API token. Everyone else gets 403.
func metricsMiddleware(allow []netip.Prefix, token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addr, ok := remoteAddr(r); ok {
			for _, prefix := range allow {
				if prefix.Contains(addr) {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		if token != "" && bearerMatches(r, token) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

func bearerMatches(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	supplied := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) == 1
}

// remoteAddr is the TCP peer. Forwarding headers are ignored since nothing
// vouches for them.
func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
