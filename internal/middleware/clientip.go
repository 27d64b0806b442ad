package middleware

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc identifies the client a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientIP returns the host part of RemoteAddr. With trustProxy set, the first
// X-Forwarded-For entry wins when present.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}

func DefaultKeyFunc(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, trustProxy)
	}
}
