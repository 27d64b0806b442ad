package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

type header struct {
	name, value string
}

var securityHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://cdn.jsdelivr.net; " +
		"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
		"img-src 'self' data: https://fastapi.tiangolo.com; " +
		"connect-src 'self' http://localhost:* http://127.0.0.1:*"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), microphone=()"},
}

// SecurityHeaderNames lists the headers SecurityHeaders adds.
func SecurityHeaderNames() []string {
	names := make([]string, len(securityHeaders))
	for i, h := range securityHeaders {
		names[i] = h.name
	}
	return names
}

func fillSecurityHeaders(h http.Header) {
	for _, sh := range securityHeaders {
		if h.Get(sh.name) == "" {
			h.Set(sh.name, sh.value)
		}
	}
}

// SecurityHeaders adds the hardening headers to every response. Headers that
// are already set by an inner stage or the handler are kept.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &securityWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		sw.fill()
	})
}

// securityWriter fills the headers just before the status line goes out.
type securityWriter struct {
	http.ResponseWriter
	filled bool
}

func (w *securityWriter) fill() {
	if !w.filled {
		w.filled = true
		fillSecurityHeaders(w.ResponseWriter.Header())
	}
}

func (w *securityWriter) WriteHeader(status int) {
	w.fill()
	w.ResponseWriter.WriteHeader(status)
}

func (w *securityWriter) Write(b []byte) (int, error) {
	w.fill()
	return w.ResponseWriter.Write(b)
}

func (w *securityWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *securityWriter) Flush() {
	w.fill()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *securityWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", w.ResponseWriter)
	}
	// a hijacking handler writes its own status line from Header()
	w.fill()
	return hj.Hijack()
}
