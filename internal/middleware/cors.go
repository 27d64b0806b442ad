package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

type CORSOptions struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           int
}

// CORS answers preflight requests and sets Access-Control-* headers for the
// allowed origins. It returns nil when no origin is allowed, which leaves the
// stage out of the pipeline.
func CORS(opts CORSOptions) Middleware {
	if len(opts.AllowedOrigins) == 0 {
		return nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept", "Accept-Language", "Content-Language", "Content-Type",
			"Authorization", "X-Requested-With", "X-CSRF-Token", "X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Total-Count", "X-Request-ID", "Location", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	})
	return c.Handler
}
