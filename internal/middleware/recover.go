package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Recover turns a handler panic into a 500 with a generic detail body. When
// the response has already started the connection is aborted instead.
func Recover(logger logrus.FieldLogger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.WithFields(logrus.Fields{
					"panic":      p,
					"path":       r.URL.Path,
					"request_id": RequestIDFromContext(r.Context()),
					"stack":      string(debug.Stack()),
					"status":     rec.status,
				}).Error("handler panicked")
				if rec.status != 0 {
					panic(http.ErrAbortHandler)
				}
				writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
