// Package server assembles the task API: the route table, the middleware
// pipeline around it, and the HTTP server lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asad-bukhari/task-flow-organizer/internal/handlers"
	"github.com/asad-bukhari/task-flow-organizer/internal/middleware"
)

type Options struct {
	// RateLimitStore is nil when rate limiting is disabled.
	RateLimitStore    middleware.Store
	TrustProxyHeaders bool
	CORS              middleware.CORSOptions
	Logger            logrus.FieldLogger
}

// Router is the assembled HTTP handler.
type Router struct {
	handler  http.Handler
	pipeline *middleware.Pipeline
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// Stages lists the active middleware stages, outermost first.
func (rt *Router) Stages() []string {
	return rt.pipeline.Names()
}

// NewRouter registers every route of h on a ServeMux and wraps it in the
// middleware pipeline.
func NewRouter(h *handlers.Handler, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mux := http.NewServeMux()
	rules := make(map[string]middleware.Rule)
	for _, route := range h.Routes() {
		mux.Handle(route.Pattern, route.Handler)
		rules[route.Pattern] = middleware.PerMinute(route.Name, route.PerMinute)
	}

	var rateLimit middleware.Middleware
	if opts.RateLimitStore != nil {
		rateLimit = middleware.RateLimit(middleware.RateLimitOptions{
			Store:   opts.RateLimitStore,
			Rules:   routeRules(mux, rules),
			KeyFunc: middleware.DefaultKeyFunc(opts.TrustProxyHeaders),
			Logger:  logger,
		})
	}

	pipeline := middleware.NewPipeline(
		middleware.Stage{Name: "request_id", Wrap: middleware.RequestID},
		middleware.Stage{Name: "access_log", Wrap: middleware.AccessLog(logger, opts.TrustProxyHeaders)},
		middleware.Stage{Name: "security_headers", Wrap: middleware.SecurityHeaders},
		middleware.Stage{Name: "recover", Wrap: middleware.Recover(logger)},
		middleware.Stage{Name: "cors", Wrap: middleware.CORS(opts.CORS)},
		middleware.Stage{Name: "rate_limit", Wrap: rateLimit},
	)
	return &Router{handler: pipeline.Then(mux), pipeline: pipeline}
}

// routeRules resolves the pattern the mux would dispatch r to, before it runs.
func routeRules(mux *http.ServeMux, rules map[string]middleware.Rule) middleware.RuleFunc {
	return func(r *http.Request) (middleware.Rule, bool) {
		_, pattern := mux.Handler(r)
		rule, ok := rules[pattern]
		return rule, ok
	}
}

// Run serves until ctx is cancelled, then shuts down, giving in-flight
// requests up to shutdownTimeout to finish.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("starting tasks server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
