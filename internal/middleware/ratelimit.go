package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Rule is the quota applied to one named route.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

func PerMinute(name string, limit int) Rule {
	return Rule{Name: name, Limit: limit, Window: time.Minute}
}

// String renders the quota the way it appears in the 429 detail, e.g. "20 per 1 minute".
func (r Rule) String() string {
	if r.Window%time.Minute == 0 {
		n := int(r.Window / time.Minute)
		unit := "minute"
		if n != 1 {
			unit = "minutes"
		}
		return fmt.Sprintf("%d per %d %s", r.Limit, n, unit)
	}
	return fmt.Sprintf("%d per %s", r.Limit, r.Window)
}

// Decision is the outcome of one check-and-increment.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key. Allow records one request against key and
// reports whether it fits in limit requests per window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RuleFunc finds the quota for a request. It reports false for requests that
// are not limited, such as paths no route matches.
type RuleFunc func(r *http.Request) (Rule, bool)

type RateLimitOptions struct {
	Store   Store
	Rules   RuleFunc
	KeyFunc KeyFunc
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// RateLimit rejects requests over their route quota with 429 before they
// reach next. Store errors let the request through.
func RateLimit(opts RateLimitOptions) Middleware {
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultKeyFunc(false)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := opts.Rules(r)
			if !ok || rule.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			client := opts.KeyFunc(r)
			d, err := opts.Store.Allow(r.Context(), client+"|"+rule.Name, rule.Limit, rule.Window)
			if err != nil {
				opts.Logger.WithError(err).WithFields(logrus.Fields{
					"route":  rule.Name,
					"client": client,
				}).Warn("rate limit store unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w.Header(), d)
			if !d.Allowed {
				opts.Logger.WithFields(logrus.Fields{
					"route":  rule.Name,
					"client": client,
				}).Info("rate limit exceeded")
				sendRateLimitExceeded(w, rule, retryAfter(d.ResetAt, opts.Now()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// retryAfter is the whole number of seconds until resetAt, at least one.
func retryAfter(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func sendRateLimitExceeded(w http.ResponseWriter, rule Rule, retry int) {
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded: "+rule.String())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
