package middleware

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// TokenBucketStore refills each key continuously at limit per window with a
// burst of limit, so no client gets two full quotas across a window boundary.
type TokenBucketStore struct {
	buckets map[string]*bucket
	mutex   sync.Mutex
	now     func() time.Time
}

func NewTokenBucketStore(opts ...StoreOption) *TokenBucketStore {
	o := applyStoreOptions(opts)
	return &TokenBucketStore{
		buckets: make(map[string]*bucket),
		now:     o.now,
	}
}

func (s *TokenBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	b, exists := s.buckets[key]
	if !exists {
		every := rate.Limit(float64(limit) / window.Seconds())
		b = &bucket{limiter: rate.NewLimiter(every, limit), window: window}
		s.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	perSecond := float64(b.limiter.Limit())

	// time until the next token when denied, until the bucket is full otherwise
	missing := float64(limit) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	wait := time.Duration(math.Max(missing, 0) / perSecond * float64(time.Second))

	return Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(wait),
	}, nil
}

// Cleanup drops buckets idle for a full window; they would be full again anyway.
func (s *TokenBucketStore) Cleanup() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, b := range s.buckets {
		if now.Sub(b.lastSeen) >= b.window {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

func (s *TokenBucketStore) StartJanitor(ctx context.Context, every time.Duration) {
	go runJanitor(ctx, every, func() { s.Cleanup() })
}

func (s *TokenBucketStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.buckets)
}
