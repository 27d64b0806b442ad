package middleware

import (
	"context"
	"sync"
	"time"
)

type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now in a store, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type window struct {
	count  int
	start  time.Time
	length time.Duration
}

// MemoryStore keeps fixed-window counters in process memory.
type MemoryStore struct {
	windows map[string]*window
	mutex   sync.Mutex
	now     func() time.Time
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o := applyStoreOptions(opts)
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     o.now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, length time.Duration) (Decision, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	w, exists := s.windows[key]
	if !exists || now.Sub(w.start) >= length {
		w = &window{start: now, length: length}
		s.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.start.Add(length),
	}, nil
}

// Cleanup drops windows that have already elapsed and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if now.Sub(w.start) >= w.length {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	go runJanitor(ctx, every, func() { s.Cleanup() })
}

func (s *MemoryStore) Reset() {
	s.mutex.Lock()
	s.windows = make(map[string]*window)
	s.mutex.Unlock()
}

func (s *MemoryStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.windows)
}

func runJanitor(ctx context.Context, every time.Duration, sweep func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
