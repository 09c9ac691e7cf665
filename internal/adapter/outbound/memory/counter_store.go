// Package memory provides in-memory implementations of the outbound
// ports: stores, caches, and counters. Thread-safe; suitable for
// development, tests, and single-node deployments.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
)

// CounterStore implements the sliding-window counter in process memory.
// Each key holds its in-window timestamps; the check-and-increment runs
// under one lock so concurrent requests cannot oversubscribe a limit.
// Includes background cleanup to prevent unbounded growth.
type CounterStore struct {
	mu              sync.Mutex
	windows         map[string][]time.Time
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	now             func() time.Time
}

// CounterOption configures a CounterStore.
type CounterOption func(*CounterStore)

// WithCleanupInterval overrides the background cleanup period.
func WithCleanupInterval(interval time.Duration) CounterOption {
	return func(s *CounterStore) {
		s.cleanupInterval = interval
	}
}

// WithClock overrides the clock. Tests only.
func WithClock(now func() time.Time) CounterOption {
	return func(s *CounterStore) {
		s.now = now
	}
}

// NewCounterStore creates an in-memory sliding-window counter store.
func NewCounterStore(opts ...CounterOption) *CounterStore {
	s := &CounterStore{
		windows:         make(map[string][]time.Time),
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndIncrement drops expired entries, counts the rest, and appends
// the current instant when under limit. Single linearisation point per
// store: the whole read-modify-write holds the lock.
func (s *CounterStore) CheckAndIncrement(_ context.Context, key string, limit int64, window time.Duration) (ratelimit.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	live := s.pruneLocked(key, now, window)

	if int64(len(live)) >= limit {
		retry := time.Second
		if len(live) > 0 {
			retry = live[0].Add(window).Sub(now)
			if retry < time.Second {
				retry = time.Second
			}
		}
		return ratelimit.Result{
			Allowed:    false,
			Current:    int64(len(live)),
			RetryAfter: retry,
		}, nil
	}

	s.windows[key] = append(live, now)
	return ratelimit.Result{
		Allowed: true,
		Current: int64(len(live)) + 1,
	}, nil
}

// CurrentCount returns the live entry count without inserting.
func (s *CounterStore) CurrentCount(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pruneLocked(key, s.now(), window))), nil
}

// Reset clears a key.
func (s *CounterStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// pruneLocked drops entries older than window and writes the pruned
// slice back. Caller holds the lock. Entries are appended in time order
// so the slice stays sorted and the oldest live entry is index 0.
func (s *CounterStore) pruneLocked(key string, now time.Time, window time.Duration) []time.Time {
	entries := s.windows[key]
	cutoff := now.Add(-window)
	start := 0
	for start < len(entries) && !entries[start].After(cutoff) {
		start++
	}
	live := entries[start:]
	if len(live) == 0 {
		delete(s.windows, key)
		return nil
	}
	if start > 0 {
		s.windows[key] = live
	}
	return live
}

// StartCleanup starts the background goroutine that drops keys whose
// entries are all stale. It stops when ctx is cancelled or Stop is
// called.
func (s *CounterStore) StartCleanup(ctx context.Context, maxWindow time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup(maxWindow)
			}
		}
	}()
}

// cleanup removes keys with no entries newer than 2x the largest
// window, matching the TTL contract of external counter backends.
func (s *CounterStore) cleanup(maxWindow time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-2 * maxWindow)
	cleaned := 0
	for key, entries := range s.windows {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			delete(s.windows, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		slog.Debug("rate limit counter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(s.windows))
	}
}

// Stop stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *CounterStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Size returns the number of tracked keys. Tests and monitoring.
func (s *CounterStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)
