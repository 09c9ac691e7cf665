package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
)

func TestCounterStoreEnforcesLimit(t *testing.T) {
	t.Parallel()

	s := NewCounterStore()
	ctx := context.Background()
	key := ratelimit.FormatKey("org-1", "ws-1", "agent-1", ratelimit.GlobalScope, time.Minute)

	for i := 1; i <= 3; i++ {
		res, err := s.CheckAndIncrement(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndIncrement: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d not allowed under limit 3", i)
		}
		if res.Current != int64(i) {
			t.Errorf("request %d: Current = %d", i, res.Current)
		}
	}

	res, err := s.CheckAndIncrement(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	if res.Allowed {
		t.Error("4th request allowed over limit 3")
	}
	if res.Current != 3 {
		t.Errorf("Current = %d, want 3 (denied request not counted)", res.Current)
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}
}

func TestCounterStoreWindowSlides(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := &now
	var mu sync.Mutex
	s := NewCounterStore(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return *clock
	}))
	ctx := context.Background()

	if res, _ := s.CheckAndIncrement(ctx, "k", 1, time.Minute); !res.Allowed {
		t.Fatal("first request denied")
	}
	if res, _ := s.CheckAndIncrement(ctx, "k", 1, time.Minute); res.Allowed {
		t.Fatal("second request allowed within window")
	}

	mu.Lock()
	later := now.Add(61 * time.Second)
	clock = &later
	mu.Unlock()

	if res, _ := s.CheckAndIncrement(ctx, "k", 1, time.Minute); !res.Allowed {
		t.Error("request denied after window expired")
	}
}

func TestCounterStoreKeysIndependent(t *testing.T) {
	t.Parallel()

	s := NewCounterStore()
	ctx := context.Background()

	if res, _ := s.CheckAndIncrement(ctx, "a", 1, time.Minute); !res.Allowed {
		t.Fatal("key a denied")
	}
	if res, _ := s.CheckAndIncrement(ctx, "b", 1, time.Minute); !res.Allowed {
		t.Error("key b denied after key a consumed its limit")
	}
}

func TestCounterStoreConcurrentNeverOversubscribes(t *testing.T) {
	t.Parallel()

	s := NewCounterStore()
	ctx := context.Background()
	const limit = 50
	const workers = 200

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.CheckAndIncrement(ctx, "shared", limit, time.Minute)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Errorf("allowed %d of %d concurrent requests, want exactly %d", got, workers, limit)
	}
}

func TestCounterStoreCurrentCountAndReset(t *testing.T) {
	t.Parallel()

	s := NewCounterStore()
	ctx := context.Background()

	for n := 0; n < 5; n++ {
		s.CheckAndIncrement(ctx, "k", 10, time.Minute)
	}
	if n, _ := s.CurrentCount(ctx, "k", time.Minute); n != 5 {
		t.Errorf("CurrentCount = %d, want 5", n)
	}
	if err := s.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := s.CurrentCount(ctx, "k", time.Minute); n != 0 {
		t.Errorf("CurrentCount after reset = %d, want 0", n)
	}
}

func TestCounterStoreCleanupDropsStaleKeys(t *testing.T) {
	t.Parallel()

	now := time.Now()
	current := now
	var mu sync.Mutex
	s := NewCounterStore(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}))
	ctx := context.Background()

	s.CheckAndIncrement(ctx, "stale", 10, time.Minute)
	if s.Size() != 1 {
		t.Fatalf("Size = %d, want 1", s.Size())
	}

	mu.Lock()
	current = now.Add(3 * time.Minute)
	mu.Unlock()
	s.cleanup(time.Minute)

	if s.Size() != 0 {
		t.Errorf("Size = %d after cleanup, want 0", s.Size())
	}
}
