package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCounterStoreEnforcesLimit(t *testing.T) {
	_, client := newTestClient(t)
	s := NewCounterStore(client)
	ctx := context.Background()
	key := ratelimit.FormatKey("org-1", "ws-1", "agent-1", ratelimit.GlobalScope, time.Minute)

	for i := 1; i <= 3; i++ {
		res, err := s.CheckAndIncrement(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndIncrement %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied under limit 3", i)
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
		t.Errorf("Current = %d, want 3", res.Current)
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}
}

func TestCounterStoreWindowSlides(t *testing.T) {
	_, client := newTestClient(t)
	s := NewCounterStore(client)
	ctx := context.Background()

	base := time.Now()
	current := base
	s.now = func() time.Time { return current }

	if res, _ := s.CheckAndIncrement(ctx, "k", 1, time.Minute); !res.Allowed {
		t.Fatal("first request denied")
	}
	if res, _ := s.CheckAndIncrement(ctx, "k", 1, time.Minute); res.Allowed {
		t.Fatal("second request allowed within window")
	}

	current = base.Add(61 * time.Second)
	if res, _ := s.CheckAndIncrement(ctx, "k", 1, time.Minute); !res.Allowed {
		t.Error("request denied after window expired")
	}
}

func TestCounterStoreKeyTTL(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewCounterStore(client)
	ctx := context.Background()

	if _, err := s.CheckAndIncrement(ctx, "k", 10, time.Minute); err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}

	ttl := mr.TTL("k")
	if ttl <= time.Minute || ttl > 2*time.Minute {
		t.Errorf("key TTL = %v, want ~2x window", ttl)
	}
}

func TestCounterStoreCurrentCountAndReset(t *testing.T) {
	_, client := newTestClient(t)
	s := NewCounterStore(client)
	ctx := context.Background()

	for n := 0; n < 4; n++ {
		if _, err := s.CheckAndIncrement(ctx, "k", 10, time.Minute); err != nil {
			t.Fatalf("CheckAndIncrement: %v", err)
		}
	}
	if n, err := s.CurrentCount(ctx, "k", time.Minute); err != nil || n != 4 {
		t.Errorf("CurrentCount = %d, %v, want 4", n, err)
	}
	if err := s.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := s.CurrentCount(ctx, "k", time.Minute); n != 0 {
		t.Errorf("CurrentCount after reset = %d", n)
	}
}
