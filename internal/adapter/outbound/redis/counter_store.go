package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
)

// slidingWindowScript is the atomic check-and-increment. A sorted set
// holds one member per request scored by arrival time in microseconds;
// the prune, count, and conditional insert execute as one script so
// concurrent gateways cannot oversubscribe a limit.
//
// KEYS[1] counter key
// ARGV[1] now (microseconds)
// ARGV[2] window (microseconds)
// ARGV[3] limit
// ARGV[4] member
// Returns {allowed, current, retry_after_micros}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = (tonumber(oldest[2]) + window) - now
  end
  return {0, count, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, math.ceil(window * 2 / 1000))
return {1, count + 1, 0}
`)

// CounterStore implements the sliding-window counter on Redis sorted
// sets. Keys carry a TTL of twice their window so idle agents cost
// nothing.
type CounterStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewCounterStore creates a Redis-backed counter store.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client, now: time.Now}
}

// CheckAndIncrement runs the atomic sliding-window script.
func (s *CounterStore) CheckAndIncrement(ctx context.Context, key string, limit int64, window time.Duration) (ratelimit.Result, error) {
	now := s.now().UnixMicro()
	member := fmt.Sprintf("%d:%s", now, uuid.NewString())

	raw, err := slidingWindowScript.Run(ctx, s.client,
		[]string{key}, now, window.Microseconds(), limit, member).Result()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("rate limit script %s: %w", key, err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return ratelimit.Result{}, fmt.Errorf("rate limit script %s: unexpected reply %v", key, raw)
	}
	allowed, _ := reply[0].(int64)
	current, _ := reply[1].(int64)
	retryMicros, _ := reply[2].(int64)

	res := ratelimit.Result{
		Allowed: allowed == 1,
		Current: current,
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration(retryMicros) * time.Microsecond
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res, nil
}

// CurrentCount counts live members without inserting.
func (s *CounterStore) CurrentCount(ctx context.Context, key string, window time.Duration) (int64, error) {
	cutoff := s.now().Add(-window).UnixMicro()
	count, err := s.client.ZCount(ctx, key, fmt.Sprintf("(%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit count %s: %w", key, err)
	}
	return count, nil
}

// Reset clears a key.
func (s *CounterStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rate limit reset %s: %w", key, err)
	}
	return nil
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)
