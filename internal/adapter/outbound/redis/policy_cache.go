package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cerberus-gate/cerberus/internal/domain/policy"
)

// scanBatch bounds SCAN page size during pattern invalidation.
const scanBatch = 200

// PolicyCache implements policy.Cache on Redis. Entries are JSON policy
// lists under the resolver's cache keys; pattern invalidation walks the
// keyspace with SCAN rather than the blocking KEYS.
type PolicyCache struct {
	client *redis.Client
}

// NewPolicyCache creates a Redis-backed policy cache.
func NewPolicyCache(client *redis.Client) *PolicyCache {
	return &PolicyCache{client: client}
}

// Get returns the cached policy list, or policy.ErrCacheMiss.
func (c *PolicyCache) Get(ctx context.Context, key string) ([]policy.Policy, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, policy.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("policy cache get %s: %w", key, err)
	}

	var policies []policy.Policy
	if err := json.Unmarshal(raw, &policies); err != nil {
		// A corrupt entry reads as a miss; the resolver repopulates it.
		return nil, policy.ErrCacheMiss
	}
	return policies, nil
}

// Set stores the policy list under key with the given TTL.
func (c *PolicyCache) Set(ctx context.Context, key string, policies []policy.Policy, ttl time.Duration) error {
	raw, err := json.Marshal(policies)
	if err != nil {
		return fmt.Errorf("policy cache marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("policy cache set %s: %w", key, err)
	}
	return nil
}

// DeletePattern removes all keys matching a glob pattern.
func (c *PolicyCache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("policy cache scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("policy cache delete %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var _ policy.Cache = (*PolicyCache)(nil)
