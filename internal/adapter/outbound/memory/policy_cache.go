package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/policy"
)

// PolicyCache is a TTL map implementing policy.Cache for deployments
// without an external cache. Pattern deletion matches the same glob
// syntax the external backend uses.
type PolicyCache struct {
	mu      sync.RWMutex
	entries map[string]policyCacheEntry
	now     func() time.Time
}

type policyCacheEntry struct {
	policies  []policy.Policy
	expiresAt time.Time
}

// NewPolicyCache creates an empty policy cache.
func NewPolicyCache() *PolicyCache {
	return &PolicyCache{
		entries: make(map[string]policyCacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached policy list, or ErrCacheMiss when absent or
// expired. Expired entries are reaped lazily on read.
func (c *PolicyCache) Get(_ context.Context, key string) ([]policy.Policy, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, policy.ErrCacheMiss
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, policy.ErrCacheMiss
	}
	return entry.policies, nil
}

// Set stores the policy list under key with the given TTL.
func (c *PolicyCache) Set(_ context.Context, key string, policies []policy.Policy, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = policyCacheEntry{
		policies:  policies,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// DeletePattern removes all keys matching a glob pattern. Cache keys
// contain no slashes, so * spans key segments freely.
func (c *PolicyCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of live entries. Tests only.
func (c *PolicyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ policy.Cache = (*PolicyCache)(nil)
