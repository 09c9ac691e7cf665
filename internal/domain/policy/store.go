package policy

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for policy stores and caches.
var (
	ErrPolicyNotFound     = errors.New("policy not found")
	ErrDefinitionNotFound = errors.New("guardrail definition not found")
	ErrCacheMiss          = errors.New("cache miss")
)

// Store provides access to policies and guardrail definitions.
type Store interface {
	// ListEffective returns all enabled, non-tombstoned policies whose
	// scope matches any of (org, -, -), (org, workspace, -), or
	// (org, workspace, agent) — the last only when agent is non-empty.
	// Returned policies carry GuardrailType and GuardrailDefaults from
	// the definition join.
	ListEffective(ctx context.Context, org, workspace, agent string) ([]Policy, error)

	// GetDefinition returns a guardrail definition by type tag.
	GetDefinition(ctx context.Context, guardrailType string) (*GuardrailDefinition, error)

	// Put inserts or replaces a policy.
	Put(ctx context.Context, p *Policy) error

	// PutDefinition inserts or replaces a guardrail definition.
	PutDefinition(ctx context.Context, def *GuardrailDefinition) error
}

// Cache memoises effective policy sets in an external key-value store.
// Stale reads bounded by TTL are acceptable; invalidation is best-effort.
type Cache interface {
	// Get returns the cached policy list, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]Policy, error)

	// Set stores the policy list under key with the given TTL.
	Set(ctx context.Context, key string, policies []Policy, ttl time.Duration) error

	// DeletePattern removes all keys matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string) error
}
