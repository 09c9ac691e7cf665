package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultCacheTTL is the effective-policy-set memoisation TTL.
const DefaultCacheTTL = 5 * time.Minute

// CacheKey builds the memoisation key for an (org, workspace, agent)
// triple. The agent segment is "_default" for workspace-wide resolution
// so agent-scoped and agent-less lookups never collide.
func CacheKey(org, workspace, agent string) string {
	if agent == "" {
		agent = "_default"
	}
	return fmt.Sprintf("policy:effective:%s:%s:%s", org, workspace, agent)
}

// Resolver loads effective policy sets with cache memoisation.
type Resolver struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL overrides the memoisation TTL.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// NewResolver creates a policy resolver. cache may be nil to disable
// memoisation (tests, single-shot tooling).
func NewResolver(store Store, cache Cache, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		cache:  cache,
		ttl:    DefaultCacheTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective policy set for (org, workspace, agent).
// Cache failures degrade to a store read; they never fail the request.
func (r *Resolver) Resolve(ctx context.Context, org, workspace, agent string) (*EffectivePolicySet, error) {
	key := CacheKey(org, workspace, agent)

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			return &EffectivePolicySet{
				OrganisationID: org,
				WorkspaceID:    workspace,
				AgentID:        agent,
				Policies:       cached,
			}, nil
		case !errors.Is(err, ErrCacheMiss):
			r.logger.Warn("policy cache read failed", "key", key, "error", err)
		}
	}

	policies, err := r.store.ListEffective(ctx, org, workspace, agent)
	if err != nil {
		return nil, fmt.Errorf("load effective policies: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, policies, r.ttl); err != nil {
			r.logger.Warn("policy cache write failed", "key", key, "error", err)
		}
	}

	return &EffectivePolicySet{
		OrganisationID: org,
		WorkspaceID:    workspace,
		AgentID:        agent,
		Policies:       policies,
	}, nil
}

// Invalidate removes cached entries overlapping a policy write at
// (org, workspace?). With a known workspace only that workspace's
// entries go; otherwise the whole organisation's. Best-effort.
func (r *Resolver) Invalidate(ctx context.Context, org, workspace string) {
	if r.cache == nil {
		return
	}

	pattern := fmt.Sprintf("policy:effective:%s:*", org)
	if workspace != "" {
		pattern = fmt.Sprintf("policy:effective:%s:%s:*", org, workspace)
	}
	if err := r.cache.DeletePattern(ctx, pattern); err != nil {
		r.logger.Warn("policy cache invalidation failed", "pattern", pattern, "error", err)
	}
}
