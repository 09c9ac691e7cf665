package credential

import (
	"context"
	"log/slog"
	"time"
)

// usageUpdateTimeout bounds the background usage bump so a slow store
// cannot pile up goroutines.
const usageUpdateTimeout = 5 * time.Second

// Resolver authenticates bearer tokens and produces AgentContexts.
type Resolver struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a credential resolver backed by the given store.
func NewResolver(store Store, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve authenticates the Authorization header value and returns the
// immutable AgentContext. All failure modes return ErrInvalidCredential;
// the distinguishing detail is logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (*AgentContext, error) {
	token := ParseBearer(authorization)
	if token == "" {
		r.logger.Debug("credential rejected", "reason", "missing or malformed bearer scheme")
		return nil, ErrInvalidCredential
	}

	cred, ws, err := r.store.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		r.logger.Debug("credential rejected", "reason", "unknown digest", "error", err)
		return nil, ErrInvalidCredential
	}

	if !cred.Valid(r.now()) {
		r.logger.Debug("credential rejected",
			"reason", "credential not valid",
			"credential_id", cred.ID,
			"active", cred.Active,
			"revoked", cred.Revoked,
		)
		return nil, ErrInvalidCredential
	}

	if ws == nil {
		r.logger.Debug("credential rejected", "reason", "workspace missing", "credential_id", cred.ID)
		return nil, ErrInvalidCredential
	}

	// Usage accounting is fire-and-forget: it must never block the
	// request path on a slow counter store.
	go r.recordUsage(cred.ID)

	return &AgentContext{
		AgentID:        cred.ID,
		AgentName:      cred.Name,
		WorkspaceID:    ws.ID,
		OrganisationID: ws.OrganisationID,
		UpstreamURL:    ws.UpstreamURL,
	}, nil
}

// recordUsage bumps usage_count with a detached context so the update
// survives request cancellation.
func (r *Resolver) recordUsage(credentialID string) {
	ctx, cancel := context.WithTimeout(context.Background(), usageUpdateTimeout)
	defer cancel()

	if err := r.store.RecordUsage(ctx, credentialID, r.now()); err != nil {
		r.logger.Warn("failed to record credential usage",
			"credential_id", credentialID,
			"error", err,
		)
	}
}
