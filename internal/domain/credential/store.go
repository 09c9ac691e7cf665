package credential

import (
	"context"
	"errors"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

// ErrCredentialNotFound is returned by stores when no credential matches
// the digest. The resolver collapses it into ErrInvalidCredential.
var ErrCredentialNotFound = errors.New("credential not found")

// Store provides credential lookup and usage accounting.
type Store interface {
	// GetByTokenHash returns the credential matching the digest joined
	// with its owning workspace. A single indexed lookup; the workspace
	// must be non-tombstoned.
	GetByTokenHash(ctx context.Context, tokenHash string) (*AgentCredential, *tenant.Workspace, error)

	// RecordUsage increments usage_count and sets last_used_at.
	// Called fire-and-forget after successful resolution; a dropped
	// update is acceptable (the counter is advisory).
	RecordUsage(ctx context.Context, credentialID string, usedAt time.Time) error

	// Put inserts or replaces a credential.
	Put(ctx context.Context, cred *AgentCredential) error
}
