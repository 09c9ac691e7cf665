package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

// CredentialStore keeps agent credentials in process memory, indexed by
// token digest for the hot-path lookup. The workspace join reads the
// shared tenant store.
type CredentialStore struct {
	mu      sync.RWMutex
	byID    map[string]credential.AgentCredential
	byHash  map[string]string // digest -> credential ID
	tenants *TenantStore
}

// NewCredentialStore creates a credential store joined to the given
// tenant store.
func NewCredentialStore(tenants *TenantStore) *CredentialStore {
	return &CredentialStore{
		byID:    make(map[string]credential.AgentCredential),
		byHash:  make(map[string]string),
		tenants: tenants,
	}
}

// GetByTokenHash returns the credential matching the digest joined with
// its non-tombstoned workspace.
func (s *CredentialStore) GetByTokenHash(ctx context.Context, tokenHash string) (*credential.AgentCredential, *tenant.Workspace, error) {
	s.mu.RLock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		s.mu.RUnlock()
		return nil, nil, credential.ErrCredentialNotFound
	}
	cred := s.byID[id]
	s.mu.RUnlock()

	ws, err := s.tenants.GetWorkspace(ctx, cred.WorkspaceID)
	if err != nil {
		return nil, nil, err
	}
	out := cred
	return &out, ws, nil
}

// RecordUsage increments usage_count and sets last_used_at.
func (s *CredentialStore) RecordUsage(_ context.Context, credentialID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[credentialID]
	if !ok {
		return credential.ErrCredentialNotFound
	}
	cred.UsageCount++
	cred.LastUsedAt = &usedAt
	s.byID[credentialID] = cred
	return nil
}

// Put inserts or replaces a credential.
func (s *CredentialStore) Put(_ context.Context, cred *credential.AgentCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[cred.ID]; ok && existing.TokenHash != cred.TokenHash {
		delete(s.byHash, existing.TokenHash)
	}
	s.byID[cred.ID] = *cred
	s.byHash[cred.TokenHash] = cred.ID
	return nil
}

var _ credential.Store = (*CredentialStore)(nil)
