package memory

import (
	"context"
	"sync"

	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

// TenantStore keeps organisations and workspaces in process memory.
type TenantStore struct {
	mu            sync.RWMutex
	organisations map[string]tenant.Organisation
	workspaces    map[string]tenant.Workspace
}

// NewTenantStore creates an empty tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		organisations: make(map[string]tenant.Organisation),
		workspaces:    make(map[string]tenant.Workspace),
	}
}

// GetOrganisation returns a non-tombstoned organisation by ID.
func (s *TenantStore) GetOrganisation(_ context.Context, id string) (*tenant.Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organisations[id]
	if !ok || org.DeletedAt != nil {
		return nil, tenant.ErrOrganisationNotFound
	}
	out := org
	return &out, nil
}

// GetWorkspace returns a non-tombstoned workspace by ID.
func (s *TenantStore) GetWorkspace(_ context.Context, id string) (*tenant.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok || ws.DeletedAt != nil {
		return nil, tenant.ErrWorkspaceNotFound
	}
	out := ws
	return &out, nil
}

// PutOrganisation inserts or replaces an organisation.
func (s *TenantStore) PutOrganisation(_ context.Context, org *tenant.Organisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organisations[org.ID] = *org
	return nil
}

// PutWorkspace inserts or replaces a workspace.
func (s *TenantStore) PutWorkspace(_ context.Context, ws *tenant.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[ws.ID] = *ws
	return nil
}

var _ tenant.Store = (*TenantStore)(nil)
