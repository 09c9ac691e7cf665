package tenant

import (
	"context"
	"errors"
)

// Sentinel errors for tenant store operations.
var (
	ErrOrganisationNotFound = errors.New("organisation not found")
	ErrWorkspaceNotFound    = errors.New("workspace not found")
)

// Store provides access to organisations and workspaces.
type Store interface {
	// GetOrganisation returns a non-tombstoned organisation by ID.
	GetOrganisation(ctx context.Context, id string) (*Organisation, error)

	// GetWorkspace returns a non-tombstoned workspace by ID.
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)

	// PutOrganisation inserts or replaces an organisation.
	PutOrganisation(ctx context.Context, org *Organisation) error

	// PutWorkspace inserts or replaces a workspace.
	PutWorkspace(ctx context.Context, ws *Workspace) error
}
