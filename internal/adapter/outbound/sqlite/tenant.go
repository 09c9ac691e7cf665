package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

// GetOrganisation returns a non-tombstoned organisation by ID.
func (s *Store) GetOrganisation(ctx context.Context, id string) (*tenant.Organisation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, settings, active, created_at
		FROM organisations
		WHERE id = ? AND deleted_at IS NULL`, id)

	var org tenant.Organisation
	var settings string
	var createdAt sql.NullTime
	err := row.Scan(&org.ID, &org.Slug, &org.Name, &settings, &org.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrOrganisationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organisation %s: %w", id, err)
	}
	org.Settings = unmarshalMap(settings)
	org.CreatedAt = createdAt.Time
	return &org, nil
}

// GetWorkspace returns a non-tombstoned workspace by ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*tenant.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organisation_id, slug, environment, upstream_url, settings, active, created_at
		FROM workspaces
		WHERE id = ? AND deleted_at IS NULL`, id)

	ws, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace %s: %w", id, err)
	}
	return ws, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*tenant.Workspace, error) {
	var ws tenant.Workspace
	var settings string
	var createdAt sql.NullTime
	err := row.Scan(&ws.ID, &ws.OrganisationID, &ws.Slug, &ws.Environment,
		&ws.UpstreamURL, &settings, &ws.Active, &createdAt)
	if err != nil {
		return nil, err
	}
	ws.Settings = unmarshalMap(settings)
	ws.CreatedAt = createdAt.Time
	return &ws, nil
}

// PutOrganisation inserts or replaces an organisation.
func (s *Store) PutOrganisation(ctx context.Context, org *tenant.Organisation) error {
	settings, err := marshalMap(org.Settings)
	if err != nil {
		return fmt.Errorf("put organisation %s: %w", org.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO organisations (id, slug, name, settings, active, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug, name = excluded.name, settings = excluded.settings,
			active = excluded.active, deleted_at = excluded.deleted_at`,
		org.ID, org.Slug, org.Name, settings, org.Active, org.CreatedAt, org.DeletedAt)
	if err != nil {
		return fmt.Errorf("put organisation %s: %w", org.ID, err)
	}
	return nil
}

// PutWorkspace inserts or replaces a workspace.
func (s *Store) PutWorkspace(ctx context.Context, ws *tenant.Workspace) error {
	settings, err := marshalMap(ws.Settings)
	if err != nil {
		return fmt.Errorf("put workspace %s: %w", ws.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, organisation_id, slug, environment, upstream_url, settings, active, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organisation_id = excluded.organisation_id, slug = excluded.slug,
			environment = excluded.environment, upstream_url = excluded.upstream_url,
			settings = excluded.settings, active = excluded.active,
			deleted_at = excluded.deleted_at`,
		ws.ID, ws.OrganisationID, ws.Slug, ws.Environment, ws.UpstreamURL,
		settings, ws.Active, ws.CreatedAt, ws.DeletedAt)
	if err != nil {
		return fmt.Errorf("put workspace %s: %w", ws.ID, err)
	}
	return nil
}

var _ tenant.Store = (*Store)(nil)
