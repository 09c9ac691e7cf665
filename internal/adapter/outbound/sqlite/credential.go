package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

// CredentialStore is the credential.Store view of a sqlite Store.
type CredentialStore struct {
	store *Store
}

// GetByTokenHash resolves a credential by digest joined with its
// non-tombstoned workspace in a single indexed query.
func (c *CredentialStore) GetByTokenHash(ctx context.Context, tokenHash string) (*credential.AgentCredential, *tenant.Workspace, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT c.id, c.workspace_id, c.name, c.token_hash, c.token_prefix,
		       c.active, c.revoked, c.expires_at, c.last_used_at, c.usage_count, c.created_at,
		       w.id, w.organisation_id, w.slug, w.environment, w.upstream_url, w.settings, w.active, w.created_at
		FROM agent_credentials c
		JOIN workspaces w ON w.id = c.workspace_id AND w.deleted_at IS NULL
		WHERE c.token_hash = ?`, tokenHash)

	var cred credential.AgentCredential
	var expiresAt, lastUsedAt, credCreated, wsCreated sql.NullTime
	var ws tenant.Workspace
	var wsSettings string
	err := row.Scan(
		&cred.ID, &cred.WorkspaceID, &cred.Name, &cred.TokenHash, &cred.TokenPrefix,
		&cred.Active, &cred.Revoked, &expiresAt, &lastUsedAt, &cred.UsageCount, &credCreated,
		&ws.ID, &ws.OrganisationID, &ws.Slug, &ws.Environment, &ws.UpstreamURL,
		&wsSettings, &ws.Active, &wsCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, credential.ErrCredentialNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get credential by hash: %w", err)
	}

	if expiresAt.Valid {
		cred.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		cred.LastUsedAt = &lastUsedAt.Time
	}
	cred.CreatedAt = credCreated.Time
	ws.Settings = unmarshalMap(wsSettings)
	ws.CreatedAt = wsCreated.Time
	return &cred, &ws, nil
}

// RecordUsage increments usage_count and sets last_used_at.
func (c *CredentialStore) RecordUsage(ctx context.Context, credentialID string, usedAt time.Time) error {
	res, err := c.store.db.ExecContext(ctx, `
		UPDATE agent_credentials
		SET usage_count = usage_count + 1, last_used_at = ?
		WHERE id = ?`, usedAt, credentialID)
	if err != nil {
		return fmt.Errorf("record usage %s: %w", credentialID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return credential.ErrCredentialNotFound
	}
	return nil
}

// Put inserts or replaces a credential.
func (c *CredentialStore) Put(ctx context.Context, cred *credential.AgentCredential) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO agent_credentials
			(id, workspace_id, name, token_hash, token_prefix, active, revoked,
			 expires_at, last_used_at, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id, name = excluded.name,
			token_hash = excluded.token_hash, token_prefix = excluded.token_prefix,
			active = excluded.active, revoked = excluded.revoked,
			expires_at = excluded.expires_at`,
		cred.ID, cred.WorkspaceID, cred.Name, cred.TokenHash, cred.TokenPrefix,
		cred.Active, cred.Revoked, nullableTime(cred.ExpiresAt), nullableTime(cred.LastUsedAt),
		cred.UsageCount, cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("put credential %s: %w", cred.ID, err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var _ credential.Store = (*CredentialStore)(nil)
