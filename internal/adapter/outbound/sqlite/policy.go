package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cerberus-gate/cerberus/internal/domain/policy"
)

// PolicyStore is the policy.Store view of a sqlite Store.
type PolicyStore struct {
	store *Store
}

// ListEffective returns enabled, non-tombstoned policies matching the
// three scope disjuncts, each joined with its definition's type tag and
// default config.
func (p *PolicyStore) ListEffective(ctx context.Context, org, workspace, agent string) ([]policy.Policy, error) {
	rows, err := p.store.db.QueryContext(ctx, `
		SELECT p.id, p.organisation_id, p.workspace_id, p.agent_id, p.guardrail_id,
		       d.type, d.default_config,
		       p.name, p.description, p.config, p.action, p.enabled, p.created_at
		FROM policies p
		JOIN guardrail_definitions d ON d.id = p.guardrail_id AND d.active = 1
		WHERE p.organisation_id = ? AND p.enabled = 1 AND p.deleted_at IS NULL
		  AND (
		       (p.workspace_id = '' AND p.agent_id = '')
		    OR (p.workspace_id = ? AND p.agent_id = '')
		    OR (? != '' AND p.workspace_id = ? AND p.agent_id = ?)
		  )`,
		org, workspace, agent, workspace, agent)
	if err != nil {
		return nil, fmt.Errorf("list effective policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		var pol policy.Policy
		var defaults, config string
		var createdAt sql.NullTime
		if err := rows.Scan(
			&pol.ID, &pol.OrganisationID, &pol.WorkspaceID, &pol.AgentID, &pol.GuardrailID,
			&pol.GuardrailType, &defaults,
			&pol.Name, &pol.Description, &config, &pol.Action, &pol.Enabled, &createdAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		pol.GuardrailDefaults = unmarshalMap(defaults)
		pol.Config = unmarshalMap(config)
		pol.CreatedAt = createdAt.Time
		out = append(out, pol)
	}
	return out, rows.Err()
}

// GetDefinition returns an active guardrail definition by type tag.
func (p *PolicyStore) GetDefinition(ctx context.Context, guardrailType string) (*policy.GuardrailDefinition, error) {
	row := p.store.db.QueryRowContext(ctx, `
		SELECT id, type, display_name, category, default_config, active
		FROM guardrail_definitions
		WHERE type = ? AND active = 1`, guardrailType)

	var def policy.GuardrailDefinition
	var defaults string
	err := row.Scan(&def.ID, &def.Type, &def.DisplayName, &def.Category, &defaults, &def.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get definition %s: %w", guardrailType, err)
	}
	def.DefaultConfig = unmarshalMap(defaults)
	return &def, nil
}

// Put inserts or replaces a policy.
func (p *PolicyStore) Put(ctx context.Context, pol *policy.Policy) error {
	config, err := marshalMap(pol.Config)
	if err != nil {
		return fmt.Errorf("put policy %s: %w", pol.ID, err)
	}
	_, err = p.store.db.ExecContext(ctx, `
		INSERT INTO policies
			(id, organisation_id, workspace_id, agent_id, guardrail_id,
			 name, description, config, action, enabled, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id, agent_id = excluded.agent_id,
			guardrail_id = excluded.guardrail_id, name = excluded.name,
			description = excluded.description, config = excluded.config,
			action = excluded.action, enabled = excluded.enabled,
			deleted_at = excluded.deleted_at`,
		pol.ID, pol.OrganisationID, pol.WorkspaceID, pol.AgentID, pol.GuardrailID,
		pol.Name, pol.Description, config, pol.Action, pol.Enabled, pol.CreatedAt, pol.DeletedAt)
	if err != nil {
		return fmt.Errorf("put policy %s: %w", pol.ID, err)
	}
	return nil
}

// PutDefinition inserts or replaces a guardrail definition.
func (p *PolicyStore) PutDefinition(ctx context.Context, def *policy.GuardrailDefinition) error {
	defaults, err := marshalMap(def.DefaultConfig)
	if err != nil {
		return fmt.Errorf("put definition %s: %w", def.Type, err)
	}
	_, err = p.store.db.ExecContext(ctx, `
		INSERT INTO guardrail_definitions (id, type, display_name, category, default_config, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type, display_name = excluded.display_name,
			category = excluded.category, default_config = excluded.default_config,
			active = excluded.active`,
		def.ID, def.Type, def.DisplayName, def.Category, defaults, def.Active)
	if err != nil {
		return fmt.Errorf("put definition %s: %w", def.Type, err)
	}
	return nil
}

var _ policy.Store = (*PolicyStore)(nil)
