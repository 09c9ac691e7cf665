package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cerberus-gate/cerberus/internal/domain/audit"
)

// Append stores audit records in one transaction per batch.
func (s *Store) Append(ctx context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_records
			(id, organisation_id, workspace_id, agent_id, agent_name,
			 request_id, session_id, direction, tool_name, decision, reason,
			 guardrail_results, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		results, err := json.Marshal(r.Guardrails)
		if err != nil {
			return fmt.Errorf("marshal guardrail results %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.OrganisationID, r.WorkspaceID, r.AgentID, r.AgentName,
			r.RequestID, r.SessionID, r.Direction, r.ToolName, r.Decision, r.Reason,
			string(results), r.LatencyMS, r.CreatedAt); err != nil {
			return fmt.Errorf("insert audit record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// RecentRecords returns up to limit newest audit records, newest first.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organisation_id, workspace_id, agent_id, agent_name,
		       request_id, session_id, direction, tool_name, decision, reason,
		       guardrail_results, latency_ms, created_at
		FROM audit_records
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		var results string
		var createdAt sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.OrganisationID, &r.WorkspaceID, &r.AgentID, &r.AgentName,
			&r.RequestID, &r.SessionID, &r.Direction, &r.ToolName, &r.Decision, &r.Reason,
			&results, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if results != "" {
			_ = json.Unmarshal([]byte(results), &r.Guardrails)
		}
		r.CreatedAt = createdAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ audit.Store = (*Store)(nil)
