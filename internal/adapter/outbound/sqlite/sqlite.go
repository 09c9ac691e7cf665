// Package sqlite implements the durable store backend on an embedded
// SQLite database. One Store satisfies the tenant, credential, policy,
// and audit store interfaces so the sqlite backend swaps in for the
// memory adapter with a single construction.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS organisations (
	id         TEXT PRIMARY KEY,
	slug       TEXT NOT NULL,
	name       TEXT NOT NULL,
	settings   TEXT NOT NULL DEFAULT '{}',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP,
	deleted_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS workspaces (
	id              TEXT PRIMARY KEY,
	organisation_id TEXT NOT NULL REFERENCES organisations(id),
	slug            TEXT NOT NULL,
	environment     TEXT NOT NULL DEFAULT 'development',
	upstream_url    TEXT NOT NULL DEFAULT '',
	settings        TEXT NOT NULL DEFAULT '{}',
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      TIMESTAMP,
	deleted_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agent_credentials (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id),
	name         TEXT NOT NULL,
	token_hash   TEXT NOT NULL UNIQUE,
	token_prefix TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	revoked      INTEGER NOT NULL DEFAULT 0,
	expires_at   TIMESTAMP,
	last_used_at TIMESTAMP,
	usage_count  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agent_credentials_token_hash
	ON agent_credentials(token_hash);

CREATE TABLE IF NOT EXISTS guardrail_definitions (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL UNIQUE,
	display_name   TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	default_config TEXT NOT NULL DEFAULT '{}',
	active         INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS policies (
	id              TEXT PRIMARY KEY,
	organisation_id TEXT NOT NULL REFERENCES organisations(id),
	workspace_id    TEXT NOT NULL DEFAULT '',
	agent_id        TEXT NOT NULL DEFAULT '',
	guardrail_id    TEXT NOT NULL REFERENCES guardrail_definitions(id),
	name            TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	config          TEXT NOT NULL DEFAULT '{}',
	action          TEXT NOT NULL DEFAULT 'block',
	enabled         INTEGER NOT NULL DEFAULT 1,
	created_at      TIMESTAMP,
	deleted_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_policies_scope
	ON policies(organisation_id, workspace_id, agent_id);

CREATE TABLE IF NOT EXISTS audit_records (
	id                TEXT PRIMARY KEY,
	organisation_id   TEXT NOT NULL,
	workspace_id      TEXT NOT NULL,
	agent_id          TEXT NOT NULL DEFAULT '',
	agent_name        TEXT NOT NULL DEFAULT '',
	request_id        TEXT NOT NULL DEFAULT '',
	session_id        TEXT NOT NULL DEFAULT '',
	direction         TEXT NOT NULL,
	tool_name         TEXT NOT NULL DEFAULT '',
	decision          TEXT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	guardrail_results TEXT NOT NULL DEFAULT '{}',
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_records_request
	ON audit_records(request_id);
`

// Store is the SQLite-backed implementation of the outbound store
// ports. It satisfies tenant.Store and audit.Store directly; the
// credential and policy ports both name a Put method, so those are
// served through the Credentials and Policies facades.
type Store struct {
	db *sql.DB
}

// Credentials returns the credential.Store view of this database.
func (s *Store) Credentials() *CredentialStore {
	return &CredentialStore{store: s}
}

// Policies returns the policy.Store view of this database.
func (s *Store) Policies() *PolicyStore {
	return &PolicyStore{store: s}
}

// Open opens (creating if needed) the database at path and applies the
// schema. SQLite serialises writers; a single connection avoids
// SQLITE_BUSY churn under the gateway's write pattern.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
