// Package credential implements bearer credential resolution for agents.
package credential

import (
	"errors"
	"time"
)

// ErrInvalidCredential is returned for every credential failure mode:
// missing or malformed bearer scheme, unknown digest, inactive, revoked,
// expired, or missing workspace. Collapsing the modes prevents credential
// enumeration; the audit log distinguishes them internally.
var ErrInvalidCredential = errors.New("invalid credential")

// AgentCredential is an opaque bearer grant usable by one non-human agent.
// The raw token is never stored; only its digest.
type AgentCredential struct {
	ID          string
	WorkspaceID string
	Name        string
	TokenHash   string
	TokenPrefix string
	Active      bool
	Revoked     bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	UsageCount  int64
	CreatedAt   time.Time
}

// Valid reports whether the credential can authenticate a request now.
// Revoked credentials are terminal; expiry is checked against now.
func (c *AgentCredential) Valid(now time.Time) bool {
	if !c.Active || c.Revoked {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// AgentContext is the runtime identity produced by credential resolution.
// It is immutable and carried through the proxy flow; it has no
// persistent identity of its own.
type AgentContext struct {
	AgentID        string
	AgentName      string
	WorkspaceID    string
	OrganisationID string
	UpstreamURL    string
}
