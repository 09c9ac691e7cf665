// Package policy defines the three-level policy model and its resolution
// rules: organisation-wide policies, workspace overrides, and agent
// overrides, with more-specific scopes winning per guardrail type.
package policy

import "time"

// ScopeLevel identifies where in the hierarchy a policy binds.
type ScopeLevel string

const (
	ScopeOrganisation ScopeLevel = "organisation"
	ScopeWorkspace    ScopeLevel = "workspace"
	ScopeAgent        ScopeLevel = "agent"
)

// Priority orders scope levels for most-specific-wins resolution.
// Higher is more specific.
func (s ScopeLevel) Priority() int {
	switch s {
	case ScopeAgent:
		return 2
	case ScopeWorkspace:
		return 1
	default:
		return 0
	}
}

// Action is the policy-level action hint attached to the guardrail config.
type Action string

const (
	ActionBlock     Action = "block"
	ActionRedact    Action = "redact"
	ActionAlert     Action = "alert"
	ActionAuditOnly Action = "audit_only"
)

// GuardrailCategory classifies guardrail definitions.
type GuardrailCategory string

const (
	CategoryRBAC      GuardrailCategory = "rbac"
	CategoryPII       GuardrailCategory = "pii"
	CategoryContent   GuardrailCategory = "content"
	CategoryRateLimit GuardrailCategory = "rate_limit"
)

// GuardrailDefinition is a catalog entry. Type is the unique tag that
// keys the registry; DefaultConfig supplies values for keys the policy
// config does not specify.
type GuardrailDefinition struct {
	ID            string
	Type          string
	DisplayName   string
	Category      GuardrailCategory
	DefaultConfig map[string]any
	Active        bool
}

// Policy binds one guardrail to one scope. WorkspaceID and AgentID are
// empty when unset; AgentID set implies WorkspaceID set.
type Policy struct {
	ID             string
	OrganisationID string
	WorkspaceID    string
	AgentID        string
	GuardrailID    string

	// GuardrailType and GuardrailDefaults are denormalised from the
	// definition by the store join so resolution needs no second lookup.
	GuardrailType     string
	GuardrailDefaults map[string]any

	Name        string
	Description string
	Config      map[string]any
	Action      Action
	Enabled     bool
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// Scope computes the policy's scope level from its bound IDs.
func (p *Policy) Scope() ScopeLevel {
	if p.AgentID != "" {
		return ScopeAgent
	}
	if p.WorkspaceID != "" {
		return ScopeWorkspace
	}
	return ScopeOrganisation
}

// EffectivePolicySet is the collected set of enabled policies applicable
// at (org, workspace, agent). This is the display/audit view; the
// pipeline consumes the most-specific-wins view from EffectiveConfigs.
type EffectivePolicySet struct {
	OrganisationID string
	WorkspaceID    string
	AgentID        string
	Policies       []Policy
}
