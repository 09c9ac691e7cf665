// Package audit defines the append-only decision trace and the async
// emitter that writes it off the request hot path.
package audit

import "time"

// GuardrailResult is one guardrail's contribution to a decision.
type GuardrailResult struct {
	Triggered   bool           `json:"triggered"`
	ActionTaken string         `json:"action_taken"`
	Details     map[string]any `json:"details,omitempty"`
	Severity    string         `json:"severity"`
}

// Record is one row per decision. Records hold denormalised keys only;
// the referenced rows may be tombstoned later. Immutable after write.
type Record struct {
	ID             string                     `json:"id"`
	OrganisationID string                     `json:"organisation_id"`
	WorkspaceID    string                     `json:"workspace_id"`
	AgentID        string                     `json:"agent_id,omitempty"`
	AgentName      string                     `json:"agent_name"`
	RequestID      string                     `json:"request_id"`
	SessionID      string                     `json:"session_id,omitempty"`
	Direction      string                     `json:"direction"`
	ToolName       string                     `json:"tool_name,omitempty"`
	Decision       string                     `json:"decision"`
	Reason         string                     `json:"reason,omitempty"`
	Guardrails     map[string]GuardrailResult `json:"guardrail_results,omitempty"`
	LatencyMS      int64                      `json:"latency_ms"`
	CreatedAt      time.Time                  `json:"created_at"`
}
