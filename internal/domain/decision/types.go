// Package decision orchestrates policy resolution, guardrail pipeline
// execution, and audit emission into a total decision engine: every
// evaluation returns a typed decision, never an error.
package decision

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// Action is the decision outcome.
type Action string

const (
	ActionAllow         Action = "allow"
	ActionBlockRequest  Action = "block_request"
	ActionBlockResponse Action = "block_response"
	ActionModify        Action = "modify"
)

// blockAction maps a direction to its block action.
func blockAction(dir mcp.Direction) Action {
	if dir == mcp.DirectionResponse {
		return ActionBlockResponse
	}
	return ActionBlockRequest
}

// Request is one message to decide on.
type Request struct {
	Direction mcp.Direction
	Message   *mcp.Message
	Agent     *credential.AgentContext
	RequestID string
	SessionID string

	// Metadata carries correlation data across stages; the response
	// stage carries the request stage's decision id here.
	Metadata map[string]any
}

// Event is one guardrail's contribution to a decision.
type Event struct {
	GuardrailType string         `json:"guardrail_type"`
	Triggered     bool           `json:"triggered"`
	ActionTaken   string         `json:"action_taken"`
	Details       map[string]any `json:"details,omitempty"`
	Severity      string         `json:"severity"`
}

// Response is the decision for one message.
type Response struct {
	DecisionID string
	Allow      bool
	Action     Action
	Reasons    []string
	Events     []Event

	// Modified is the replacement message when Action is modify.
	Modified *mcp.Message
}

// TriggeredGuardrails lists the types whose events triggered, in
// pipeline order. Used by the error envelope and audit record.
func (r *Response) TriggeredGuardrails() []string {
	var out []string
	for _, ev := range r.Events {
		if ev.Triggered {
			out = append(out, ev.GuardrailType)
		}
	}
	return out
}

// NewDecisionID mints a short decision identifier.
func NewDecisionID() string {
	return "dec_" + shortID()
}

// NewRequestID mints a short gateway request identifier.
func NewRequestID() string {
	return "req_" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
