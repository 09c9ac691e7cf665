package guardrail

import (
	"context"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// DirectionSet is the set of message directions a guardrail instance
// evaluates. Instances outside the current direction are skipped by the
// pipeline without being evaluated.
type DirectionSet uint8

const (
	DirRequest  DirectionSet = 1 << iota // evaluates requests
	DirResponse                          // evaluates responses
	DirBoth     = DirRequest | DirResponse
)

// Supports reports whether the set includes the given direction.
func (d DirectionSet) Supports(dir mcp.Direction) bool {
	switch dir {
	case mcp.DirectionRequest:
		return d&DirRequest != 0
	case mcp.DirectionResponse:
		return d&DirResponse != 0
	default:
		return false
	}
}

// ParseDirection maps a config direction value to a DirectionSet.
// Unrecognised values fall back to the provided default.
func ParseDirection(value string, fallback DirectionSet) DirectionSet {
	switch value {
	case "request":
		return DirRequest
	case "response":
		return DirResponse
	case "both":
		return DirBoth
	default:
		return fallback
	}
}

// EvalContext carries the per-request identity and correlation data a
// guardrail may need beyond the message itself.
type EvalContext struct {
	Agent     *credential.AgentContext
	Direction mcp.Direction
	RequestID string
	Metadata  map[string]any
}

// Guardrail is one atomic governance check. Construction validates the
// config eagerly; after that instances hold no per-evaluation state and
// are safe for concurrent reuse across decisions.
type Guardrail interface {
	// Type returns the registry tag.
	Type() string

	// Directions returns the directions this instance evaluates,
	// after applying any config-level direction narrowing.
	Directions() DirectionSet

	// Evaluate runs the check. A returned error is a runtime failure
	// (classified as ExecutionError by the pipeline); governance
	// outcomes including blocks are values, not errors.
	Evaluate(ctx context.Context, msg *mcp.Message, ec *EvalContext) (Outcome, error)
}

// Factory constructs a guardrail instance from an effective config.
type Factory func(config map[string]any) (Guardrail, error)
