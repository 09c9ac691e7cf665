// Package guardrail implements the guardrail suite: RBAC, PII detection
// with validation and redaction, content filtering, CEL expression
// filtering, and sliding-window rate limiting. Guardrails are registered
// in a fixed order that defines pipeline execution order.
package guardrail

import (
	"fmt"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// Severity grades a guardrail finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Kind discriminates guardrail outcomes.
type Kind int

const (
	// KindAllow lets the message continue unchanged.
	KindAllow Kind = iota
	// KindBlock stops the pipeline and blocks the message.
	KindBlock
	// KindModify replaces the message with a modified copy and continues.
	KindModify
	// KindLogOnly allows the message but contributes a reason to the
	// decision (warnings, audit-only findings).
	KindLogOnly
)

// String returns the event action name for a Kind.
func (k Kind) String() string {
	switch k {
	case KindAllow:
		return "allow"
	case KindBlock:
		return "block"
	case KindModify:
		return "modify"
	case KindLogOnly:
		return "log_only"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of one guardrail evaluation.
type Outcome struct {
	Kind     Kind
	Reason   string
	Severity Severity
	Details  map[string]any

	// Modified carries the replacement message for KindModify.
	Modified *mcp.Message

	// EventAction overrides the action recorded in the decision event.
	// Used by rate limiters to record "throttle" while the decision
	// itself stays a block.
	EventAction string
}

// Allow builds an allow outcome.
func Allow(details map[string]any) Outcome {
	return Outcome{Kind: KindAllow, Details: details}
}

// Block builds a block outcome.
func Block(reason string, severity Severity, details map[string]any) Outcome {
	return Outcome{Kind: KindBlock, Reason: reason, Severity: severity, Details: details}
}

// Modify builds a modify outcome carrying the replacement message.
func Modify(modified *mcp.Message, reason string, details map[string]any) Outcome {
	return Outcome{Kind: KindModify, Reason: reason, Details: details, Modified: modified}
}

// LogOnly builds a log-only outcome.
func LogOnly(reason string, details map[string]any) Outcome {
	return Outcome{Kind: KindLogOnly, Reason: reason, Details: details}
}

// ConfigError reports a statically invalid guardrail config detected at
// construction (bad regex, bad CEL expression, wrong value type).
type ConfigError struct {
	GuardrailType string
	Err           error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("guardrail %s: invalid config: %v", e.GuardrailType, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ExecutionError reports a runtime failure inside a guardrail evaluation.
// The pipeline re-raises it so the decision engine can translate it into
// an internal-error block; it is never silently dropped.
type ExecutionError struct {
	GuardrailType string
	Err           error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("guardrail %s: evaluation failed: %v", e.GuardrailType, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
