package decision

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cerberus-gate/cerberus/internal/domain/audit"
	"github.com/cerberus-gate/cerberus/internal/domain/guardrail"
	"github.com/cerberus-gate/cerberus/internal/domain/policy"
)

// systemGuardrail tags events the engine synthesises for failures that
// happen outside any single guardrail.
const systemGuardrail = "system"

// Internal error classes recorded on fail-closed decisions.
const (
	errTypeGuardrail = "guardrail_error"
	errTypeDatabase  = "database_error"
	errTypeInternal  = "internal_error"
)

// AuditSink receives one record per decision. Satisfied by
// audit.Emitter.
type AuditSink interface {
	Emit(record audit.Record)
}

// Engine is the total decision function: resolve effective policies,
// run the pipeline, audit the result. Any failure along the way becomes
// a block decision with a system event; Evaluate never returns an
// error.
type Engine struct {
	policies *policy.Resolver
	pipeline *Pipeline
	audits   AuditSink
	logger   *slog.Logger
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine clock. Tests only.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a decision engine. audits may be nil to disable
// audit emission.
func NewEngine(policies *policy.Resolver, pipeline *Pipeline, audits AuditSink, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		policies: policies,
		pipeline: pipeline,
		audits:   audits,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides one message. The returned response is always
// non-nil; failures fail closed as block decisions carrying a single
// system event with the error class in its details.
func (e *Engine) Evaluate(ctx context.Context, req *Request) *Response {
	start := e.now()
	decisionID := NewDecisionID()

	resp := e.decide(ctx, decisionID, req)

	latency := e.now().Sub(start)
	e.emitAudit(req, resp, latency)

	e.logger.Info("decision",
		"decision_id", resp.DecisionID,
		"request_id", req.RequestID,
		"direction", req.Direction.String(),
		"action", string(resp.Action),
		"allow", resp.Allow,
		"latency_ms", latency.Milliseconds(),
	)
	return resp
}

func (e *Engine) decide(ctx context.Context, decisionID string, req *Request) *Response {
	set, err := e.policies.Resolve(ctx, req.Agent.OrganisationID, req.Agent.WorkspaceID, req.Agent.AgentID)
	if err != nil {
		e.logger.Error("policy resolution failed",
			"decision_id", decisionID,
			"organisation_id", req.Agent.OrganisationID,
			"error", err,
		)
		return e.failClosed(decisionID, req, errTypeDatabase, err)
	}

	configs := policy.EffectiveConfigs(set.Policies)

	resp, err := e.pipeline.Execute(ctx, decisionID, configs, req)
	if err != nil {
		e.logger.Error("pipeline execution failed",
			"decision_id", decisionID,
			"error", err,
		)
		return e.failClosed(decisionID, req, classifyPipelineError(err), err)
	}
	return resp
}

func classifyPipelineError(err error) string {
	switch err.(type) {
	case *guardrail.ConfigError, *guardrail.ExecutionError:
		return errTypeGuardrail
	default:
		return errTypeInternal
	}
}

// failClosed builds the block decision for an internal failure. The
// error text stays out of the response reasons so it never reaches the
// caller; it lives in the event details for the audit trail.
func (e *Engine) failClosed(decisionID string, req *Request, errType string, err error) *Response {
	return &Response{
		DecisionID: decisionID,
		Allow:      false,
		Action:     blockAction(req.Direction),
		Reasons:    []string{"Internal error during decision"},
		Events: []Event{{
			GuardrailType: systemGuardrail,
			Triggered:     true,
			ActionTaken:   "block",
			Severity:      string(guardrail.SeverityCritical),
			Details: map[string]any{
				"error_type": errType,
				"error":      err.Error(),
			},
		}},
	}
}

func (e *Engine) emitAudit(req *Request, resp *Response, latency time.Duration) {
	if e.audits == nil {
		return
	}

	guardrails := make(map[string]audit.GuardrailResult, len(resp.Events))
	for _, ev := range resp.Events {
		guardrails[ev.GuardrailType] = audit.GuardrailResult{
			Triggered:   ev.Triggered,
			ActionTaken: ev.ActionTaken,
			Details:     ev.Details,
			Severity:    ev.Severity,
		}
	}

	var toolName string
	if req.Message != nil {
		toolName = req.Message.ToolName()
	}

	e.audits.Emit(audit.Record{
		ID:             uuid.NewString(),
		OrganisationID: req.Agent.OrganisationID,
		WorkspaceID:    req.Agent.WorkspaceID,
		AgentID:        req.Agent.AgentID,
		AgentName:      req.Agent.AgentName,
		RequestID:      req.RequestID,
		SessionID:      req.SessionID,
		Direction:      req.Direction.String(),
		ToolName:       toolName,
		Decision:       string(resp.Action),
		Reason:         strings.Join(resp.Reasons, "; "),
		Guardrails:     guardrails,
		LatencyMS:      latency.Milliseconds(),
		CreatedAt:      e.now().UTC(),
	})
}
