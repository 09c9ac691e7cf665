package decision

import (
	"context"
	"log/slog"

	"github.com/cerberus-gate/cerberus/internal/domain/guardrail"
)

// Pipeline runs the configured guardrails against one message in
// registry order. It short-circuits on the first block, threads
// modifications forward, and aggregates one event per evaluated
// guardrail.
type Pipeline struct {
	registry *guardrail.Registry
	compiled *CompiledCache
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCompiledCache enables memoisation of built guardrail instances.
func WithCompiledCache(cache *CompiledCache) PipelineOption {
	return func(p *Pipeline) {
		p.compiled = cache
	}
}

// NewPipeline creates a Pipeline over the given registry.
func NewPipeline(registry *guardrail.Registry, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute evaluates the effective configs against the request's message.
// Errors are construction failures (*guardrail.ConfigError) or runtime
// failures (*guardrail.ExecutionError); the engine translates both into
// block decisions.
func (p *Pipeline) Execute(ctx context.Context, decisionID string, configs map[string]map[string]any, req *Request) (*Response, error) {
	resp := &Response{
		DecisionID: decisionID,
		Allow:      true,
		Action:     ActionAllow,
	}

	current := req.Message
	ec := &guardrail.EvalContext{
		Agent:     req.Agent,
		Direction: req.Direction,
		RequestID: req.RequestID,
		Metadata:  req.Metadata,
	}

	modified := false
	for _, guardrailType := range p.registry.Types() {
		config, ok := configs[guardrailType]
		if !ok {
			continue
		}

		g, err := p.build(guardrailType, config)
		if err != nil {
			return nil, err
		}
		if !g.Directions().Supports(req.Direction) {
			continue
		}

		outcome, err := g.Evaluate(ctx, current, ec)
		if err != nil {
			if _, ok := err.(*guardrail.ExecutionError); !ok {
				err = &guardrail.ExecutionError{GuardrailType: guardrailType, Err: err}
			}
			return nil, err
		}

		resp.Events = append(resp.Events, newEvent(guardrailType, outcome))

		switch outcome.Kind {
		case guardrail.KindBlock:
			resp.Allow = false
			resp.Action = blockAction(req.Direction)
			resp.Reasons = append(resp.Reasons, outcome.Reason)
			resp.Modified = nil
			return resp, nil

		case guardrail.KindModify:
			current = outcome.Modified
			modified = true
			resp.Reasons = append(resp.Reasons, outcome.Reason)

		case guardrail.KindLogOnly:
			resp.Reasons = append(resp.Reasons, outcome.Reason)
		}
	}

	if modified {
		resp.Action = ActionModify
		resp.Modified = current
	}
	return resp, nil
}

func (p *Pipeline) build(guardrailType string, config map[string]any) (guardrail.Guardrail, error) {
	if p.compiled == nil {
		return p.registry.Build(guardrailType, config)
	}
	key, ok := compiledKey(guardrailType, config)
	if !ok {
		return p.registry.Build(guardrailType, config)
	}
	if g, hit := p.compiled.get(key); hit {
		return g, nil
	}
	g, err := p.registry.Build(guardrailType, config)
	if err != nil {
		return nil, err
	}
	p.compiled.put(key, g)
	return g, nil
}

func newEvent(guardrailType string, outcome guardrail.Outcome) Event {
	action := outcome.Kind.String()
	if outcome.EventAction != "" {
		action = outcome.EventAction
	}
	severity := outcome.Severity
	if severity == "" {
		severity = guardrail.SeverityInfo
	}
	return Event{
		GuardrailType: guardrailType,
		Triggered:     outcome.Kind != guardrail.KindAllow,
		ActionTaken:   action,
		Details:       outcome.Details,
		Severity:      string(severity),
	}
}
