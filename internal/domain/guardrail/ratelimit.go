package guardrail

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// Rate-limit windows and class defaults.
const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	defaultPerMinuteLimit = 100
	defaultPerHourLimit   = 1000
)

// rateLimitGuardrail enforces a sliding-window limit per agent, with
// optional per-tool overrides. Request-only: responses do not consume
// quota. Counting is delegated to the atomic counter store.
type rateLimitGuardrail struct {
	typeTag       string
	window        time.Duration
	limit         int64
	perToolLimits map[string]int64
	counters      ratelimit.CounterStore
}

// rateLimitFactory binds one window class to the counter store.
func rateLimitFactory(typeTag string, counters ratelimit.CounterStore) Factory {
	window := minuteWindow
	defaultLimit := int64(defaultPerMinuteLimit)
	if typeTag == TypeRateLimitPerHour {
		window = hourWindow
		defaultLimit = defaultPerHourLimit
	}

	return func(config map[string]any) (Guardrail, error) {
		limit := cfgInt(config, "limit", defaultLimit)
		if limit <= 0 {
			return nil, fmt.Errorf("limit must be positive, got %d", limit)
		}

		perTool := make(map[string]int64)
		for tool, raw := range cfgMap(config, "per_tool_limits") {
			// Values are either a bare number or an object {limit: n}.
			if n, ok := anyToInt(raw); ok {
				perTool[tool] = n
				continue
			}
			if obj, ok := raw.(map[string]any); ok {
				if n, ok := anyToInt(obj["limit"]); ok {
					perTool[tool] = n
					continue
				}
			}
			return nil, fmt.Errorf("per_tool_limits[%s]: expected number or {limit}, got %T", tool, raw)
		}

		return &rateLimitGuardrail{
			typeTag:       typeTag,
			window:        window,
			limit:         limit,
			perToolLimits: perTool,
			counters:      counters,
		}, nil
	}
}

func (g *rateLimitGuardrail) Type() string             { return g.typeTag }
func (g *rateLimitGuardrail) Directions() DirectionSet { return DirRequest }

func (g *rateLimitGuardrail) Evaluate(ctx context.Context, msg *mcp.Message, ec *EvalContext) (Outcome, error) {
	if ec == nil || ec.Agent == nil {
		return Outcome{}, fmt.Errorf("missing agent context")
	}

	limit := g.limit
	tool := ratelimit.GlobalScope
	if msg.IsToolCall() {
		if override, ok := g.perToolLimits[msg.ToolName()]; ok {
			limit = override
			tool = msg.ToolName()
		}
	}

	key := ratelimit.FormatKey(ec.Agent.OrganisationID, ec.Agent.WorkspaceID, ec.Agent.AgentID, tool, g.window)
	result, err := g.counters.CheckAndIncrement(ctx, key, limit, g.window)
	if err != nil {
		return Outcome{}, fmt.Errorf("counter store: %w", err)
	}

	if result.Allowed {
		return Allow(map[string]any{
			"limit":   limit,
			"current": result.Current,
		}), nil
	}

	outcome := Block(
		fmt.Sprintf("Rate limit exceeded: %d per %s", limit, g.window),
		SeverityWarning,
		map[string]any{
			"limit":               limit,
			"current":             result.Current,
			"window_seconds":      int64(g.window.Seconds()),
			"retry_after_seconds": int64(math.Ceil(result.RetryAfter.Seconds())) + 1,
		},
	)
	// The decision stays a block; the event records a throttle so audit
	// consumers can tell quota exhaustion from policy denial.
	outcome.EventAction = "throttle"
	return outcome, nil
}

var _ Guardrail = (*rateLimitGuardrail)(nil)
