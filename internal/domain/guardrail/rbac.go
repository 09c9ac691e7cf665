package guardrail

import (
	"context"
	"fmt"
	"path"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// rbacGuardrail gates tool invocations against allow/deny glob lists.
// Request-only: responses carry no tool invocation to gate.
type rbacGuardrail struct {
	allowedTools  []string
	deniedTools   []string
	defaultAction string
}

func newRBAC(config map[string]any) (Guardrail, error) {
	g := &rbacGuardrail{
		allowedTools:  cfgStringSlice(config, "allowed_tools"),
		deniedTools:   cfgStringSlice(config, "denied_tools"),
		defaultAction: cfgString(config, "default_action", "deny"),
	}
	if g.defaultAction != "allow" && g.defaultAction != "deny" {
		return nil, fmt.Errorf("default_action must be allow or deny, got %q", g.defaultAction)
	}
	// Surface malformed globs at construction rather than at match time.
	for _, pattern := range append(append([]string{}, g.deniedTools...), g.allowedTools...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", pattern, err)
		}
	}
	return g, nil
}

func (g *rbacGuardrail) Type() string             { return TypeRBAC }
func (g *rbacGuardrail) Directions() DirectionSet { return DirRequest }

// Evaluate applies the fixed precedence: denied list, allowed list,
// deny-by-omission when an allowlist exists, then the default action.
func (g *rbacGuardrail) Evaluate(_ context.Context, msg *mcp.Message, _ *EvalContext) (Outcome, error) {
	if !msg.IsToolCall() {
		return Allow(nil), nil
	}
	tool := msg.ToolName()
	if tool == "" {
		return Allow(nil), nil
	}

	if pattern := matchAny(g.deniedTools, tool); pattern != "" {
		return Block(
			fmt.Sprintf("Tool '%s' is explicitly denied", tool),
			SeverityError,
			map[string]any{"tool": tool, "matched_pattern": pattern, "rule": "denied_tools"},
		), nil
	}

	if pattern := matchAny(g.allowedTools, tool); pattern != "" {
		return Allow(map[string]any{"tool": tool, "matched_pattern": pattern}), nil
	}

	if len(g.allowedTools) > 0 {
		return Block(
			fmt.Sprintf("Tool '%s' is not in the allowed list", tool),
			SeverityError,
			map[string]any{"tool": tool, "rule": "deny_by_omission"},
		), nil
	}

	if g.defaultAction == "deny" {
		return Block(
			fmt.Sprintf("Tool '%s' denied by default action", tool),
			SeverityError,
			map[string]any{"tool": tool, "rule": "default_action"},
		), nil
	}
	return Allow(map[string]any{"tool": tool, "rule": "default_action"}), nil
}

// matchAny returns the first matching glob, or empty string.
// Globs are shell-style: * and ? match within a path segment only, so
// "filesystem/*" matches "filesystem/read" but not "filesystem/sub/read".
// Matching is case-sensitive.
func matchAny(patterns []string, tool string) string {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, tool); err == nil && ok {
			return pattern
		}
	}
	return ""
}

var _ Guardrail = (*rbacGuardrail)(nil)
