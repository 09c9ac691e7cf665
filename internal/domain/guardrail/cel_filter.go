package guardrail

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// maxExpressionLength bounds cel_filter expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// celEnv is the shared environment for cel_filter expressions. Exposed
// variables: method, tool, direction (strings) and params (map).
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("method", cel.StringType),
		cel.Variable("tool", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
})

// celFilter evaluates a CEL boolean expression over the message.
// A true result blocks (or warns, per config action).
type celFilter struct {
	directions DirectionSet
	action     string // block or warn
	expression string
	program    cel.Program
}

func newCELFilter(config map[string]any) (Guardrail, error) {
	expression := cfgString(config, "expression", "")
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d chars (max %d)", len(expression), maxExpressionLength)
	}

	action := cfgString(config, "action", "block")
	if action != "block" && action != "warn" {
		return nil, fmt.Errorf("action must be block or warn, got %q", action)
	}

	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	program, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}

	return &celFilter{
		directions: ParseDirection(cfgString(config, "direction", ""), DirRequest),
		action:     action,
		expression: expression,
		program:    program,
	}, nil
}

func (f *celFilter) Type() string             { return TypeCELFilter }
func (f *celFilter) Directions() DirectionSet { return f.directions }

func (f *celFilter) Evaluate(_ context.Context, msg *mcp.Message, _ *EvalContext) (Outcome, error) {
	if !f.directions.Supports(msg.Direction) {
		return Allow(nil), nil
	}

	params := msg.Params()
	if params == nil {
		params = map[string]any{}
	}
	out, _, err := f.program.Eval(map[string]any{
		"method":    msg.Method(),
		"tool":      msg.ToolName(),
		"direction": msg.Direction.String(),
		"params":    params,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("evaluate expression: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return Outcome{}, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	if !matched {
		return Allow(nil), nil
	}

	details := map[string]any{"expression": f.expression}
	if f.action == "warn" {
		return LogOnly("Expression filter matched", details), nil
	}
	return Block("Blocked by expression filter", SeverityError, details), nil
}

var _ Guardrail = (*celFilter)(nil)
