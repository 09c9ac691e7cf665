package guardrail

import (
	"context"
	"strings"
	"testing"
)

func TestCELFilterBlocks(t *testing.T) {
	t.Parallel()

	g := mustBuild(t, newCELFilter, map[string]any{
		"expression": `tool == "fs/delete"`,
	})

	outcome, err := g.Evaluate(context.Background(), toolCall(t, "fs/delete"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != KindBlock {
		t.Errorf("Kind = %v, want Block", outcome.Kind)
	}

	outcome, err = g.Evaluate(context.Background(), toolCall(t, "fs/read"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != KindAllow {
		t.Errorf("Kind = %v, want Allow for non-matching tool", outcome.Kind)
	}
}

func TestCELFilterWarnAction(t *testing.T) {
	t.Parallel()

	g := mustBuild(t, newCELFilter, map[string]any{
		"expression": `method == "tools/call"`,
		"action":     "warn",
	})

	outcome, err := g.Evaluate(context.Background(), toolCall(t, "anything"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != KindLogOnly {
		t.Errorf("Kind = %v, want LogOnly", outcome.Kind)
	}
}

func TestCELFilterParamsAccess(t *testing.T) {
	t.Parallel()

	g := mustBuild(t, newCELFilter, map[string]any{
		"expression": `tool.startsWith("admin/") && has(params.arguments)`,
	})

	msg := toolCall(t, "admin/grant")
	msg.Decoded["params"].(map[string]any)["arguments"] = map[string]any{"role": "root"}
	rebuilt, err := remarshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := g.Evaluate(context.Background(), rebuilt, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != KindBlock {
		t.Errorf("Kind = %v, want Block", outcome.Kind)
	}
}

func TestCELFilterConfigErrors(t *testing.T) {
	t.Parallel()

	if _, err := newCELFilter(map[string]any{}); err == nil {
		t.Error("expected error for missing expression")
	}
	if _, err := newCELFilter(map[string]any{"expression": `tool ==`}); err == nil {
		t.Error("expected error for malformed expression")
	}
	if _, err := newCELFilter(map[string]any{"expression": `tool`}); err == nil {
		t.Error("expected error for non-bool expression")
	}
	long := strings.Repeat("a", maxExpressionLength+1)
	if _, err := newCELFilter(map[string]any{"expression": long}); err == nil {
		t.Error("expected error for oversized expression")
	}
}
