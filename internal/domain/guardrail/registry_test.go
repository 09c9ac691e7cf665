package guardrail

import (
	"errors"
	"testing"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

func TestRegistryOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(newFakeCounters())
	want := []string{
		TypeRBAC,
		TypePIISSN,
		TypePIICreditCard,
		TypePIIEmail,
		TypePIIPhone,
		TypePIIIPAddress,
		TypeContentFilter,
		TypeCELFilter,
		TypeRateLimitPerMinute,
		TypeRateLimitPerHour,
	}

	got := r.Types()
	if len(got) != len(want) {
		t.Fatalf("Types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryBuild(t *testing.T) {
	t.Parallel()

	r := NewRegistry(newFakeCounters())

	g, err := r.Build(TypeRBAC, map[string]any{"default_action": "allow"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Type() != TypeRBAC {
		t.Errorf("Type = %q", g.Type())
	}

	_, err = r.Build("unknown_type", nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigError for unknown type", err)
	}

	_, err = r.Build(TypeContentFilter, map[string]any{
		"regex_patterns": []any{map[string]any{"name": "x", "pattern": "(", "action": "block"}},
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigError for bad regex", err)
	}
}

func TestGuardrailDirections(t *testing.T) {
	t.Parallel()

	r := NewRegistry(newFakeCounters())

	rbac, err := r.Build(TypeRBAC, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rbac.Directions().Supports(mcp.DirectionResponse) {
		t.Error("rbac must be request-only")
	}

	pii, err := r.Build(TypePIISSN, map[string]any{"direction": "both"})
	if err != nil {
		t.Fatal(err)
	}
	if !pii.Directions().Supports(mcp.DirectionRequest) || !pii.Directions().Supports(mcp.DirectionResponse) {
		t.Error("pii with direction=both must support both directions")
	}

	limiter, err := r.Build(TypeRateLimitPerMinute, nil)
	if err != nil {
		t.Fatal(err)
	}
	if limiter.Directions().Supports(mcp.DirectionResponse) {
		t.Error("rate limiters must be request-only")
	}
}
