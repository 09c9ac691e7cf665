package decision

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/guardrail"
	"github.com/cerberus-gate/cerberus/internal/domain/policy"
	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAgent() *credential.AgentContext {
	return &credential.AgentContext{
		AgentID:        "agent-1",
		AgentName:      "test-agent",
		WorkspaceID:    "ws-1",
		OrganisationID: "org-1",
		UpstreamURL:    "http://upstream.local",
	}
}

func toolCall(t *testing.T, tool string, args map[string]any) *mcp.Message {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      tool,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal tool call: %v", err)
	}
	msg, err := mcp.Decode(raw, mcp.DirectionRequest)
	if err != nil {
		t.Fatalf("decode tool call: %v", err)
	}
	return msg
}

// fakeCounters is a CounterStore with a scripted verdict.
type fakeCounters struct {
	allowed bool
	current int64
	err     error
	keys    []string
}

func (f *fakeCounters) CheckAndIncrement(_ context.Context, key string, limit int64, _ time.Duration) (ratelimit.Result, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return ratelimit.Result{}, f.err
	}
	if !f.allowed {
		return ratelimit.Result{Allowed: false, Current: f.current, RetryAfter: 30 * time.Second}, nil
	}
	return ratelimit.Result{Allowed: true, Current: f.current}, nil
}

func (f *fakeCounters) CurrentCount(context.Context, string, time.Duration) (int64, error) {
	return f.current, nil
}

func (f *fakeCounters) Reset(context.Context, string) error { return nil }

func newTestPipeline(t *testing.T, counters ratelimit.CounterStore, opts ...PipelineOption) *Pipeline {
	t.Helper()
	if counters == nil {
		counters = &fakeCounters{allowed: true}
	}
	return NewPipeline(guardrail.NewRegistry(counters), testLogger(), opts...)
}

// agentPolicy binds a guardrail type at agent scope with the given
// config, carrying no definition defaults.
func agentPolicy(id, guardrailType string, config map[string]any) policy.Policy {
	return policy.Policy{
		ID:             id,
		OrganisationID: "org-1",
		WorkspaceID:    "ws-1",
		AgentID:        "agent-1",
		GuardrailType:  guardrailType,
		Name:           id,
		Config:         config,
		Action:         policy.ActionBlock,
		Enabled:        true,
	}
}
