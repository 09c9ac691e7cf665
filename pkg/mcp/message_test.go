package mcp

import (
	"encoding/json"
	"testing"
)

func TestDecodeToolCall(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fs/read","arguments":{"path":"/tmp"}}}`)
	msg, err := Decode(raw, DirectionRequest)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !msg.IsToolCall() {
		t.Error("expected IsToolCall to be true")
	}
	if got := msg.Method(); got != "tools/call" {
		t.Errorf("Method = %q, want tools/call", got)
	}
	if got := msg.ToolName(); got != "fs/read" {
		t.Errorf("ToolName = %q, want fs/read", got)
	}
	if got := string(msg.RawID()); got != "1" {
		t.Errorf("RawID = %s, want 1", got)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`{not json`), DirectionRequest); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Decode([]byte(`[1,2,3]`), DirectionRequest); err == nil {
		t.Error("expected error for non-object body")
	}
}

func TestToolNameNonToolCall(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	msg, err := Decode(raw, DirectionRequest)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := msg.ToolName(); got != "" {
		t.Errorf("ToolName = %q, want empty for non tools/call", got)
	}
}

func TestRawIDPreservesFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"number", `{"jsonrpc":"2.0","id":42,"method":"ping"}`, "42"},
		{"string", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, `"abc"`},
		{"null", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, "null"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := Decode([]byte(tt.raw), DirectionRequest)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got := string(msg.RawID()); got != tt.want {
				t.Errorf("RawID = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCloneValueIsolation(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"hello"}]}}`)
	msg, err := Decode(raw, DirectionResponse)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	clone := msg.CloneValue()
	result := clone["result"].(map[string]any)
	content := result["content"].([]any)
	item := content[0].(map[string]any)
	item["text"] = "mutated"

	origItem := msg.Decoded["result"].(map[string]any)["content"].([]any)[0].(map[string]any)
	if origItem["text"] != "hello" {
		t.Errorf("mutation of clone leaked into original: %v", origItem["text"])
	}
}

func TestSyntheticMessage(t *testing.T) {
	t.Parallel()

	msg := Synthetic("GET", "/tools", DirectionRequest)
	if got := msg.Method(); got != "GET:/tools" {
		t.Errorf("Method = %q, want GET:/tools", got)
	}
	if msg.IsToolCall() {
		t.Error("synthetic message should not be a tool call")
	}
	if msg.ToolName() != "" {
		t.Error("synthetic message should have no tool name")
	}
}

func TestFromValueRoundTrip(t *testing.T) {
	t.Parallel()

	value := map[string]any{
		"jsonrpc": "2.0",
		"id":      float64(7),
		"method":  "tools/call",
		"params":  map[string]any{"name": "search"},
	}
	msg, err := FromValue(value, DirectionRequest)
	if err != nil {
		t.Fatalf("FromValue failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Raw, &decoded); err != nil {
		t.Fatalf("Raw is not valid JSON: %v", err)
	}
	if decoded["method"] != "tools/call" {
		t.Errorf("round trip lost method: %v", decoded["method"])
	}
	if msg.ToolName() != "search" {
		t.Errorf("ToolName = %q, want search", msg.ToolName())
	}
}

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	raw := NewErrorResponse(json.RawMessage("3"), CodeGovernanceBlocked, "Request blocked by governance policy: rbac", map[string]any{
		"decision_id": "dec_abc123",
	})

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if resp["id"] != float64(3) {
		t.Errorf("id = %v, want 3", resp["id"])
	}
	errObj := resp["error"].(map[string]any)
	if errObj["code"] != float64(-32001) {
		t.Errorf("code = %v, want -32001", errObj["code"])
	}
	data := errObj["data"].(map[string]any)
	if data["decision_id"] != "dec_abc123" {
		t.Errorf("data.decision_id = %v", data["decision_id"])
	}
}

func TestNewErrorResponseNilID(t *testing.T) {
	t.Parallel()

	raw := NewErrorResponse(nil, CodeParseError, "Parse error", nil)
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if id, present := resp["id"]; !present || id != nil {
		t.Errorf("id = %v, want explicit null", id)
	}
}
