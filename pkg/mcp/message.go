// Package mcp provides the JSON-RPC-shaped message envelope and codec
// utilities used by the Cerberus governance gateway.
package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction indicates the flow direction of a message through the gateway.
type Direction int

const (
	// DirectionRequest indicates a message flowing from agent to upstream.
	DirectionRequest Direction = iota
	// DirectionResponse indicates a message flowing from upstream to agent.
	DirectionResponse
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case DirectionRequest:
		return "request"
	case DirectionResponse:
		return "response"
	default:
		return "unknown"
	}
}

// MethodToolsCall is the JSON-RPC method that invokes a tool on the upstream.
// Tool-level guardrails (RBAC, per-tool rate limits) key off this method.
const MethodToolsCall = "tools/call"

// Message wraps a JSON-RPC-shaped envelope with gateway metadata.
// It stores both the raw bytes (for efficient passthrough) and the decoded
// value (for guardrail inspection). The decoded value is a generic JSON
// tree; guardrails that modify the message build a new Message from a
// mutated copy rather than touching the original.
type Message struct {
	// Raw contains the original bytes of the message.
	// Used for passthrough when no modification is needed.
	Raw []byte

	// Direction indicates whether this message is flowing from
	// agent to upstream or upstream to agent.
	Direction Direction

	// Decoded contains the parsed JSON object.
	// Nil only when the message was constructed without a body.
	Decoded map[string]any

	// Timestamp records when the message entered the gateway.
	Timestamp time.Time
}

// Decode parses raw JSON-RPC bytes into a Message with the given direction.
// The top-level value must be a JSON object.
func Decode(raw []byte, dir Direction) (*Message, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// FromValue builds a Message by marshalling a decoded JSON tree.
// Used when a guardrail produces a modified copy of a message.
func FromValue(value map[string]any, dir Direction) (*Message, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   value,
		Timestamp: time.Now(),
	}, nil
}

// Synthetic builds a Message for an inbound request that carried no JSON
// body. The method is set to "<VERB>:<path>" so method-level guardrails
// still see a stable identifier; tool extraction yields nothing.
func Synthetic(verb, path string, dir Direction) *Message {
	value := map[string]any{
		"jsonrpc": "2.0",
		"method":  verb + ":" + path,
	}
	raw, _ := json.Marshal(value)
	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   value,
		Timestamp: time.Now(),
	}
}

// Method returns the method field, or empty string if absent.
func (m *Message) Method() string {
	if m.Decoded == nil {
		return ""
	}
	method, _ := m.Decoded["method"].(string)
	return method
}

// IsToolCall returns true if this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == MethodToolsCall
}

// Params returns the params object, or nil if absent or not an object.
func (m *Message) Params() map[string]any {
	if m.Decoded == nil {
		return nil
	}
	params, _ := m.Decoded["params"].(map[string]any)
	return params
}

// Result returns the result value, or nil if absent.
func (m *Message) Result() any {
	if m.Decoded == nil {
		return nil
	}
	return m.Decoded["result"]
}

// ToolName returns params.name for a tools/call request, empty otherwise.
func (m *Message) ToolName() string {
	if !m.IsToolCall() {
		return ""
	}
	params := m.Params()
	if params == nil {
		return ""
	}
	name, _ := params["name"].(string)
	return name
}

// RawID extracts the request ID from the raw bytes as json.RawMessage,
// preserving the original format (number, string, or null).
// Returns nil if no ID is present.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}

// CloneValue returns a deep copy of the decoded JSON tree.
// Guardrails that rewrite message content operate on the copy so the
// original message is never mutated.
func (m *Message) CloneValue() map[string]any {
	if m.Decoded == nil {
		return nil
	}
	copied, _ := CopyValue(m.Decoded).(map[string]any)
	return copied
}

// CopyValue deep-copies a decoded JSON value. Maps and slices are copied
// recursively; scalars are returned as-is.
func CopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}
