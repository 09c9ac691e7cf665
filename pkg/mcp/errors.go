package mcp

import "encoding/json"

// JSON-RPC error codes returned by the gateway. All governance and
// transport failures ride in-band in the response body with HTTP 200 so
// strict protocol clients can parse every outcome uniformly.
const (
	// CodeParseError indicates a malformed JSON body.
	CodeParseError = -32700
	// CodeGovernanceBlocked indicates a guardrail blocked the message.
	CodeGovernanceBlocked = -32001
	// CodeUpstreamError indicates the upstream call failed.
	CodeUpstreamError = -32003
	// CodeInternalError indicates an unexpected gateway failure.
	CodeInternalError = -32603
)

// ErrorObject is the error member of a JSON-RPC response.
type ErrorObject struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ErrorResponse is a complete JSON-RPC error envelope.
type ErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   ErrorObject     `json:"error"`
}

// NewErrorResponse builds a JSON-RPC error envelope. The id preserves the
// original request ID format; a nil id marshals as null per the JSON-RPC
// convention for undecodable requests.
func NewErrorResponse(id json.RawMessage, code int, message string, data map[string]any) []byte {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := ErrorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: ErrorObject{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	raw, _ := json.Marshal(resp)
	return raw
}
