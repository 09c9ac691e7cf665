package guardrail

import (
	"encoding/json"
	"strings"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// scanContent derives the text a content-scanning guardrail inspects.
// Requests scan the JSON-serialised params. Responses scan the text of
// result.content items with type "text" when result.content is a typed
// item list, otherwise the JSON-serialised result.
func scanContent(msg *mcp.Message) string {
	switch msg.Direction {
	case mcp.DirectionRequest:
		params := msg.Params()
		if params == nil {
			return ""
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return ""
		}
		return string(raw)

	case mcp.DirectionResponse:
		result := msg.Result()
		if result == nil {
			return ""
		}
		if resultMap, ok := result.(map[string]any); ok {
			if items, ok := resultMap["content"].([]any); ok {
				return textItems(items)
			}
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return ""
		}
		return string(raw)

	default:
		return ""
	}
}

// textItems concatenates the text of typed content items with type "text".
func textItems(items []any) string {
	var parts []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if obj["type"] != "text" {
			continue
		}
		if text, ok := obj["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
