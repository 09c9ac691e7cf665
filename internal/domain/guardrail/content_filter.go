package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// contentFilter blocks or flags messages on keyword and regex rules.
// Keywords are case-insensitive substring checks; regexes are compiled
// case-insensitive at construction and run in config order.
type contentFilter struct {
	directions    DirectionSet
	blockKeywords []string
	warnKeywords  []string
	rules         []contentRule
}

type contentRule struct {
	name    string
	pattern *regexp.Regexp
	action  string // block or warn
}

func newContentFilter(config map[string]any) (Guardrail, error) {
	f := &contentFilter{
		directions: ParseDirection(cfgString(config, "direction", ""), DirBoth),
	}

	if keywords := cfgMap(config, "keywords"); keywords != nil {
		f.blockKeywords = lowerAll(cfgStringSlice(keywords, "block"))
		f.warnKeywords = lowerAll(cfgStringSlice(keywords, "warn"))
	}

	for _, raw := range cfgSliceOfMaps(config, "regex_patterns") {
		name := cfgString(raw, "name", "")
		patternSrc := cfgString(raw, "pattern", "")
		action := cfgString(raw, "action", "block")
		if patternSrc == "" {
			return nil, fmt.Errorf("regex rule %q: pattern is required", name)
		}
		if action != "block" && action != "warn" {
			return nil, fmt.Errorf("regex rule %q: action must be block or warn, got %q", name, action)
		}
		compiled, err := regexp.Compile("(?i)" + patternSrc)
		if err != nil {
			return nil, fmt.Errorf("regex rule %q: %w", name, err)
		}
		f.rules = append(f.rules, contentRule{name: name, pattern: compiled, action: action})
	}

	return f, nil
}

func cfgSliceOfMaps(cfg map[string]any, key string) []map[string]any {
	items, ok := cfg[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

func (f *contentFilter) Type() string             { return TypeContentFilter }
func (f *contentFilter) Directions() DirectionSet { return f.directions }

// Evaluate short-circuits on the first block keyword, then runs regex
// rules in order (block returns, warn accumulates), then warn keywords.
// Accumulated warnings without a block produce LogOnly.
func (f *contentFilter) Evaluate(_ context.Context, msg *mcp.Message, _ *EvalContext) (Outcome, error) {
	if !f.directions.Supports(msg.Direction) {
		return Allow(nil), nil
	}

	content := scanContent(msg)
	if content == "" {
		return Allow(nil), nil
	}
	lowered := strings.ToLower(content)

	for _, keyword := range f.blockKeywords {
		if strings.Contains(lowered, keyword) {
			return Block(
				fmt.Sprintf("Blocked keyword detected: %s", keyword),
				SeverityError,
				map[string]any{"keyword": keyword},
			), nil
		}
	}

	var warnings []string
	for _, rule := range f.rules {
		if !rule.pattern.MatchString(content) {
			continue
		}
		if rule.action == "block" {
			return Block(
				fmt.Sprintf("Content matched blocked pattern: %s", rule.name),
				SeverityError,
				map[string]any{"rule": rule.name},
			), nil
		}
		warnings = append(warnings, fmt.Sprintf("pattern:%s", rule.name))
	}

	for _, keyword := range f.warnKeywords {
		if strings.Contains(lowered, keyword) {
			warnings = append(warnings, fmt.Sprintf("keyword:%s", keyword))
		}
	}

	if len(warnings) > 0 {
		return LogOnly(
			fmt.Sprintf("Content warnings: %s", strings.Join(warnings, ", ")),
			map[string]any{"warnings": warnings},
		), nil
	}
	return Allow(nil), nil
}

var _ Guardrail = (*contentFilter)(nil)
