package guardrail

// Config accessor helpers. Effective configs come from JSON-decoded
// policy rows merged over definition defaults, so numeric values may be
// float64, int, or int64 depending on the path they travelled.
// Implementations read every key through these helpers with an explicit
// default and never assume presence.

func cfgString(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return fallback
}

func cfgInt(cfg map[string]any, key string, fallback int64) int64 {
	switch v := cfg[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return fallback
	}
}

func cfgStringSlice(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func cfgMap(cfg map[string]any, key string) map[string]any {
	if v, ok := cfg[key].(map[string]any); ok {
		return v
	}
	return nil
}

// anyToInt converts a JSON-decoded numeric value, returning ok=false for
// non-numeric types.
func anyToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
