// Package ratelimit defines the sliding-window counter store contract
// used by the rate-limit guardrails.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of a sliding-window check.
type Result struct {
	// Allowed reports whether the request fits under the limit.
	Allowed bool
	// Current is the number of requests counted in the window,
	// including this one when allowed.
	Current int64
	// RetryAfter is the suggested client wait when not allowed.
	RetryAfter time.Duration
}

// CounterStore is an atomic sliding-window counter. Implementations MUST
// make drop-expired + count + conditional-insert a single linearisation
// point per key under concurrent access; a non-atomic read-modify-write
// admits more than limit requests under load.
type CounterStore interface {
	// CheckAndIncrement drops entries older than window, counts the
	// rest, and appends now if the count is under limit. Entry TTL on
	// the backing store is 2×window to bound memory.
	CheckAndIncrement(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)

	// CurrentCount returns the number of live entries without inserting.
	CurrentCount(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset clears a key. Admin escape hatch.
	Reset(ctx context.Context, key string) error
}

// GlobalScope is the tool segment used for agent-wide limits that are
// not bound to a specific tool.
const GlobalScope = "_global"

// FormatKey builds the counter key for an agent's window. tool is
// GlobalScope for the agent-wide limit or the tool name for per-tool
// overrides; window disambiguates the per-minute and per-hour counters.
func FormatKey(org, workspace, agent, tool string, window time.Duration) string {
	if tool == "" {
		tool = GlobalScope
	}
	return fmt.Sprintf("ratelimit:%s:%s:%s:%s:%d", org, workspace, agent, tool, int64(window.Seconds()))
}
