package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/cerberus-gate/cerberus/internal/domain/audit"
)

// HealthResponse is the JSON body of the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker reports gateway liveness. The audit queue is the one
// component that degrades under load, so its depth drives the status.
type HealthChecker struct {
	emitter *audit.Emitter
	version string
}

// NewHealthChecker creates a health checker. emitter may be nil.
func NewHealthChecker(emitter *audit.Emitter, version string) *HealthChecker {
	return &HealthChecker{emitter: emitter, version: version}
}

// Check runs the component checks.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.emitter != nil {
		depth := h.emitter.Depth()
		capacity := h.emitter.Capacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}
		if percentFull > 90 {
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}
		if drops := h.emitter.Dropped(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler serves the health endpoint: 200 when healthy, 503 otherwise.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		health := h.Check()
		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(health)
	})
}
