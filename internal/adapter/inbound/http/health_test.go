package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/memory"
	"github.com/cerberus-gate/cerberus/internal/domain/audit"
)

func TestHealthCheckerWithoutEmitter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHealthChecker(nil, "1.2.3").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Version != "1.2.3" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Checks["audit"] != "not configured" {
		t.Errorf("audit check = %q", resp.Checks["audit"])
	}
}

func TestHealthCheckerReportsAuditQueue(t *testing.T) {
	t.Parallel()

	emitter := audit.NewEmitter(memory.NewAuditStore(16), slog.New(slog.NewTextHandler(io.Discard, nil)))
	resp := NewHealthChecker(emitter, "").Check()

	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Checks["audit"] == "" {
		t.Error("audit queue check missing")
	}
}
