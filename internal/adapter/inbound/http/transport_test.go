package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/memory"
	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/upstream"
	"github.com/cerberus-gate/cerberus/internal/config"
	"github.com/cerberus-gate/cerberus/internal/domain/audit"
	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/decision"
	"github.com/cerberus-gate/cerberus/internal/domain/guardrail"
	"github.com/cerberus-gate/cerberus/internal/domain/policy"
	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
	"github.com/cerberus-gate/cerberus/internal/service"
)

const serverTestToken = "cbr_server_test_token"

type nopSink struct{}

func (nopSink) Emit(audit.Record) {}

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	tenants := memory.NewTenantStore()
	tenants.PutOrganisation(ctx, &tenant.Organisation{ID: "org-1", Slug: "acme", Active: true})
	tenants.PutWorkspace(ctx, &tenant.Workspace{
		ID: "ws-1", OrganisationID: "org-1", Slug: "prod",
		Environment: tenant.EnvironmentProduction, UpstreamURL: upstreamURL, Active: true,
	})
	creds := memory.NewCredentialStore(tenants)
	creds.Put(ctx, &credential.AgentCredential{
		ID: "agent-1", WorkspaceID: "ws-1",
		TokenHash: credential.HashToken(serverTestToken), Active: true,
	})

	engine := decision.NewEngine(
		policy.NewResolver(memory.NewPolicyStore(), memory.NewPolicyCache(), logger),
		decision.NewPipeline(guardrail.NewRegistry(memory.NewCounterStore()), logger),
		nopSink{},
		logger,
	)
	client := upstream.NewClient(
		config.UpstreamConfig{RequestTimeoutSeconds: 2, MaxRetries: 1, MaxConnections: 10, MaxKeepaliveConnections: 5},
		config.ProxyConfig{RequestIDHeader: "X-Gateway-Request-ID", ForwardedForHeader: "X-Forwarded-For"},
		logger,
	)
	svc := service.NewProxyService(credential.NewResolver(creds, logger), engine, client, logger)

	return NewServer(
		config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: "5s"},
		NewProxyHandler(svc),
		NewHealthChecker(nil, "test"),
		NewMetrics(nil),
		logger,
	)
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	var gotPath string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	}))
	t.Cleanup(up.Close)

	srv := newTestServer(t, up.URL)
	handler := srv.Handler()

	// Proxy tail path reaches the upstream verbatim.
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fs/read"}}`)
	req := httptest.NewRequest(http.MethodPost, ProxyPrefix+"/mcp/tools", body)
	req.Header.Set("Authorization", "Bearer "+serverTestToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/mcp/tools" {
		t.Errorf("upstream path = %q, want /mcp/tools", gotPath)
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Request-Decision-ID") == "" {
		t.Error("correlation headers missing")
	}

	// Health and metrics live outside the proxy prefix.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil || health.Status != "healthy" {
		t.Errorf("/health body = %s (err %v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cerberus_requests_total") {
		t.Error("/metrics missing gateway instruments")
	}

	// Unknown routes are not proxied.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}
}

func TestServerProxyRejectsBadCredential(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	t.Cleanup(up.Close)

	handler := newTestServer(t, up.URL).Handler()
	req := httptest.NewRequest(http.MethodPost, ProxyPrefix+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"x"}}`))
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (in-band error)", rec.Code)
	}
	var env struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if env.Error == nil || env.Error.Code != -32001 {
		t.Errorf("error = %+v, want -32001", env.Error)
	}
}

func TestServerBarePrefixForwardsRoot(t *testing.T) {
	t.Parallel()

	var gotPath string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	t.Cleanup(up.Close)

	handler := newTestServer(t, up.URL).Handler()
	req := httptest.NewRequest(http.MethodPost, ProxyPrefix,
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"x"}}`))
	req.Header.Set("Authorization", "Bearer "+serverTestToken)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotPath != "/" {
		t.Errorf("upstream path = %q, want /", gotPath)
	}
}
