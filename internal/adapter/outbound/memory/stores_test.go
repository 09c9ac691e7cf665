package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/audit"
	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/policy"
	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

func seedTenants(t *testing.T) *TenantStore {
	t.Helper()
	ts := NewTenantStore()
	ctx := context.Background()
	if err := ts.PutOrganisation(ctx, &tenant.Organisation{ID: "org-1", Slug: "acme", Name: "Acme", Active: true}); err != nil {
		t.Fatalf("PutOrganisation: %v", err)
	}
	if err := ts.PutWorkspace(ctx, &tenant.Workspace{
		ID:             "ws-1",
		OrganisationID: "org-1",
		Slug:           "prod",
		Environment:    tenant.EnvironmentProduction,
		UpstreamURL:    "http://upstream.local",
		Active:         true,
	}); err != nil {
		t.Fatalf("PutWorkspace: %v", err)
	}
	return ts
}

func TestTenantStoreTombstonesHidden(t *testing.T) {
	t.Parallel()

	ts := seedTenants(t)
	ctx := context.Background()

	if _, err := ts.GetOrganisation(ctx, "org-1"); err != nil {
		t.Fatalf("GetOrganisation: %v", err)
	}
	if _, err := ts.GetWorkspace(ctx, "missing"); !errors.Is(err, tenant.ErrWorkspaceNotFound) {
		t.Errorf("missing workspace error = %v", err)
	}

	deleted := time.Now()
	ts.PutWorkspace(ctx, &tenant.Workspace{ID: "ws-dead", OrganisationID: "org-1", DeletedAt: &deleted})
	if _, err := ts.GetWorkspace(ctx, "ws-dead"); !errors.Is(err, tenant.ErrWorkspaceNotFound) {
		t.Errorf("tombstoned workspace error = %v, want not found", err)
	}
}

func TestCredentialStoreLookupAndUsage(t *testing.T) {
	t.Parallel()

	ts := seedTenants(t)
	cs := NewCredentialStore(ts)
	ctx := context.Background()

	hash := credential.HashToken("cbr_live_secret")
	err := cs.Put(ctx, &credential.AgentCredential{
		ID:          "cred-1",
		WorkspaceID: "ws-1",
		Name:        "deploy-bot",
		TokenHash:   hash,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	cred, ws, err := cs.GetByTokenHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if cred.Name != "deploy-bot" || ws.OrganisationID != "org-1" {
		t.Errorf("got cred=%q org=%q", cred.Name, ws.OrganisationID)
	}

	if _, _, err := cs.GetByTokenHash(ctx, credential.HashToken("wrong")); !errors.Is(err, credential.ErrCredentialNotFound) {
		t.Errorf("unknown hash error = %v", err)
	}

	usedAt := time.Now()
	if err := cs.RecordUsage(ctx, "cred-1", usedAt); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	cred, _, _ = cs.GetByTokenHash(ctx, hash)
	if cred.UsageCount != 1 || cred.LastUsedAt == nil {
		t.Errorf("usage not recorded: count=%d last=%v", cred.UsageCount, cred.LastUsedAt)
	}
}

func TestCredentialStoreRotationDropsOldHash(t *testing.T) {
	t.Parallel()

	ts := seedTenants(t)
	cs := NewCredentialStore(ts)
	ctx := context.Background()

	oldHash := credential.HashToken("old")
	newHash := credential.HashToken("new")
	cs.Put(ctx, &credential.AgentCredential{ID: "cred-1", WorkspaceID: "ws-1", TokenHash: oldHash, Active: true})
	cs.Put(ctx, &credential.AgentCredential{ID: "cred-1", WorkspaceID: "ws-1", TokenHash: newHash, Active: true})

	if _, _, err := cs.GetByTokenHash(ctx, oldHash); !errors.Is(err, credential.ErrCredentialNotFound) {
		t.Errorf("rotated-out hash still resolves: %v", err)
	}
	if _, _, err := cs.GetByTokenHash(ctx, newHash); err != nil {
		t.Errorf("new hash does not resolve: %v", err)
	}
}

func TestPolicyStoreScopeMatchingAndJoin(t *testing.T) {
	t.Parallel()

	ps := NewPolicyStore()
	ctx := context.Background()

	ps.PutDefinition(ctx, &policy.GuardrailDefinition{
		ID:            "def-rbac",
		Type:          "rbac",
		Category:      policy.CategoryRBAC,
		DefaultConfig: map[string]any{"default_action": "deny"},
		Active:        true,
	})

	put := func(id, ws, agent string) {
		ps.Put(ctx, &policy.Policy{
			ID:             id,
			OrganisationID: "org-1",
			WorkspaceID:    ws,
			AgentID:        agent,
			GuardrailID:    "def-rbac",
			Enabled:        true,
		})
	}
	put("pol-org", "", "")
	put("pol-ws", "ws-1", "")
	put("pol-agent", "ws-1", "agent-1")
	put("pol-other-ws", "ws-2", "")

	got, err := ps.ListEffective(ctx, "org-1", "ws-1", "agent-1")
	if err != nil {
		t.Fatalf("ListEffective: %v", err)
	}
	ids := make(map[string]policy.Policy, len(got))
	for _, p := range got {
		ids[p.ID] = p
	}
	for _, want := range []string{"pol-org", "pol-ws", "pol-agent"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("ListEffective missing %s", want)
		}
	}
	if _, ok := ids["pol-other-ws"]; ok {
		t.Error("ListEffective leaked a policy from another workspace")
	}
	if p := ids["pol-org"]; p.GuardrailType != "rbac" || p.GuardrailDefaults["default_action"] != "deny" {
		t.Errorf("definition join missing: type=%q defaults=%v", p.GuardrailType, p.GuardrailDefaults)
	}

	// Without an agent, agent-scoped policies never match.
	got, _ = ps.ListEffective(ctx, "org-1", "ws-1", "")
	for _, p := range got {
		if p.ID == "pol-agent" {
			t.Error("agent-scoped policy matched an agent-less resolution")
		}
	}
}

func TestPolicyCacheTTLAndPatterns(t *testing.T) {
	t.Parallel()

	c := NewPolicyCache()
	ctx := context.Background()
	policies := []policy.Policy{{ID: "pol-1"}}

	keyA := policy.CacheKey("org-1", "ws-1", "agent-1")
	keyB := policy.CacheKey("org-1", "ws-2", "")
	keyC := policy.CacheKey("org-2", "ws-9", "")
	for _, key := range []string{keyA, keyB, keyC} {
		c.Set(ctx, key, policies, time.Minute)
	}

	if got, err := c.Get(ctx, keyA); err != nil || len(got) != 1 {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := c.Get(ctx, "absent"); !errors.Is(err, policy.ErrCacheMiss) {
		t.Errorf("absent key error = %v", err)
	}

	c.DeletePattern(ctx, "policy:effective:org-1:*")
	if _, err := c.Get(ctx, keyA); !errors.Is(err, policy.ErrCacheMiss) {
		t.Error("org-1 agent entry survived pattern delete")
	}
	if _, err := c.Get(ctx, keyB); !errors.Is(err, policy.ErrCacheMiss) {
		t.Error("org-1 workspace entry survived pattern delete")
	}
	if _, err := c.Get(ctx, keyC); err != nil {
		t.Error("org-2 entry deleted by org-1 pattern")
	}
}

func TestPolicyCacheExpiry(t *testing.T) {
	t.Parallel()

	c := NewPolicyCache()
	fixed := time.Now()
	c.now = func() time.Time { return fixed }
	ctx := context.Background()

	c.Set(ctx, "k", []policy.Policy{{ID: "p"}}, 30*time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("fresh entry: %v", err)
	}

	fixed = fixed.Add(31 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, policy.ErrCacheMiss) {
		t.Errorf("expired entry error = %v, want cache miss", err)
	}
}

func TestAuditStoreRingEviction(t *testing.T) {
	t.Parallel()

	s := NewAuditStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, audit.Record{ID: string(rune('a' + i))})
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	recent := s.Recent(3)
	if recent[0].ID != "e" || recent[2].ID != "c" {
		t.Errorf("Recent order = %v, want newest first e,d,c", []string{recent[0].ID, recent[1].ID, recent[2].ID})
	}
}
