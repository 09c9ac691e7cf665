package memory

import (
	"context"
	"sync"

	"github.com/cerberus-gate/cerberus/internal/domain/policy"
)

// PolicyStore keeps policies and guardrail definitions in process
// memory. ListEffective performs the scope match and the definition
// join that a relational backend does in SQL.
type PolicyStore struct {
	mu          sync.RWMutex
	policies    map[string]policy.Policy
	definitions map[string]policy.GuardrailDefinition // keyed by type tag
}

// NewPolicyStore creates an empty policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies:    make(map[string]policy.Policy),
		definitions: make(map[string]policy.GuardrailDefinition),
	}
}

// ListEffective returns enabled, non-tombstoned policies scoped at
// (org, -, -), (org, workspace, -), or (org, workspace, agent), the
// last only when agent is non-empty. Each returned policy carries the
// type tag and default config of its definition.
func (s *PolicyStore) ListEffective(_ context.Context, org, workspace, agent string) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []policy.Policy
	for _, p := range s.policies {
		if !p.Enabled || p.DeletedAt != nil || p.OrganisationID != org {
			continue
		}
		if !scopeMatches(&p, workspace, agent) {
			continue
		}
		if def, ok := s.definitions[typeKeyFor(&p, s.definitions)]; ok {
			p.GuardrailType = def.Type
			p.GuardrailDefaults = def.DefaultConfig
		}
		out = append(out, p)
	}
	return out, nil
}

func scopeMatches(p *policy.Policy, workspace, agent string) bool {
	switch p.Scope() {
	case policy.ScopeOrganisation:
		return true
	case policy.ScopeWorkspace:
		return p.WorkspaceID == workspace
	default:
		return agent != "" && p.WorkspaceID == workspace && p.AgentID == agent
	}
}

// typeKeyFor finds the definition type tag for a policy's GuardrailID.
// Policies reference definitions by ID; the definitions map is keyed by
// type tag for GetDefinition, so this scans. Definition counts are
// single digits.
func typeKeyFor(p *policy.Policy, definitions map[string]policy.GuardrailDefinition) string {
	for typeTag, def := range definitions {
		if def.ID == p.GuardrailID {
			return typeTag
		}
	}
	return p.GuardrailType
}

// GetDefinition returns an active guardrail definition by type tag.
func (s *PolicyStore) GetDefinition(_ context.Context, guardrailType string) (*policy.GuardrailDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[guardrailType]
	if !ok || !def.Active {
		return nil, policy.ErrDefinitionNotFound
	}
	out := def
	return &out, nil
}

// Put inserts or replaces a policy.
func (s *PolicyStore) Put(_ context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = *p
	return nil
}

// PutDefinition inserts or replaces a guardrail definition.
func (s *PolicyStore) PutDefinition(_ context.Context, def *policy.GuardrailDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.Type] = *def
	return nil
}

var _ policy.Store = (*PolicyStore)(nil)
