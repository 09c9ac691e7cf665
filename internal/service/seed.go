package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/policy"
	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
)

// SeedFile is the YAML bootstrap document: tenants, credentials,
// guardrail definitions, and policies loaded at startup. Credential
// tokens appear raw in the seed and are digested at load; seeds are a
// development and bootstrap convenience, not a credential store.
type SeedFile struct {
	Organisations []SeedOrganisation `yaml:"organisations"`
	Workspaces    []SeedWorkspace    `yaml:"workspaces"`
	Credentials   []SeedCredential   `yaml:"credentials"`
	Definitions   []SeedDefinition   `yaml:"guardrail_definitions"`
	Policies      []SeedPolicy       `yaml:"policies"`
}

type SeedOrganisation struct {
	ID       string         `yaml:"id"`
	Slug     string         `yaml:"slug"`
	Name     string         `yaml:"name"`
	Settings map[string]any `yaml:"settings"`
}

type SeedWorkspace struct {
	ID             string         `yaml:"id"`
	OrganisationID string         `yaml:"organisation_id"`
	Slug           string         `yaml:"slug"`
	Environment    string         `yaml:"environment"`
	UpstreamURL    string         `yaml:"upstream_url"`
	Settings       map[string]any `yaml:"settings"`
}

type SeedCredential struct {
	ID          string     `yaml:"id"`
	WorkspaceID string     `yaml:"workspace_id"`
	Name        string     `yaml:"name"`
	Token       string     `yaml:"token"`
	Active      *bool      `yaml:"active"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
}

type SeedDefinition struct {
	ID            string         `yaml:"id"`
	Type          string         `yaml:"type"`
	DisplayName   string         `yaml:"display_name"`
	Category      string         `yaml:"category"`
	DefaultConfig map[string]any `yaml:"default_config"`
}

type SeedPolicy struct {
	ID             string         `yaml:"id"`
	OrganisationID string         `yaml:"organisation_id"`
	WorkspaceID    string         `yaml:"workspace_id"`
	AgentID        string         `yaml:"agent_id"`
	GuardrailID    string         `yaml:"guardrail_id"`
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	Config         map[string]any `yaml:"config"`
	Action         string         `yaml:"action"`
	Enabled        *bool          `yaml:"enabled"`
}

// Seeder loads a seed file into the configured stores.
type Seeder struct {
	tenants     tenant.Store
	credentials credential.Store
	policies    policy.Store
	logger      *slog.Logger
	now         func() time.Time
}

// NewSeeder creates a seed loader over the given stores.
func NewSeeder(tenants tenant.Store, credentials credential.Store, policies policy.Store, logger *slog.Logger) *Seeder {
	return &Seeder{
		tenants:     tenants,
		credentials: credentials,
		policies:    policies,
		logger:      logger,
		now:         time.Now,
	}
}

// LoadFile reads and applies a YAML seed file.
func (s *Seeder) LoadFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file %s: %w", path, err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return s.Load(ctx, &seed)
}

// Load applies a seed document in dependency order.
func (s *Seeder) Load(ctx context.Context, seed *SeedFile) error {
	now := s.now()

	for _, org := range seed.Organisations {
		if org.ID == "" {
			return fmt.Errorf("seed organisation missing id")
		}
		err := s.tenants.PutOrganisation(ctx, &tenant.Organisation{
			ID:        org.ID,
			Slug:      org.Slug,
			Name:      org.Name,
			Settings:  org.Settings,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("seed organisation %s: %w", org.ID, err)
		}
	}

	for _, ws := range seed.Workspaces {
		if ws.ID == "" || ws.OrganisationID == "" {
			return fmt.Errorf("seed workspace missing id or organisation_id")
		}
		env := tenant.EnvironmentType(ws.Environment)
		if env == "" {
			env = tenant.EnvironmentDevelopment
		}
		err := s.tenants.PutWorkspace(ctx, &tenant.Workspace{
			ID:             ws.ID,
			OrganisationID: ws.OrganisationID,
			Slug:           ws.Slug,
			Environment:    env,
			UpstreamURL:    ws.UpstreamURL,
			Settings:       ws.Settings,
			Active:         true,
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("seed workspace %s: %w", ws.ID, err)
		}
	}

	for _, cred := range seed.Credentials {
		if cred.ID == "" || cred.WorkspaceID == "" || cred.Token == "" {
			return fmt.Errorf("seed credential missing id, workspace_id, or token")
		}
		active := true
		if cred.Active != nil {
			active = *cred.Active
		}
		err := s.credentials.Put(ctx, &credential.AgentCredential{
			ID:          cred.ID,
			WorkspaceID: cred.WorkspaceID,
			Name:        cred.Name,
			TokenHash:   credential.HashToken(cred.Token),
			TokenPrefix: credential.DisplayPrefix(cred.Token),
			Active:      active,
			ExpiresAt:   cred.ExpiresAt,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("seed credential %s: %w", cred.ID, err)
		}
	}

	for _, def := range seed.Definitions {
		if def.ID == "" || def.Type == "" {
			return fmt.Errorf("seed guardrail definition missing id or type")
		}
		err := s.policies.PutDefinition(ctx, &policy.GuardrailDefinition{
			ID:            def.ID,
			Type:          def.Type,
			DisplayName:   def.DisplayName,
			Category:      policy.GuardrailCategory(def.Category),
			DefaultConfig: def.DefaultConfig,
			Active:        true,
		})
		if err != nil {
			return fmt.Errorf("seed definition %s: %w", def.Type, err)
		}
	}

	for _, pol := range seed.Policies {
		if pol.ID == "" || pol.OrganisationID == "" || pol.GuardrailID == "" {
			return fmt.Errorf("seed policy missing id, organisation_id, or guardrail_id")
		}
		if pol.AgentID != "" && pol.WorkspaceID == "" {
			return fmt.Errorf("seed policy %s: agent_id requires workspace_id", pol.ID)
		}
		enabled := true
		if pol.Enabled != nil {
			enabled = *pol.Enabled
		}
		action := policy.Action(pol.Action)
		if action == "" {
			action = policy.ActionBlock
		}
		err := s.policies.Put(ctx, &policy.Policy{
			ID:             pol.ID,
			OrganisationID: pol.OrganisationID,
			WorkspaceID:    pol.WorkspaceID,
			AgentID:        pol.AgentID,
			GuardrailID:    pol.GuardrailID,
			Name:           pol.Name,
			Description:    pol.Description,
			Config:         pol.Config,
			Action:         action,
			Enabled:        enabled,
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("seed policy %s: %w", pol.ID, err)
		}
	}

	s.logger.Info("seed loaded",
		"organisations", len(seed.Organisations),
		"workspaces", len(seed.Workspaces),
		"credentials", len(seed.Credentials),
		"definitions", len(seed.Definitions),
		"policies", len(seed.Policies),
	)
	return nil
}
