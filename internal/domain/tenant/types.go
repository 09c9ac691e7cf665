// Package tenant defines the organisation and workspace model.
// Interfaces are owned by the domain per hexagonal architecture;
// adapters under internal/adapter/outbound implement them.
package tenant

import "time"

// EnvironmentType classifies a workspace.
type EnvironmentType string

const (
	EnvironmentProduction  EnvironmentType = "production"
	EnvironmentStaging     EnvironmentType = "staging"
	EnvironmentDevelopment EnvironmentType = "development"
)

// Organisation is the top-level tenant. Organisations are soft-deleted
// (tombstoned) rather than hard-deleted to preserve audit lineage.
type Organisation struct {
	ID        string
	Slug      string
	Name      string
	Settings  map[string]any
	Active    bool
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Workspace is an environment owned by exactly one organisation.
// Slug is unique within the organisation among non-tombstoned rows.
type Workspace struct {
	ID             string
	OrganisationID string
	Slug           string
	Environment    EnvironmentType
	UpstreamURL    string
	Settings       map[string]any
	Active         bool
	CreatedAt      time.Time
	DeletedAt      *time.Time
}
