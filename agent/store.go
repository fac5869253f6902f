package agent

import (
	"context"

	"github.com/xraph/conductor/id"
)

// ListOpts controls filtering and pagination for agent list queries.
type ListOpts struct {
	// Status filters by self-reported status. Empty means all statuses.
	Status Status
	// Online filters by the derived online property when non-nil.
	Online *bool
	// MachineName filters by machine name substring. Empty means all.
	MachineName string
	// Limit is the maximum number of agents to return. Zero means no limit.
	Limit int
	// Offset is the number of agents to skip.
	Offset int
}

// Store defines the persistence contract for agents. All reads exclude
// soft-deleted rows; a tenant mismatch is reported as not found.
type Store interface {
	// CreateAgent persists a new agent.
	CreateAgent(ctx context.Context, a *Agent) error

	// GetAgent retrieves an agent by ID within the tenant.
	GetAgent(ctx context.Context, tenantID id.TenantID, agentID id.AgentID) (*Agent, error)

	// GetAgentByName retrieves a non-deleted agent by its unique name
	// within the tenant.
	GetAgentByName(ctx context.Context, tenantID id.TenantID, name string) (*Agent, error)

	// UpdateAgent persists changes to an existing agent.
	UpdateAgent(ctx context.Context, a *Agent) error

	// ListAgents returns agents matching the given options, ordered by
	// creation time.
	ListAgents(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Agent, error)
}
