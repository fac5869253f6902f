package execution

import (
	"context"
	"time"

	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/workload"
)

// ListOpts filters execution listings. Zero values mean "any".
type ListOpts struct {
	ProcessID id.ProcessID
	AgentID   id.AgentID
	Status    Status
	Trigger   Trigger
	Since     *time.Time
	Limit     int
	Offset    int
}

// Store is the persistence contract for executions.
type Store interface {
	// CreateExecution persists the execution and its queue item as a
	// single unit of work: either both exist afterwards or neither
	// does. An execution without its item would be unclaimable, and an
	// item without its execution untraceable.
	CreateExecution(ctx context.Context, exec *Execution, item *workload.Item) error

	// GetExecution retrieves an execution by ID within the tenant.
	GetExecution(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID) (*Execution, error)

	// UpdateExecution persists changes to an existing execution.
	UpdateExecution(ctx context.Context, exec *Execution) error

	// ListExecutions returns executions matching opts, most recent
	// first.
	ListExecutions(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Execution, error)
}
