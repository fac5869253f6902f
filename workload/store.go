package workload

import (
	"context"
	"time"

	"github.com/xraph/conductor/id"
)

// ListOpts controls filtering and pagination for item list queries.
type ListOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// Status filters by item status. Empty means all states.
	Status Status
	// Reference filters by the business reference key. Empty means all.
	Reference string
	// Limit is the maximum number of items to return. Zero means no limit.
	Limit int
	// Offset is the number of items to skip.
	Offset int
}

// ExceptionListOpts controls filtering for exception list queries.
type ExceptionListOpts struct {
	ItemID      id.ItemID
	ExecutionID id.ExecutionID
	Severity    Severity
	Unresolved  bool
	Limit       int
	Offset      int
}

// Store defines the persistence contract for queue items and exceptions.
type Store interface {
	// CreateItem persists a new queue item.
	CreateItem(ctx context.Context, i *Item) error

	// GetItem retrieves an item by ID within the tenant.
	GetItem(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*Item, error)

	// UpdateItem persists changes to an existing item.
	UpdateItem(ctx context.Context, i *Item) error

	// ClaimItem atomically selects the highest-priority, oldest eligible
	// item in the queue and leases it to the agent: status becomes
	// processing, the lease holder is set, and the lease expires after
	// leaseFor. The selection-and-claim is atomic with respect to other
	// concurrent claimants — a row selected by one caller is invisible to
	// the rest, and callers never block on rows already claimed. Returns
	// (nil, nil) when no eligible item exists.
	ClaimItem(ctx context.Context, tenantID id.TenantID, queue string, agentID id.AgentID, leaseFor time.Duration) (*Item, error)

	// ListItems returns items matching the given options, ordered by
	// creation time.
	ListItems(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Item, error)

	// CountItems returns the number of items matching the given options.
	CountItems(ctx context.Context, tenantID id.TenantID, opts ListOpts) (int64, error)

	// RecordException appends an exception entry. Entries are never
	// mutated afterwards except to stamp resolution.
	RecordException(ctx context.Context, e *Exception) error

	// ListExceptions returns exception entries matching the given options,
	// newest first.
	ListExceptions(ctx context.Context, tenantID id.TenantID, opts ExceptionListOpts) ([]*Exception, error)

	// ResolveException stamps an exception as resolved.
	ResolveException(ctx context.Context, tenantID id.TenantID, exceptionID id.ExceptionID) error
}
