package workload

import (
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	// StatusPending means the item is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusDeferred means the item is not eligible before DeferredUntil.
	StatusDeferred Status = "deferred"
	// StatusProcessing means an agent holds a live lease on the item.
	StatusProcessing Status = "processing"
	// StatusRetry means a system failure put the item back in line with a
	// backoff deferral.
	StatusRetry Status = "retry"
	// StatusCompleted means the item finished successfully (terminal).
	StatusCompleted Status = "completed"
	// StatusFailed means the item will never be retried (terminal).
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority orders items within a queue. Higher priorities are always
// claimed first; within a band, claim order is strict FIFO by creation
// time.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric ordering of the priority; higher wins.
// Unknown priorities rank with normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// Item is one unit of leasable work in a named logical queue.
//
// Ownership of a claimed item belongs solely to the agent holding a live
// lease: no other caller may mutate it except through Complete/Fail under
// that claim, and the store-level atomic claim is the sole arbiter of who
// holds the lease. An item whose lease expires without resolution becomes
// silently reclaimable.
type Item struct {
	conductor.Entity

	ID            id.ItemID      `json:"id"`
	TenantID      id.TenantID    `json:"tenant_id"`
	QueueName     string         `json:"queue_name"`
	Reference     string         `json:"reference,omitempty"`
	Priority      Priority       `json:"priority"`
	Status        Status         `json:"status"`
	Payload       map[string]any `json:"payload,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	DeferredUntil *time.Time     `json:"deferred_until,omitempty"`
	LeasedBy      id.AgentID     `json:"leased_by,omitempty"`
	LeaseExpires  *time.Time     `json:"lease_expires,omitempty"`
	ProcessID     id.ProcessID   `json:"process_id,omitempty"`
	ExecutionID   id.ExecutionID `json:"execution_id,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Eligible reports whether the item can be claimed at the given instant:
// a claimable status, any deferral elapsed, and no live lease. A
// processing item whose lease has lapsed counts as claimable — that is
// the crash-recovery path for an agent that died mid-task.
func (i *Item) Eligible(now time.Time) bool {
	switch i.Status {
	case StatusPending, StatusRetry, StatusDeferred:
	case StatusProcessing:
		if i.LeaseExpires == nil || i.LeaseExpires.After(now) {
			return false
		}
	default:
		return false
	}
	if i.DeferredUntil != nil && i.DeferredUntil.After(now) {
		return false
	}
	if i.LeaseExpires != nil && i.LeaseExpires.After(now) {
		return false
	}
	return true
}
