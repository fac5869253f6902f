package execution

import (
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Trigger identifies what started an execution.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerCron     Trigger = "cron"
	TriggerInterval Trigger = "interval"
	TriggerOnce     Trigger = "once"
	TriggerAPI      Trigger = "api"
)

// Execution is one run of a process version: the ledger entry an
// operator reads to answer "what happened". It is born queued together
// with its queue item; the item's claim/complete/fail protocol drives it
// through running to a terminal state.
type Execution struct {
	conductor.Entity

	ID        id.ExecutionID `json:"id"`
	TenantID  id.TenantID    `json:"tenant_id"`
	ProcessID id.ProcessID   `json:"process_id"`
	VersionID id.VersionID   `json:"version_id"`
	ItemID    id.ItemID      `json:"item_id"`
	AgentID   id.AgentID     `json:"agent_id,omitempty"`

	Trigger Trigger `json:"trigger"`
	Status  Status  `json:"status"`

	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// StopRequested is advisory: a stop against a running execution is
	// recorded here for the agent to observe on its next report, since
	// the orchestrator cannot reach into a remote process.
	StopRequested   bool       `json:"stop_requested"`
	StopRequestedAt *time.Time `json:"stop_requested_at,omitempty"`

	Error string `json:"error,omitempty"`
}

// validTransitions maps each non-terminal status to the statuses it may
// move to.
var validTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout, StatusQueued},
}

// CanTransition reports whether moving from s to next is allowed. The
// running -> queued edge exists for retries: when a system failure sends
// the item back to the queue, the execution follows it.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
