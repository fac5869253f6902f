// Package hook defines the listener system for conductor. Listeners are
// notified of lifecycle events (item enqueued, claimed, completed,
// execution finished, schedule fired) and can react to them for
// metrics, auditing, or notifications.
//
// Each lifecycle hook is a separate interface so listeners opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// Listener is the base interface all listeners must implement.
type Listener interface {
	// Name returns a unique human-readable name for the listener.
	Name() string
}

// ──────────────────────────────────────────────────
// Item lifecycle hooks
// ──────────────────────────────────────────────────

// ItemEnqueued is called after an item lands on a queue.
type ItemEnqueued interface {
	OnItemEnqueued(ctx context.Context, item *workload.Item) error
}

// ItemClaimed is called when an agent claims an item.
type ItemClaimed interface {
	OnItemClaimed(ctx context.Context, item *workload.Item) error
}

// ItemCompleted is called after an item finishes successfully.
type ItemCompleted interface {
	OnItemCompleted(ctx context.Context, item *workload.Item, elapsed time.Duration) error
}

// ItemFailed is called when an item fails terminally (no more retries,
// or a non-retryable failure class).
type ItemFailed interface {
	OnItemFailed(ctx context.Context, item *workload.Item, exc *workload.Exception) error
}

// ItemRetrying is called when an item fails but is deferred for retry.
type ItemRetrying interface {
	OnItemRetrying(ctx context.Context, item *workload.Item, attempt int, deferredUntil time.Time) error
}

// ──────────────────────────────────────────────────
// Execution lifecycle hooks
// ──────────────────────────────────────────────────

// ExecutionTriggered is called when a new execution is created.
type ExecutionTriggered interface {
	OnExecutionTriggered(ctx context.Context, exec *execution.Execution) error
}

// ExecutionFinished is called when an execution reaches a terminal
// state.
type ExecutionFinished interface {
	OnExecutionFinished(ctx context.Context, exec *execution.Execution) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called each time the scheduler fires a schedule.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, sched *schedule.Schedule) error
}

// Shutdown is called when the engine is stopping, before the store
// closes. Listeners flush buffers here.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
