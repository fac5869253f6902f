package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// Named entry types pair a hook implementation with the listener name
// captured at registration time. This avoids type-asserting back to
// Listener inside the emit methods.
type itemEnqueuedEntry struct {
	name string
	hook ItemEnqueued
}

type itemClaimedEntry struct {
	name string
	hook ItemClaimed
}

type itemCompletedEntry struct {
	name string
	hook ItemCompleted
}

type itemFailedEntry struct {
	name string
	hook ItemFailed
}

type itemRetryingEntry struct {
	name string
	hook ItemRetrying
}

type executionTriggeredEntry struct {
	name string
	hook ExecutionTriggered
}

type executionFinishedEntry struct {
	name string
	hook ExecutionFinished
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered listeners and dispatches lifecycle events
// to them. It type-caches listeners at registration time so emit calls
// iterate only over listeners that implement the relevant hook.
type Registry struct {
	listeners []Listener
	logger    *slog.Logger

	// Type-cached slices for each lifecycle hook.
	itemEnqueued       []itemEnqueuedEntry
	itemClaimed        []itemClaimedEntry
	itemCompleted      []itemCompletedEntry
	itemFailed         []itemFailedEntry
	itemRetrying       []itemRetryingEntry
	executionTriggered []executionTriggeredEntry
	executionFinished  []executionFinishedEntry
	scheduleFired      []scheduleFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a listener registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a listener and type-asserts it into all applicable hook
// caches. Listeners are notified in registration order.
func (r *Registry) Register(l Listener) {
	r.listeners = append(r.listeners, l)
	name := l.Name()

	if h, ok := l.(ItemEnqueued); ok {
		r.itemEnqueued = append(r.itemEnqueued, itemEnqueuedEntry{name, h})
	}
	if h, ok := l.(ItemClaimed); ok {
		r.itemClaimed = append(r.itemClaimed, itemClaimedEntry{name, h})
	}
	if h, ok := l.(ItemCompleted); ok {
		r.itemCompleted = append(r.itemCompleted, itemCompletedEntry{name, h})
	}
	if h, ok := l.(ItemFailed); ok {
		r.itemFailed = append(r.itemFailed, itemFailedEntry{name, h})
	}
	if h, ok := l.(ItemRetrying); ok {
		r.itemRetrying = append(r.itemRetrying, itemRetryingEntry{name, h})
	}
	if h, ok := l.(ExecutionTriggered); ok {
		r.executionTriggered = append(r.executionTriggered, executionTriggeredEntry{name, h})
	}
	if h, ok := l.(ExecutionFinished); ok {
		r.executionFinished = append(r.executionFinished, executionFinishedEntry{name, h})
	}
	if h, ok := l.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := l.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Listeners returns all registered listeners.
func (r *Registry) Listeners() []Listener { return r.listeners }

// ──────────────────────────────────────────────────
// Item event emitters
// ──────────────────────────────────────────────────

// EmitItemEnqueued notifies all listeners that implement ItemEnqueued.
func (r *Registry) EmitItemEnqueued(ctx context.Context, item *workload.Item) {
	for _, e := range r.itemEnqueued {
		if err := e.hook.OnItemEnqueued(ctx, item); err != nil {
			r.logHookError("OnItemEnqueued", e.name, err)
		}
	}
}

// EmitItemClaimed notifies all listeners that implement ItemClaimed.
func (r *Registry) EmitItemClaimed(ctx context.Context, item *workload.Item) {
	for _, e := range r.itemClaimed {
		if err := e.hook.OnItemClaimed(ctx, item); err != nil {
			r.logHookError("OnItemClaimed", e.name, err)
		}
	}
}

// EmitItemCompleted notifies all listeners that implement ItemCompleted.
func (r *Registry) EmitItemCompleted(ctx context.Context, item *workload.Item, elapsed time.Duration) {
	for _, e := range r.itemCompleted {
		if err := e.hook.OnItemCompleted(ctx, item, elapsed); err != nil {
			r.logHookError("OnItemCompleted", e.name, err)
		}
	}
}

// EmitItemFailed notifies all listeners that implement ItemFailed.
func (r *Registry) EmitItemFailed(ctx context.Context, item *workload.Item, exc *workload.Exception) {
	for _, e := range r.itemFailed {
		if err := e.hook.OnItemFailed(ctx, item, exc); err != nil {
			r.logHookError("OnItemFailed", e.name, err)
		}
	}
}

// EmitItemRetrying notifies all listeners that implement ItemRetrying.
func (r *Registry) EmitItemRetrying(ctx context.Context, item *workload.Item, attempt int, deferredUntil time.Time) {
	for _, e := range r.itemRetrying {
		if err := e.hook.OnItemRetrying(ctx, item, attempt, deferredUntil); err != nil {
			r.logHookError("OnItemRetrying", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Execution and schedule event emitters
// ──────────────────────────────────────────────────

// EmitExecutionTriggered notifies all listeners that implement
// ExecutionTriggered.
func (r *Registry) EmitExecutionTriggered(ctx context.Context, exec *execution.Execution) {
	for _, e := range r.executionTriggered {
		if err := e.hook.OnExecutionTriggered(ctx, exec); err != nil {
			r.logHookError("OnExecutionTriggered", e.name, err)
		}
	}
}

// EmitExecutionFinished notifies all listeners that implement
// ExecutionFinished.
func (r *Registry) EmitExecutionFinished(ctx context.Context, exec *execution.Execution) {
	for _, e := range r.executionFinished {
		if err := e.hook.OnExecutionFinished(ctx, exec); err != nil {
			r.logHookError("OnExecutionFinished", e.name, err)
		}
	}
}

// EmitScheduleFired notifies all listeners that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, sched *schedule.Schedule) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, sched); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all listeners that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a listener error without interrupting dispatch;
// listener failures never affect the engine's own behavior.
func (r *Registry) logHookError(hookName, listener string, err error) {
	r.logger.Warn("listener hook failed",
		slog.String("hook", hookName),
		slog.String("listener", listener),
		slog.String("error", err.Error()),
	)
}
