package hook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/hook"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// ──────────────────────────────────────────────────
// Test listeners
// ──────────────────────────────────────────────────

// allHooksListener implements every lifecycle hook for testing.
type allHooksListener struct {
	calls []string
}

func (l *allHooksListener) Name() string { return "all-hooks" }

func (l *allHooksListener) OnItemEnqueued(_ context.Context, _ *workload.Item) error {
	l.calls = append(l.calls, "OnItemEnqueued")
	return nil
}

func (l *allHooksListener) OnItemClaimed(_ context.Context, _ *workload.Item) error {
	l.calls = append(l.calls, "OnItemClaimed")
	return nil
}

func (l *allHooksListener) OnItemCompleted(_ context.Context, _ *workload.Item, _ time.Duration) error {
	l.calls = append(l.calls, "OnItemCompleted")
	return nil
}

func (l *allHooksListener) OnItemFailed(_ context.Context, _ *workload.Item, _ *workload.Exception) error {
	l.calls = append(l.calls, "OnItemFailed")
	return nil
}

func (l *allHooksListener) OnItemRetrying(_ context.Context, _ *workload.Item, _ int, _ time.Time) error {
	l.calls = append(l.calls, "OnItemRetrying")
	return nil
}

func (l *allHooksListener) OnExecutionTriggered(_ context.Context, _ *execution.Execution) error {
	l.calls = append(l.calls, "OnExecutionTriggered")
	return nil
}

func (l *allHooksListener) OnExecutionFinished(_ context.Context, _ *execution.Execution) error {
	l.calls = append(l.calls, "OnExecutionFinished")
	return nil
}

func (l *allHooksListener) OnScheduleFired(_ context.Context, _ *schedule.Schedule) error {
	l.calls = append(l.calls, "OnScheduleFired")
	return nil
}

func (l *allHooksListener) OnShutdown(_ context.Context) error {
	l.calls = append(l.calls, "OnShutdown")
	return nil
}

// itemOnlyListener only implements item-related hooks.
type itemOnlyListener struct {
	calls []string
}

func (l *itemOnlyListener) Name() string { return "item-only" }

func (l *itemOnlyListener) OnItemClaimed(_ context.Context, _ *workload.Item) error {
	l.calls = append(l.calls, "OnItemClaimed")
	return nil
}

func (l *itemOnlyListener) OnItemCompleted(_ context.Context, _ *workload.Item, _ time.Duration) error {
	l.calls = append(l.calls, "OnItemCompleted")
	return nil
}

// failingListener returns an error from every hook it implements.
type failingListener struct{}

func (l *failingListener) Name() string { return "failing" }

func (l *failingListener) OnItemClaimed(_ context.Context, _ *workload.Item) error {
	return errors.New("boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_AllHooks(t *testing.T) {
	r := hook.NewRegistry(discardLogger())
	l := &allHooksListener{}
	r.Register(l)

	ctx := context.Background()
	item := &workload.Item{}
	exec := &execution.Execution{}
	sched := &schedule.Schedule{}

	r.EmitItemEnqueued(ctx, item)
	r.EmitItemClaimed(ctx, item)
	r.EmitItemCompleted(ctx, item, time.Second)
	r.EmitItemFailed(ctx, item, &workload.Exception{})
	r.EmitItemRetrying(ctx, item, 1, time.Now())
	r.EmitExecutionTriggered(ctx, exec)
	r.EmitExecutionFinished(ctx, exec)
	r.EmitScheduleFired(ctx, sched)
	r.EmitShutdown(ctx)

	want := []string{
		"OnItemEnqueued", "OnItemClaimed", "OnItemCompleted",
		"OnItemFailed", "OnItemRetrying",
		"OnExecutionTriggered", "OnExecutionFinished",
		"OnScheduleFired", "OnShutdown",
	}
	if len(l.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(l.calls), l.calls)
	}
	for i, name := range want {
		if l.calls[i] != name {
			t.Errorf("call %d: expected %s, got %s", i, name, l.calls[i])
		}
	}
}

func TestRegistry_PartialListener(t *testing.T) {
	r := hook.NewRegistry(discardLogger())
	l := &itemOnlyListener{}
	r.Register(l)

	ctx := context.Background()
	item := &workload.Item{}

	// Events the listener doesn't implement are silently skipped.
	r.EmitItemEnqueued(ctx, item)
	r.EmitExecutionTriggered(ctx, &execution.Execution{})
	r.EmitItemClaimed(ctx, item)
	r.EmitItemCompleted(ctx, item, time.Second)
	r.EmitShutdown(ctx)

	want := []string{"OnItemClaimed", "OnItemCompleted"}
	if len(l.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(l.calls), l.calls)
	}
}

func TestRegistry_ListenerErrorDoesNotStopDispatch(t *testing.T) {
	r := hook.NewRegistry(discardLogger())
	after := &itemOnlyListener{}
	r.Register(&failingListener{})
	r.Register(after)

	r.EmitItemClaimed(context.Background(), &workload.Item{})

	if len(after.calls) != 1 || after.calls[0] != "OnItemClaimed" {
		t.Fatalf("listener after failure should still be notified, got %v", after.calls)
	}
}

func TestRegistry_RegistrationOrder(t *testing.T) {
	r := hook.NewRegistry(discardLogger())
	first := &itemOnlyListener{}
	second := &allHooksListener{}
	r.Register(first)
	r.Register(second)

	if got := len(r.Listeners()); got != 2 {
		t.Fatalf("expected 2 listeners, got %d", got)
	}
	if r.Listeners()[0].Name() != "item-only" {
		t.Fatal("listeners should be kept in registration order")
	}
}
