// Package worker provides the embedded reference agent — an Executor
// that invokes registered handlers through middleware, and a Pool of
// goroutines that claim items and report outcomes. Remote agents speak
// the same claim/report protocol over whatever transport hosts the
// engine; this package is the in-process equivalent.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/hook"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/middleware"
	"github.com/xraph/conductor/workload"
)

// Broker is the agent-facing surface of the engine: claim work, report
// outcomes, stay alive. *engine.Engine satisfies it.
type Broker interface {
	RegisterAgent(ctx context.Context, tenantID id.TenantID, p agent.RegisterParams) (*agent.Agent, error)
	ClaimNext(ctx context.Context, tenantID id.TenantID, queue string, agentID id.AgentID) (*workload.Item, error)
	ReportSuccess(ctx context.Context, tenantID id.TenantID, itemID id.ItemID, output map[string]any) error
	ReportFailure(ctx context.Context, tenantID id.TenantID, itemID id.ItemID, report workload.FailureParams) (workload.Status, error)
	Heartbeat(ctx context.Context, tenantID id.TenantID, agentID id.AgentID, status agent.Status, extra map[string]any) (*agent.Agent, error)
}

// Executor runs a single claimed item through middleware and the
// registered handler, then reports the outcome back through the Broker.
type Executor struct {
	registry *Registry
	broker   Broker
	hooks    *hook.Registry
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *Registry,
	broker Broker,
	hooks *hook.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		broker:   broker,
		hooks:    hooks,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs the item through the middleware chain and handler, then
// reports success or failure. A panic in the handler is reported as a
// system failure with the stack attached, so a crashing automation
// still leaves an exception trail.
func (e *Executor) Execute(ctx context.Context, item *workload.Item) error {
	handler, ok := e.registry.Get(item.QueueName)
	if !ok {
		return fmt.Errorf("no handler registered for queue %q", item.QueueName)
	}

	start := time.Now()

	var output map[string]any
	terminal := func(ctx context.Context) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				retErr = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
			}
		}()
		var err error
		output, err = handler(ctx, item)
		return err
	}

	err := e.mw(ctx, item, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.reportFailure(ctx, item, err)
	}
	return e.reportSuccess(ctx, item, output, elapsed)
}

func (e *Executor) reportSuccess(ctx context.Context, item *workload.Item, output map[string]any, elapsed time.Duration) error {
	if err := e.broker.ReportSuccess(ctx, item.TenantID, item.ID, output); err != nil {
		e.logger.Error("report success failed",
			slog.String("item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.hooks.EmitItemCompleted(ctx, item, elapsed)
	return nil
}

func (e *Executor) reportFailure(ctx context.Context, item *workload.Item, handlerErr error) error {
	kind := Classify(handlerErr)
	final, err := e.broker.ReportFailure(ctx, item.TenantID, item.ID, workload.FailureParams{
		Kind:    kind,
		Message: handlerErr.Error(),
	})
	if err != nil {
		e.logger.Error("report failure failed",
			slog.String("item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	if final == workload.StatusRetry {
		deferredUntil := time.Now().UTC()
		if item.DeferredUntil != nil {
			deferredUntil = *item.DeferredUntil
		}
		e.hooks.EmitItemRetrying(ctx, item, item.RetryCount+1, deferredUntil)
	} else {
		e.hooks.EmitItemFailed(ctx, item, nil)
	}

	e.logger.Debug("item execution failed",
		slog.String("item_id", item.ID.String()),
		slog.String("kind", string(kind)),
		slog.String("final_status", string(final)),
	)
	return handlerErr
}
