package engine

import (
	"context"
	"log/slog"

	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/worker"
	"github.com/xraph/conductor/workload"
)

// The Engine is the broker agents speak to: claim work, report
// outcomes, stay alive. Remote agents reach these five operations over
// whatever transport hosts the engine; an in-process worker.Pool calls
// them directly.
var _ worker.Broker = (*Engine)(nil)

// RegisterAgent registers the agent by name, or re-adopts an existing
// registration after a restart.
func (e *Engine) RegisterAgent(ctx context.Context, tenantID id.TenantID, p agent.RegisterParams) (*agent.Agent, error) {
	return e.agents.EnsureRegistered(ctx, tenantID, p)
}

// ClaimNext leases the most urgent eligible item on the queue to the
// agent. Returns (nil, nil) when the queue has no eligible work.
func (e *Engine) ClaimNext(ctx context.Context, tenantID id.TenantID, queueName string, agentID id.AgentID) (*workload.Item, error) {
	item, err := e.items.Claim(ctx, tenantID, queueName, agentID)
	if err != nil || item == nil {
		return nil, err
	}

	if !item.ExecutionID.IsNil() {
		exec, getErr := e.executions.Get(ctx, tenantID, item.ExecutionID)
		switch {
		case getErr != nil:
			e.logger.Warn("claimed item has unreadable execution",
				slog.String("item_id", item.ID.String()),
				slog.String("error", getErr.Error()),
			)
		case exec.StopRequested:
			// Stop arrived between the retry and this claim. Cancel
			// instead of handing the work out.
			e.discardStopped(ctx, tenantID, item, exec)
			return nil, nil
		default:
			if _, runErr := e.executions.MarkRunning(ctx, tenantID, item.ExecutionID, agentID); runErr != nil {
				e.logger.Warn("mark execution running",
					slog.String("execution_id", item.ExecutionID.String()),
					slog.String("error", runErr.Error()),
				)
			}
		}
	}

	e.hooks.EmitItemClaimed(ctx, item)
	return item, nil
}

// ReportSuccess marks the item completed and finishes its execution.
func (e *Engine) ReportSuccess(ctx context.Context, tenantID id.TenantID, itemID id.ItemID, output map[string]any) error {
	item, err := e.items.Get(ctx, tenantID, itemID)
	if err != nil {
		return err
	}
	if err := e.items.Complete(ctx, tenantID, itemID); err != nil {
		return err
	}

	if !item.ExecutionID.IsNil() {
		exec, finErr := e.executions.Finish(ctx, tenantID, item.ExecutionID, execution.StatusCompleted, output, "")
		if finErr != nil {
			e.logger.Warn("finish execution",
				slog.String("execution_id", item.ExecutionID.String()),
				slog.String("error", finErr.Error()),
			)
		} else {
			e.hooks.EmitExecutionFinished(ctx, exec)
		}
	}
	return nil
}

// ReportFailure records the failure against the item and, depending on
// its class and remaining budget, either requeues the execution for the
// retry or finishes it as failed. The returned status tells the agent
// whether the item will run again.
func (e *Engine) ReportFailure(ctx context.Context, tenantID id.TenantID, itemID id.ItemID, report workload.FailureParams) (workload.Status, error) {
	item, err := e.items.Get(ctx, tenantID, itemID)
	if err != nil {
		return "", err
	}
	final, err := e.items.Fail(ctx, tenantID, itemID, report)
	if err != nil {
		return "", err
	}

	if !item.ExecutionID.IsNil() {
		if final == workload.StatusRetry {
			if _, reqErr := e.executions.Requeue(ctx, tenantID, item.ExecutionID, report.Message); reqErr != nil {
				e.logger.Warn("requeue execution",
					slog.String("execution_id", item.ExecutionID.String()),
					slog.String("error", reqErr.Error()),
				)
			}
		} else {
			exec, finErr := e.executions.Finish(ctx, tenantID, item.ExecutionID, execution.StatusFailed, nil, report.Message)
			if finErr != nil {
				e.logger.Warn("finish execution",
					slog.String("execution_id", item.ExecutionID.String()),
					slog.String("error", finErr.Error()),
				)
			} else {
				e.hooks.EmitExecutionFinished(ctx, exec)
			}
		}
	}
	return final, nil
}

// Heartbeat refreshes the agent's liveness timestamp and status.
func (e *Engine) Heartbeat(ctx context.Context, tenantID id.TenantID, agentID id.AgentID, status agent.Status, extra map[string]any) (*agent.Agent, error) {
	return e.agents.Heartbeat(ctx, tenantID, agentID, status, extra)
}

// discardStopped resolves a claimed item whose execution was stopped
// while the item sat in the queue: the item fails terminally and the
// execution finishes cancelled.
func (e *Engine) discardStopped(ctx context.Context, tenantID id.TenantID, item *workload.Item, exec *execution.Execution) {
	if _, err := e.items.Fail(ctx, tenantID, item.ID, workload.FailureParams{
		Kind:    workload.FailureBusiness,
		Message: "execution stop requested",
	}); err != nil {
		e.logger.Warn("discard stopped item",
			slog.String("item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	done, err := e.executions.Finish(ctx, tenantID, exec.ID, execution.StatusCancelled, nil, "stop requested")
	if err != nil {
		e.logger.Warn("cancel stopped execution",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	e.hooks.EmitExecutionFinished(ctx, done)
}
