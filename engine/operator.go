package engine

import (
	"context"

	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/process"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// ──────────────────────────────────────────────────
// Processes and versions
// ──────────────────────────────────────────────────

func (e *Engine) CreateProcess(ctx context.Context, tenantID id.TenantID, p process.CreateParams) (*process.Process, error) {
	return e.processes.Create(ctx, tenantID, p)
}

func (e *Engine) GetProcess(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*process.Process, error) {
	return e.processes.Get(ctx, tenantID, processID)
}

func (e *Engine) ListProcesses(ctx context.Context, tenantID id.TenantID, opts process.ListOpts) ([]*process.Process, error) {
	return e.processes.List(ctx, tenantID, opts)
}

func (e *Engine) UpdateProcess(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, p process.UpdateParams) (*process.Process, error) {
	return e.processes.Update(ctx, tenantID, processID, p)
}

func (e *Engine) DeleteProcess(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) error {
	return e.processes.Delete(ctx, tenantID, processID)
}

func (e *Engine) CreateVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, p process.VersionParams) (*process.Version, error) {
	return e.processes.CreateVersion(ctx, tenantID, processID, p)
}

func (e *Engine) ListVersions(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) ([]*process.Version, error) {
	return e.processes.ListVersions(ctx, tenantID, processID)
}

// ActivateVersion makes the given version the single active one for its
// process; any previously active version is deactivated in the same
// store operation.
func (e *Engine) ActivateVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, versionID id.VersionID) (*process.Version, error) {
	return e.processes.Activate(ctx, tenantID, processID, versionID)
}

func (e *Engine) ActiveVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*process.Version, error) {
	return e.processes.ActiveVersion(ctx, tenantID, processID)
}

// ──────────────────────────────────────────────────
// Executions
// ──────────────────────────────────────────────────

// Trigger launches an execution of the process's active version and
// enqueues its work item. It also serves the schedule loop as its
// Launcher.
func (e *Engine) Trigger(ctx context.Context, tenantID id.TenantID, p execution.TriggerParams) (*execution.Execution, error) {
	exec, err := e.executions.Trigger(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}
	e.hooks.EmitExecutionTriggered(ctx, exec)
	if item, getErr := e.items.Get(ctx, tenantID, exec.ItemID); getErr == nil {
		e.hooks.EmitItemEnqueued(ctx, item)
	}
	return exec, nil
}

func (e *Engine) GetExecution(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID) (*execution.Execution, error) {
	return e.executions.Get(ctx, tenantID, execID)
}

func (e *Engine) ListExecutions(ctx context.Context, tenantID id.TenantID, opts execution.ListOpts) ([]*execution.Execution, error) {
	return e.executions.List(ctx, tenantID, opts)
}

// StopExecution cancels a queued execution outright, or records a stop
// request against a running one for its agent to observe.
func (e *Engine) StopExecution(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID) (*execution.Execution, error) {
	exec, err := e.executions.Stop(ctx, tenantID, execID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		e.hooks.EmitExecutionFinished(ctx, exec)
	}
	return exec, nil
}

// ──────────────────────────────────────────────────
// Queue items and exceptions
// ──────────────────────────────────────────────────

// Enqueue adds a standalone work item to a queue, outside any process
// execution.
func (e *Engine) Enqueue(ctx context.Context, tenantID id.TenantID, p workload.CreateItemParams) (*workload.Item, error) {
	item, err := e.items.CreateItem(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}
	e.hooks.EmitItemEnqueued(ctx, item)
	return item, nil
}

func (e *Engine) GetItem(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*workload.Item, error) {
	return e.items.Get(ctx, tenantID, itemID)
}

func (e *Engine) ListItems(ctx context.Context, tenantID id.TenantID, opts workload.ListOpts) ([]*workload.Item, error) {
	return e.items.List(ctx, tenantID, opts)
}

func (e *Engine) ListExceptions(ctx context.Context, tenantID id.TenantID, opts workload.ExceptionListOpts) ([]*workload.Exception, error) {
	return e.items.ListExceptions(ctx, tenantID, opts)
}

func (e *Engine) ResolveException(ctx context.Context, tenantID id.TenantID, exceptionID id.ExceptionID) error {
	return e.items.ResolveException(ctx, tenantID, exceptionID)
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func (e *Engine) CreateSchedule(ctx context.Context, tenantID id.TenantID, p schedule.CreateParams) (*schedule.Schedule, error) {
	return e.schedules.Create(ctx, tenantID, p)
}

func (e *Engine) GetSchedule(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID) (*schedule.Schedule, error) {
	return e.schedules.Get(ctx, tenantID, schedID)
}

func (e *Engine) ListSchedules(ctx context.Context, tenantID id.TenantID, opts schedule.ListOpts) ([]*schedule.Schedule, error) {
	return e.schedules.List(ctx, tenantID, opts)
}

func (e *Engine) UpdateSchedule(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID, p schedule.UpdateParams) (*schedule.Schedule, error) {
	return e.schedules.Update(ctx, tenantID, schedID, p)
}

func (e *Engine) DeleteSchedule(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID) error {
	return e.schedules.Delete(ctx, tenantID, schedID)
}

// ──────────────────────────────────────────────────
// Agents
// ──────────────────────────────────────────────────

func (e *Engine) GetAgent(ctx context.Context, tenantID id.TenantID, agentID id.AgentID) (*agent.Agent, error) {
	return e.agents.Get(ctx, tenantID, agentID)
}

func (e *Engine) ListAgents(ctx context.Context, tenantID id.TenantID, opts agent.ListOpts) ([]*agent.Agent, error) {
	return e.agents.List(ctx, tenantID, opts)
}

func (e *Engine) RenameAgent(ctx context.Context, tenantID id.TenantID, agentID id.AgentID, name string) (*agent.Agent, error) {
	return e.agents.Rename(ctx, tenantID, agentID, name)
}

func (e *Engine) DeleteAgent(ctx context.Context, tenantID id.TenantID, agentID id.AgentID) error {
	return e.agents.Delete(ctx, tenantID, agentID)
}
