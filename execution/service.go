package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/process"
	"github.com/xraph/conductor/workload"
)

// TriggerParams carries the fields for starting a new execution.
type TriggerParams struct {
	ProcessID id.ProcessID
	Trigger   Trigger
	Input     map[string]any

	// QueueName overrides the queue the work item lands on. Empty means
	// the process name.
	QueueName string

	Priority   workload.Priority
	Reference  string
	MaxRetries int
}

// Service coordinates the execution ledger: it resolves a process to its
// active version, materializes the execution/item pair, and keeps the
// two records consistent as agents report progress.
type Service struct {
	store     Store
	processes process.Store
	items     workload.Store
	logger    *slog.Logger
}

// NewService creates an execution Service.
func NewService(store Store, processes process.Store, items workload.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, processes: processes, items: items, logger: logger}
}

// Trigger starts a new run of the process. The process must be active
// and have an active version; the resulting execution and its queue item
// are created atomically, both queued, ready for the next claim.
func (s *Service) Trigger(ctx context.Context, tenantID id.TenantID, p TriggerParams) (*Execution, error) {
	proc, err := s.processes.GetProcess(ctx, tenantID, p.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	if !proc.Active {
		return nil, fmt.Errorf("trigger %q: %w", proc.Name, conductor.ErrProcessInactive)
	}
	ver, err := s.processes.ActiveVersion(ctx, tenantID, p.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("trigger %q: %w", proc.Name, err)
	}

	queueName := p.QueueName
	if queueName == "" {
		queueName = proc.Name
	}
	trigger := p.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = workload.DefaultMaxRetries
	}
	priority := p.Priority
	if priority == "" {
		priority = workload.PriorityNormal
	}

	exec := &Execution{
		Entity:    conductor.NewEntity(),
		ID:        id.NewExecutionID(),
		TenantID:  tenantID,
		ProcessID: proc.ID,
		VersionID: ver.ID,
		Trigger:   trigger,
		Status:    StatusQueued,
		Input:     p.Input,
	}
	item := &workload.Item{
		Entity:      conductor.NewEntity(),
		ID:          id.NewItemID(),
		TenantID:    tenantID,
		QueueName:   queueName,
		Reference:   p.Reference,
		Priority:    priority,
		Status:      workload.StatusPending,
		Payload:     p.Input,
		MaxRetries:  maxRetries,
		ProcessID:   proc.ID,
		ExecutionID: exec.ID,
	}
	exec.ItemID = item.ID

	if err := s.store.CreateExecution(ctx, exec, item); err != nil {
		return nil, fmt.Errorf("trigger %q: %w", proc.Name, err)
	}

	s.logger.Info("execution triggered",
		slog.String("execution_id", exec.ID.String()),
		slog.String("process", proc.Name),
		slog.String("version", ver.Version),
		slog.String("trigger", string(trigger)),
	)
	return exec, nil
}

// Get retrieves an execution by ID.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID) (*Execution, error) {
	return s.store.GetExecution(ctx, tenantID, execID)
}

// List returns executions matching the given options.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Execution, error) {
	return s.store.ListExecutions(ctx, tenantID, opts)
}

// MarkRunning records that an agent has claimed the execution's item and
// begun work. Calling it on an execution that is already running is a
// lease takeover: the previous holder's lease lapsed and another agent
// re-claimed the item, so only the agent binding changes.
func (s *Service) MarkRunning(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID, agentID id.AgentID) (*Execution, error) {
	exec, err := s.store.GetExecution(ctx, tenantID, execID)
	if err != nil {
		return nil, err
	}
	if exec.Status == StatusRunning {
		exec.AgentID = agentID
		exec.Touch()
		if err := s.store.UpdateExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("update execution: %w", err)
		}
		return exec, nil
	}
	return s.transition(ctx, tenantID, execID, StatusRunning, func(e *Execution) {
		now := time.Now().UTC()
		e.AgentID = agentID
		e.StartedAt = &now
	})
}

// Finish moves the execution to a terminal state with the agent's output
// or error. Finishing an already-terminal execution is a no-op, mirroring
// the idempotency of the item protocol.
func (s *Service) Finish(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID, final Status, output map[string]any, errMsg string) (*Execution, error) {
	if !final.Terminal() {
		return nil, fmt.Errorf("finish execution: %q is not terminal: %w", final, conductor.ErrInvalidTransition)
	}
	exec, err := s.store.GetExecution(ctx, tenantID, execID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return exec, nil
	}
	return s.transition(ctx, tenantID, execID, final, func(e *Execution) {
		now := time.Now().UTC()
		e.FinishedAt = &now
		e.Output = output
		e.Error = errMsg
	})
}

// Requeue sends a running execution back to queued after a retryable
// failure; the item carries the deferral, the execution just follows it.
func (s *Service) Requeue(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID, errMsg string) (*Execution, error) {
	return s.transition(ctx, tenantID, execID, StatusQueued, func(e *Execution) {
		e.AgentID = id.Nil
		e.StartedAt = nil
		e.Error = errMsg
	})
}

// Stop requests that an execution halt. A queued execution is cancelled
// outright along with its item. A running one only gets a durable stop
// flag: the agent owns the process and honors the flag on its next poll
// or report, so stopping is best-effort by design of the transport, not
// a guarantee.
func (s *Service) Stop(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID) (*Execution, error) {
	exec, err := s.store.GetExecution(ctx, tenantID, execID)
	if err != nil {
		return nil, err
	}

	switch exec.Status {
	case StatusQueued:
		exec, err = s.transition(ctx, tenantID, execID, StatusCancelled, func(e *Execution) {
			now := time.Now().UTC()
			e.FinishedAt = &now
			e.Error = "stopped before start"
		})
		if err != nil {
			return nil, err
		}
		if err := s.cancelItem(ctx, tenantID, exec.ItemID); err != nil {
			return nil, fmt.Errorf("stop execution: %w", err)
		}
		return exec, nil

	case StatusRunning:
		now := time.Now().UTC()
		exec.StopRequested = true
		exec.StopRequestedAt = &now
		exec.Touch()
		if err := s.store.UpdateExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("stop execution: %w", err)
		}
		s.logger.Info("stop requested",
			slog.String("execution_id", execID.String()),
			slog.String("agent_id", exec.AgentID.String()),
		)
		return exec, nil

	default:
		return exec, nil
	}
}

func (s *Service) cancelItem(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) error {
	item, err := s.items.GetItem(ctx, tenantID, itemID)
	if err != nil {
		return err
	}
	if item.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	item.Status = workload.StatusFailed
	item.CompletedAt = &now
	item.LastError = "execution stopped"
	item.LeasedBy = id.Nil
	item.LeaseExpires = nil
	return s.items.UpdateItem(ctx, item)
}

func (s *Service) transition(ctx context.Context, tenantID id.TenantID, execID id.ExecutionID, next Status, mutate func(*Execution)) (*Execution, error) {
	exec, err := s.store.GetExecution(ctx, tenantID, execID)
	if err != nil {
		return nil, err
	}
	if !exec.Status.CanTransition(next) {
		return nil, fmt.Errorf("execution %s -> %s: %w", exec.Status, next, conductor.ErrInvalidTransition)
	}
	exec.Status = next
	if mutate != nil {
		mutate(exec)
	}
	exec.Touch()
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution: %w", err)
	}
	return exec, nil
}
