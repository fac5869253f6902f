package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/process"
)

// CreateParams carries the fields for a new schedule.
type CreateParams struct {
	ProcessID id.ProcessID
	Name      string
	Kind      Kind
	CronExpr  string
	Timezone  string
	Interval  time.Duration
	RunAt     *time.Time
	Input     map[string]any
}

// UpdateParams carries optional changes to a schedule. Nil fields are
// left untouched.
type UpdateParams struct {
	Name     *string
	CronExpr *string
	Timezone *string
	Interval *time.Duration
	RunAt    *time.Time
	Active   *bool
	Input    map[string]any
}

// Service manages schedule definitions.
type Service struct {
	store     Store
	processes process.Store
	logger    *slog.Logger
}

// NewService creates a schedule Service.
func NewService(store Store, processes process.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, processes: processes, logger: logger}
}

// Create registers a new schedule against an existing process. The plan
// is validated and the first firing computed up front, so a schedule
// with a bad cron expression is rejected rather than silently never
// firing.
func (s *Service) Create(ctx context.Context, tenantID id.TenantID, p CreateParams) (*Schedule, error) {
	if _, err := s.processes.GetProcess(ctx, tenantID, p.ProcessID); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	sched := &Schedule{
		Entity:    conductor.NewEntity(),
		ID:        id.NewScheduleID(),
		TenantID:  tenantID,
		ProcessID: p.ProcessID,
		Name:      p.Name,
		Kind:      p.Kind,
		CronExpr:  p.CronExpr,
		Timezone:  p.Timezone,
		Interval:  p.Interval,
		RunAt:     p.RunAt,
		Active:    true,
		Input:     p.Input,
	}
	if sched.Kind == "" {
		sched.Kind = KindCron
	}

	next, ok, err := sched.NextAfter(time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create schedule %q: %w", p.Name, err)
	}
	if !ok {
		return nil, fmt.Errorf("create schedule %q: run time already passed", p.Name)
	}
	sched.NextRunAt = &next

	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("create schedule %q: %w", p.Name, err)
	}

	s.logger.Info("schedule created",
		slog.String("schedule_id", sched.ID.String()),
		slog.String("name", sched.Name),
		slog.String("kind", string(sched.Kind)),
		slog.Time("next_run", next),
	)
	return sched, nil
}

// Get retrieves a schedule by ID.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID) (*Schedule, error) {
	return s.store.GetSchedule(ctx, tenantID, schedID)
}

// List returns schedules matching the given options.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Schedule, error) {
	return s.store.ListSchedules(ctx, tenantID, opts)
}

// Update applies changes to a schedule. Changing the plan recomputes the
// next firing.
func (s *Service) Update(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID, p UpdateParams) (*Schedule, error) {
	sched, err := s.store.GetSchedule(ctx, tenantID, schedID)
	if err != nil {
		return nil, err
	}

	planChanged := false
	if p.Name != nil {
		sched.Name = *p.Name
	}
	if p.CronExpr != nil {
		sched.CronExpr = *p.CronExpr
		planChanged = true
	}
	if p.Timezone != nil {
		sched.Timezone = *p.Timezone
		planChanged = true
	}
	if p.Interval != nil {
		sched.Interval = *p.Interval
		planChanged = true
	}
	if p.RunAt != nil {
		sched.RunAt = p.RunAt
		planChanged = true
	}
	if p.Active != nil {
		sched.Active = *p.Active
	}
	if p.Input != nil {
		sched.Input = p.Input
	}

	if planChanged {
		next, ok, err := sched.NextAfter(time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("update schedule: %w", err)
		}
		if !ok {
			sched.Active = false
			sched.NextRunAt = nil
		} else {
			sched.NextRunAt = &next
		}
	}

	sched.Touch()
	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return sched, nil
}

// Delete soft-deletes a schedule, deactivating it first so the loop
// never fires it again.
func (s *Service) Delete(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID) error {
	sched, err := s.store.GetSchedule(ctx, tenantID, schedID)
	if err != nil {
		return err
	}
	sched.Active = false
	sched.NextRunAt = nil
	sched.MarkDeleted()
	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}
