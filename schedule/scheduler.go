package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
)

// DefaultInterval is how often the scheduler polls for due schedules.
const DefaultInterval = 30 * time.Second

// defaultBatch bounds how many due schedules a single tick processes.
const defaultBatch = 100

// Launcher starts executions on behalf of fired schedules.
// *execution.Service satisfies it.
type Launcher interface {
	Trigger(ctx context.Context, tenantID id.TenantID, p execution.TriggerParams) (*execution.Execution, error)
}

// FireEmitter receives schedule-fired notifications. The hook registry
// satisfies it; the interface lives here to keep the dependency pointing
// downward.
type FireEmitter interface {
	EmitScheduleFired(ctx context.Context, sched *Schedule)
}

// Scheduler is the polling loop that turns due schedules into
// executions. It is single-instance: run one scheduler per deployment,
// next to the store.
type Scheduler struct {
	store    Store
	launcher Launcher
	interval time.Duration
	logger   *slog.Logger
	emitter  FireEmitter

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates a scheduler polling at the given interval, or
// DefaultInterval when non-positive.
func NewScheduler(store Store, launcher Launcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		launcher: launcher,
		interval: interval,
		logger:   logger,
	}
}

// SetEmitter wires a fire notification sink (called during engine
// assembly, before Start).
func (s *Scheduler) SetEmitter(e FireEmitter) { s.emitter = e }

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled. Starting a running scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes one batch of due schedules. Each schedule is handled in
// isolation: a failure to fire is logged and its next run still
// advances, so one broken schedule can never wedge the loop or cause a
// thundering retry on the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.store.ListDueSchedules(ctx, now, defaultBatch)
	if err != nil {
		s.logger.Error("list due schedules", slog.String("error", err.Error()))
		return
	}

	for _, sched := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, sched, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, sched *Schedule, now time.Time) {
	_, err := s.launcher.Trigger(ctx, sched.TenantID, execution.TriggerParams{
		ProcessID: sched.ProcessID,
		Trigger:   triggerFor(sched.Kind),
		Input:     sched.Input,
	})
	if err != nil {
		s.logger.Error("schedule fire failed",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("name", sched.Name),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("schedule fired",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("name", sched.Name),
		)
		sched.LastRunAt = &now
		if s.emitter != nil {
			s.emitter.EmitScheduleFired(ctx, sched)
		}
	}

	// Advance the next run from now regardless of the fire outcome; only
	// a successful fire counts as a run. A schedule whose process is
	// momentarily broken skips this occurrence instead of refiring every
	// tick.
	next, ok, nextErr := sched.NextAfter(now)
	if nextErr != nil || !ok {
		sched.Active = false
		sched.NextRunAt = nil
		if nextErr != nil {
			s.logger.Error("schedule deactivated",
				slog.String("schedule_id", sched.ID.String()),
				slog.String("error", nextErr.Error()),
			)
		}
	} else {
		sched.NextRunAt = &next
	}
	sched.Touch()

	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		s.logger.Error("advance schedule",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func triggerFor(k Kind) execution.Trigger {
	switch k {
	case KindInterval:
		return execution.TriggerInterval
	case KindOnce:
		return execution.TriggerOnce
	default:
		return execution.TriggerCron
	}
}
