package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/hook"
	mw "github.com/xraph/conductor/middleware"
	"github.com/xraph/conductor/process"
	"github.com/xraph/conductor/queue"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// Storer is the minimal store interface held by the Engine. Lifecycle
// operations only; the subsystem interfaces are recovered by type
// assertion in New, the same way store.Store composes them.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Engine is the central coordinator: it owns the subsystem services,
// the hook registry, the queue limiter, and the schedule loop. It
// satisfies worker.Broker, so an in-process worker.Pool can be pointed
// straight at it.
type Engine struct {
	config  conductor.Config
	logger  *slog.Logger
	store   Storer
	hooks   *hook.Registry
	limiter *queue.Limiter
	bo      backoff.Strategy
	mws     []mw.Middleware

	listeners []hook.Listener

	agents     *agent.Service
	processes  *process.Service
	items      *workload.Service
	executions *execution.Service
	schedules  *schedule.Service
	scheduler  *schedule.Scheduler

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	queueConfigs       []queue.Config
	tenantQueueConfigs []queue.TenantConfig
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg conductor.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBackoff sets the retry backoff strategy for system-failed items.
// If not set, backoff.DefaultStrategy() is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) {
		e.bo = b
	}
}

// WithListener registers a hook listener with the engine.
func WithListener(l hook.Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, l)
	}
}

// WithMiddleware appends middleware to the engine's item chain, after
// the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) {
		e.mws = append(e.mws, m)
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(e *Engine) {
		e.queueConfigs = append(e.queueConfigs, configs...)
	}
}

// WithTenantQueueConfig registers per-tenant limits within a queue.
func WithTenantQueueConfig(configs ...queue.TenantConfig) Option {
	return func(e *Engine) {
		e.tenantQueueConfigs = append(e.tenantQueueConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) {
		e.meterProvider = mp
	}
}

// New creates an Engine on top of the given store. The store must
// implement every subsystem interface (store.Store does).
func New(st Storer, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, conductor.ErrNoStore
	}

	as, ok := st.(agent.Store)
	if !ok {
		return nil, fmt.Errorf("conductor: store does not implement agent.Store")
	}
	ps, ok := st.(process.Store)
	if !ok {
		return nil, fmt.Errorf("conductor: store does not implement process.Store")
	}
	ws, ok := st.(workload.Store)
	if !ok {
		return nil, fmt.Errorf("conductor: store does not implement workload.Store")
	}
	es, ok := st.(execution.Store)
	if !ok {
		return nil, fmt.Errorf("conductor: store does not implement execution.Store")
	}
	ss, ok := st.(schedule.Store)
	if !ok {
		return nil, fmt.Errorf("conductor: store does not implement schedule.Store")
	}

	e := &Engine{
		config: conductor.DefaultConfig(),
		logger: slog.Default(),
		store:  st,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.hooks = hook.NewRegistry(e.logger)
	for _, l := range e.listeners {
		e.hooks.Register(l)
	}

	if e.bo == nil {
		e.bo = backoff.NewLinear(e.config.BackoffUnit, 2*time.Hour)
	}

	e.agents = agent.NewService(as, e.logger, e.config.AgentOnlineWindow)
	e.processes = process.NewService(ps, e.logger)
	e.items = workload.NewService(ws, e.logger,
		workload.WithBackoff(e.bo),
		workload.WithLeaseDuration(e.config.LeaseDuration),
	)
	e.executions = execution.NewService(es, ps, ws, e.logger)
	e.schedules = schedule.NewService(ss, ps, e.logger)
	e.scheduler = schedule.NewScheduler(ss, e, e.config.SchedulerInterval, e.logger)
	e.scheduler.SetEmitter(e.hooks)

	e.limiter = queue.NewLimiter(e.queueConfigs...)
	for _, tc := range e.tenantQueueConfigs {
		e.limiter.SetTenantConfig(tc)
	}

	return e, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate runs the store's schema migrations.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.store.Migrate(ctx)
}

// Start launches the background schedule loop. Worker pools are started
// separately; they only need the Engine as their Broker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("conductor: store ping: %w", err)
	}
	e.scheduler.Start(ctx)
	e.logger.Info("engine started",
		slog.Duration("scheduler_interval", e.config.SchedulerInterval),
		slog.Duration("lease_duration", e.config.LeaseDuration),
	)
	return nil
}

// Stop shuts the engine down: the schedule loop first, then listeners,
// then the store.
func (e *Engine) Stop(ctx context.Context) error {
	if e.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ShutdownTimeout)
		defer cancel()
	}

	e.scheduler.Stop()
	e.hooks.EmitShutdown(ctx)

	if err := e.store.Close(); err != nil {
		return fmt.Errorf("conductor: store close: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// Hooks returns the hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Limiter returns the queue limiter; worker pools pass it as their
// claim gate.
func (e *Engine) Limiter() *queue.Limiter { return e.limiter }

// Scheduler returns the schedule loop, exposed for manual ticking.
func (e *Engine) Scheduler() *schedule.Scheduler { return e.scheduler }

// Config returns a copy of the engine configuration.
func (e *Engine) Config() conductor.Config { return e.config }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Middlewares returns the default middleware stack followed by any
// chain additions, for wiring a worker.Executor.
func (e *Engine) Middlewares() []mw.Middleware {
	tracingMw := mw.Tracing()
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("github.com/xraph/conductor"))
	}
	metricsMw := mw.Metrics()
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/xraph/conductor"))
	}

	stack := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
		mw.Scope(),
	}
	return append(stack, e.mws...)
}
