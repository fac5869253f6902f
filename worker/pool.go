package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/id"
)

// ClaimGate throttles claims per queue and tenant. The pool calls
// Acquire before claiming and Release after the item finishes.
// *queue.Limiter satisfies it.
type ClaimGate interface {
	Acquire(queue string, tenantID id.TenantID) bool
	Release(queue string, tenantID id.TenantID)
}

// Pool is the embedded agent: a set of goroutines that claim items from
// the queues with registered handlers and run them through the
// Executor. It registers itself in the agent fleet and heartbeats like
// any remote agent would.
type Pool struct {
	broker   Broker
	executor *Executor
	registry *Registry
	logger   *slog.Logger

	tenantID id.TenantID
	name     string

	concurrency       int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	gate              ClaimGate

	mu      sync.Mutex
	agentID id.AgentID
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent claim loops.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long a loop sleeps after finding no work.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool heartbeats its agent
// record. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithClaimGate sets the rate limiter consulted before each claim.
func WithClaimGate(g ClaimGate) PoolOption {
	return func(p *Pool) { p.gate = g }
}

// WithName sets the agent name the pool registers under. Defaults to
// the hostname.
func WithName(name string) PoolOption {
	return func(p *Pool) { p.name = name }
}

// NewPool creates a worker pool for one tenant.
func NewPool(
	broker Broker,
	executor *Executor,
	registry *Registry,
	tenantID id.TenantID,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		broker:            broker,
		executor:          executor,
		registry:          registry,
		logger:            logger,
		tenantID:          tenantID,
		concurrency:       4,
		pollInterval:      time.Second,
		heartbeatInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "embedded-worker"
		}
		p.name = host
	}
	return p
}

// AgentID returns the pool's fleet identity, valid after Start.
func (p *Pool) AgentID() id.AgentID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agentID
}

// Start registers the pool as an agent and launches the claim loops.
// It returns immediately. The loops are detached from ctx and run until
// Stop; ctx only bounds the registration call.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	host, _ := os.Hostname()
	a, err := p.broker.RegisterAgent(ctx, p.tenantID, agent.RegisterParams{
		Name:         p.name,
		MachineName:  host,
		Capabilities: p.registry.Queues(),
	})
	if err != nil {
		return err
	}
	p.agentID = a.ID

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	p.group = group
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("agent_id", p.agentID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.registry.Queues()),
	)

	for range p.concurrency {
		group.Go(func() error {
			p.claimLoop(ctx)
			return nil
		})
	}
	if p.heartbeatInterval > 0 {
		group.Go(func() error {
			p.heartbeatLoop(ctx)
			return nil
		})
	}
	return nil
}

// Stop halts the loops, waits for in-flight items, and marks the agent
// offline.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, group, agentID := p.cancel, p.group, p.agentID
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("agent_id", agentID.String()))
	cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
	}

	if _, err := p.broker.Heartbeat(context.WithoutCancel(ctx), p.tenantID, agentID, agent.StatusOffline, nil); err != nil {
		p.logger.Warn("final heartbeat failed", slog.String("error", err.Error()))
	}
	return nil
}

// claimLoop round-robins the registered queues, claiming and executing
// one item at a time.
func (p *Pool) claimLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		worked := false
		for _, q := range p.registry.Queues() {
			if ctx.Err() != nil {
				return
			}
			if p.workOne(ctx, q) {
				worked = true
			}
		}

		if !worked {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
		}
	}
}

// workOne claims and executes at most one item from the queue,
// reporting whether it found work.
func (p *Pool) workOne(ctx context.Context, queue string) bool {
	if p.gate != nil && !p.gate.Acquire(queue, p.tenantID) {
		return false
	}
	released := false
	release := func() {
		if p.gate != nil && !released {
			p.gate.Release(queue, p.tenantID)
			released = true
		}
	}
	defer release()

	item, err := p.broker.ClaimNext(ctx, p.tenantID, queue, p.agentID)
	if err != nil {
		p.logger.Error("claim error",
			slog.String("queue", queue),
			slog.String("error", err.Error()),
		)
		return false
	}
	if item == nil {
		return false
	}

	if err := p.executor.Execute(ctx, item); err != nil {
		p.logger.Debug("item execution failed",
			slog.String("item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return true
}

func (p *Pool) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	// First heartbeat immediately so the agent shows online without
	// waiting a full interval.
	p.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.beat(ctx)
		}
	}
}

func (p *Pool) beat(ctx context.Context) {
	if _, err := p.broker.Heartbeat(ctx, p.tenantID, p.agentID, agent.StatusOnline, nil); err != nil {
		p.logger.Warn("heartbeat failed",
			slog.String("agent_id", p.agentID.String()),
			slog.String("error", err.Error()),
		)
	}
}
