package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
)

// DefaultLeaseDuration bounds a claim when no explicit lease duration is
// configured. It must exceed the expected maximum task duration; leases
// are not renewable mid-execution.
const DefaultLeaseDuration = 10 * time.Minute

// DefaultMaxRetries is the retry budget for new items that don't set one.
const DefaultMaxRetries = 3

// CreateItemParams carries the fields for a new queue item.
type CreateItemParams struct {
	QueueName     string
	Reference     string
	Priority      Priority
	Payload       map[string]any
	MaxRetries    int
	DeferredUntil *time.Time
	ProcessID     id.ProcessID
	ExecutionID   id.ExecutionID
}

// FailureParams carries an agent's failure report.
type FailureParams struct {
	Kind       FailureKind
	Severity   Severity
	Message    string
	StackTrace string
	Screenshot string
	Context    map[string]any
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBackoff sets the retry deferral strategy. Defaults to
// backoff.DefaultStrategy (linear, 10-minute unit).
func WithBackoff(b backoff.Strategy) ServiceOption {
	return func(s *Service) { s.backoff = b }
}

// WithLeaseDuration sets the default lease granted by Claim.
func WithLeaseDuration(d time.Duration) ServiceOption {
	return func(s *Service) { s.leaseFor = d }
}

// Service implements the workload queue: the claim/complete/fail protocol
// with linear backoff and lease-based crash recovery.
type Service struct {
	store    Store
	backoff  backoff.Strategy
	leaseFor time.Duration
	logger   *slog.Logger
}

// NewService creates a workload Service.
func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		backoff:  backoff.DefaultStrategy(),
		leaseFor: DefaultLeaseDuration,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LeaseDuration returns the default lease granted by Claim.
func (s *Service) LeaseDuration() time.Duration { return s.leaseFor }

// CreateItem enqueues a standalone work item. Items created with a future
// deferral start in the deferred state and become claimable once it
// elapses.
func (s *Service) CreateItem(ctx context.Context, tenantID id.TenantID, p CreateItemParams) (*Item, error) {
	item := &Item{
		Entity:        conductor.NewEntity(),
		ID:            id.NewItemID(),
		TenantID:      tenantID,
		QueueName:     p.QueueName,
		Reference:     p.Reference,
		Priority:      p.Priority,
		Status:        StatusPending,
		Payload:       p.Payload,
		MaxRetries:    p.MaxRetries,
		DeferredUntil: p.DeferredUntil,
		ProcessID:     p.ProcessID,
		ExecutionID:   p.ExecutionID,
	}
	if item.Priority == "" {
		item.Priority = PriorityNormal
	}
	if item.MaxRetries <= 0 {
		item.MaxRetries = DefaultMaxRetries
	}
	if p.DeferredUntil != nil && p.DeferredUntil.After(time.Now().UTC()) {
		item.Status = StatusDeferred
	}

	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.logger.Info("item enqueued",
		slog.String("item_id", item.ID.String()),
		slog.String("queue", item.QueueName),
		slog.String("priority", string(item.Priority)),
	)
	return item, nil
}

// Claim leases the next eligible item in the queue to the agent: the
// highest-priority, oldest item whose deferral has elapsed and whose
// lease (if any) has expired. The claim is atomic across concurrent
// claimants and never blocks; it returns (nil, nil) when no work exists,
// so agents poll on an interval. Calling again after receiving no work is
// always safe.
func (s *Service) Claim(ctx context.Context, tenantID id.TenantID, queue string, agentID id.AgentID) (*Item, error) {
	item, err := s.store.ClaimItem(ctx, tenantID, queue, agentID, s.leaseFor)
	if err != nil {
		return nil, fmt.Errorf("claim from %q: %w", queue, err)
	}
	if item == nil {
		return nil, nil
	}

	s.logger.Info("item claimed",
		slog.String("item_id", item.ID.String()),
		slog.String("queue", queue),
		slog.String("agent_id", agentID.String()),
	)
	return item, nil
}

// Complete marks the item as successfully finished and releases its
// lease. Completion is idempotent: a missing or already-terminal item is
// a silent no-op, since an agent may retry its report after a network
// partition.
func (s *Service) Complete(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) error {
	item, err := s.store.GetItem(ctx, tenantID, itemID)
	if err != nil {
		if errors.Is(err, conductor.ErrItemNotFound) {
			return nil
		}
		return fmt.Errorf("complete item: %w", err)
	}
	if item.Status.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	item.Status = StatusCompleted
	item.CompletedAt = &now
	item.LeasedBy = id.Nil
	item.LeaseExpires = nil

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("complete item: %w", err)
	}

	s.logger.Info("item completed", slog.String("item_id", itemID.String()))
	return nil
}

// Fail records an agent's failure report and decides the item's fate. A
// system-class failure with retry budget left increments the retry count,
// defers the item by retryCount backoff units, and releases the lease so
// another agent can pick it up once the deferral elapses. Anything else —
// a business or application failure, or an exhausted budget — is terminal.
// Every call appends an exception entry for operator visibility and
// returns the item's final status.
func (s *Service) Fail(ctx context.Context, tenantID id.TenantID, itemID id.ItemID, p FailureParams) (Status, error) {
	item, err := s.store.GetItem(ctx, tenantID, itemID)
	if err != nil {
		return "", fmt.Errorf("fail item: %w", err)
	}
	if item.Status.Terminal() {
		return item.Status, nil
	}

	now := time.Now().UTC()

	if p.Kind == FailureSystem && item.RetryCount < item.MaxRetries {
		item.RetryCount++
		deferred := now.Add(s.backoff.Delay(item.RetryCount))
		item.Status = StatusRetry
		item.DeferredUntil = &deferred
		item.LastError = fmt.Sprintf("retry %d/%d: %s", item.RetryCount, item.MaxRetries, p.Message)
	} else {
		item.Status = StatusFailed
		item.CompletedAt = &now
		item.LastError = p.Message
	}
	item.LeasedBy = id.Nil
	item.LeaseExpires = nil

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return "", fmt.Errorf("fail item: %w", err)
	}

	exc := &Exception{
		ID:          id.NewExceptionID(),
		TenantID:    tenantID,
		ItemID:      item.ID,
		ExecutionID: item.ExecutionID,
		Kind:        p.Kind,
		Severity:    p.Severity,
		Message:     p.Message,
		StackTrace:  p.StackTrace,
		Screenshot:  p.Screenshot,
		Context:     p.Context,
		CreatedAt:   now,
	}
	if exc.Severity == "" {
		exc.Severity = SeverityMedium
	}
	if err := s.store.RecordException(ctx, exc); err != nil {
		return "", fmt.Errorf("record exception: %w", err)
	}

	s.logger.Warn("item failed",
		slog.String("item_id", itemID.String()),
		slog.String("kind", string(p.Kind)),
		slog.String("final_status", string(item.Status)),
		slog.Int("retry_count", item.RetryCount),
	)
	return item.Status, nil
}

// Get retrieves a queue item by ID.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*Item, error) {
	return s.store.GetItem(ctx, tenantID, itemID)
}

// List returns items matching the given options.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Item, error) {
	return s.store.ListItems(ctx, tenantID, opts)
}

// ListExceptions returns exception entries matching the given options.
func (s *Service) ListExceptions(ctx context.Context, tenantID id.TenantID, opts ExceptionListOpts) ([]*Exception, error) {
	return s.store.ListExceptions(ctx, tenantID, opts)
}

// ResolveException marks an exception entry as handled.
func (s *Service) ResolveException(ctx context.Context, tenantID id.TenantID, exceptionID id.ExceptionID) error {
	return s.store.ResolveException(ctx, tenantID, exceptionID)
}
