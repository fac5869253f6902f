package workload_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/store/memory"
	"github.com/xraph/conductor/workload"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(opts ...workload.ServiceOption) *workload.Service {
	return workload.NewService(memory.New(), discardLogger(), opts...)
}

// enqueueAndClaim creates one item and claims it for a fresh agent.
func enqueueAndClaim(t *testing.T, svc *workload.Service, tenantID id.TenantID, p workload.CreateItemParams) (*workload.Item, id.AgentID) {
	t.Helper()
	ctx := context.Background()
	if p.QueueName == "" {
		p.QueueName = "default"
	}
	if _, err := svc.CreateItem(ctx, tenantID, p); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	agentID := id.NewAgentID()
	item, err := svc.Claim(ctx, tenantID, p.QueueName, agentID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if item == nil {
		t.Fatal("Claim returned no item")
	}
	return item, agentID
}

// ──────────────────────────────────────────────────
// CreateItem
// ──────────────────────────────────────────────────

func TestCreateItem_Defaults(t *testing.T) {
	svc := newService()
	item, err := svc.CreateItem(context.Background(), id.NewTenantID(), workload.CreateItemParams{
		QueueName: "invoices",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Priority != workload.PriorityNormal {
		t.Errorf("priority = %q, want %q", item.Priority, workload.PriorityNormal)
	}
	if item.MaxRetries != workload.DefaultMaxRetries {
		t.Errorf("max retries = %d, want %d", item.MaxRetries, workload.DefaultMaxRetries)
	}
	if item.Status != workload.StatusPending {
		t.Errorf("status = %q, want %q", item.Status, workload.StatusPending)
	}
}

func TestCreateItem_FutureDeferralStartsDeferred(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	future := time.Now().UTC().Add(time.Hour)

	item, err := svc.CreateItem(context.Background(), tenantID, workload.CreateItemParams{
		QueueName:     "invoices",
		DeferredUntil: &future,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Status != workload.StatusDeferred {
		t.Errorf("status = %q, want %q", item.Status, workload.StatusDeferred)
	}

	// Not claimable while the deferral holds.
	got, err := svc.Claim(context.Background(), tenantID, "invoices", id.NewAgentID())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got != nil {
		t.Errorf("claimed deferred item %v", got.ID)
	}
}

func TestClaim_EmptyQueueReturnsNil(t *testing.T) {
	svc := newService()
	item, err := svc.Claim(context.Background(), id.NewTenantID(), "empty", id.NewAgentID())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if item != nil {
		t.Errorf("claimed %v from an empty queue", item.ID)
	}
}

func TestClaim_LiveLeaseBlocksReclaim(t *testing.T) {
	svc := newService(workload.WithLeaseDuration(time.Hour))
	tenantID := id.NewTenantID()
	enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{QueueName: "invoices"})

	item, err := svc.Claim(context.Background(), tenantID, "invoices", id.NewAgentID())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if item != nil {
		t.Errorf("claimed %v while another agent held a live lease", item.ID)
	}
}

func TestClaim_ExpiredLeaseReclaimedByAnotherAgent(t *testing.T) {
	svc := newService(workload.WithLeaseDuration(time.Millisecond))
	tenantID := id.NewTenantID()
	item, firstAgent := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{QueueName: "invoices"})

	time.Sleep(5 * time.Millisecond)

	secondAgent := id.NewAgentID()
	reclaimed, err := svc.Claim(context.Background(), tenantID, "invoices", secondAgent)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("expired lease did not make the item claimable again")
	}
	if reclaimed.ID != item.ID {
		t.Errorf("reclaimed %v, want %v", reclaimed.ID, item.ID)
	}
	if reclaimed.LeasedBy != secondAgent {
		t.Errorf("leased by %v (first claimant was %v), want %v", reclaimed.LeasedBy, firstAgent, secondAgent)
	}
	if reclaimed.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0; a takeover is not a retry", reclaimed.RetryCount)
	}
}

// ──────────────────────────────────────────────────
// Complete
// ──────────────────────────────────────────────────

func TestComplete_ClearsLease(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	ctx := context.Background()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	if err := svc.Complete(ctx, tenantID, item.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	done, err := svc.Get(ctx, tenantID, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if done.Status != workload.StatusCompleted {
		t.Errorf("status = %q, want %q", done.Status, workload.StatusCompleted)
	}
	if !done.LeasedBy.IsNil() || done.LeaseExpires != nil {
		t.Errorf("lease not cleared: leased_by=%v expires=%v", done.LeasedBy, done.LeaseExpires)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestComplete_Idempotent(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	ctx := context.Background()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	if err := svc.Complete(ctx, tenantID, item.ID); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if err := svc.Complete(ctx, tenantID, item.ID); err != nil {
		t.Errorf("repeated Complete: %v", err)
	}
	// An unknown item is also a silent no-op.
	if err := svc.Complete(ctx, tenantID, id.NewItemID()); err != nil {
		t.Errorf("Complete on unknown item: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Fail
// ──────────────────────────────────────────────────

func TestFail_SystemDefersWithBackoff(t *testing.T) {
	unit := 30 * time.Minute
	svc := newService(workload.WithBackoff(backoff.NewConstant(unit)))
	tenantID := id.NewTenantID()
	ctx := context.Background()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	before := time.Now().UTC()
	final, err := svc.Fail(ctx, tenantID, item.ID, workload.FailureParams{
		Kind:    workload.FailureSystem,
		Message: "browser crashed",
	})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if final != workload.StatusRetry {
		t.Fatalf("final = %q, want %q", final, workload.StatusRetry)
	}

	got, err := svc.Get(ctx, tenantID, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
	if got.DeferredUntil == nil {
		t.Fatal("DeferredUntil not set")
	}
	if earliest := before.Add(unit); got.DeferredUntil.Before(earliest) {
		t.Errorf("DeferredUntil %v earlier than %v", got.DeferredUntil, earliest)
	}
	if !got.LeasedBy.IsNil() || got.LeaseExpires != nil {
		t.Errorf("lease not released: leased_by=%v expires=%v", got.LeasedBy, got.LeaseExpires)
	}
}

func TestFail_SystemExhaustsBudget(t *testing.T) {
	svc := newService(workload.WithBackoff(backoff.NewConstant(0)))
	tenantID := id.NewTenantID()
	ctx := context.Background()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{MaxRetries: 2})

	report := workload.FailureParams{Kind: workload.FailureSystem, Message: "timeout"}
	for attempt := 1; attempt <= 2; attempt++ {
		final, err := svc.Fail(ctx, tenantID, item.ID, report)
		if err != nil {
			t.Fatalf("Fail attempt %d: %v", attempt, err)
		}
		if final != workload.StatusRetry {
			t.Fatalf("attempt %d final = %q, want %q", attempt, final, workload.StatusRetry)
		}
		// Re-claim so the next failure happens under a lease again.
		if _, err := svc.Claim(ctx, tenantID, "default", id.NewAgentID()); err != nil {
			t.Fatalf("re-claim: %v", err)
		}
	}

	final, err := svc.Fail(ctx, tenantID, item.ID, report)
	if err != nil {
		t.Fatalf("final Fail: %v", err)
	}
	if final != workload.StatusFailed {
		t.Errorf("final = %q, want %q after budget exhausted", final, workload.StatusFailed)
	}
}

func TestFail_BusinessIsTerminal(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	final, err := svc.Fail(context.Background(), tenantID, item.ID, workload.FailureParams{
		Kind:    workload.FailureBusiness,
		Message: "invoice number malformed",
	})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if final != workload.StatusFailed {
		t.Errorf("final = %q, want %q with full retry budget", final, workload.StatusFailed)
	}
}

func TestFail_ApplicationIsTerminal(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	final, err := svc.Fail(context.Background(), tenantID, item.ID, workload.FailureParams{
		Kind:    workload.FailureApplication,
		Message: "nil dereference in script",
	})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if final != workload.StatusFailed {
		t.Errorf("final = %q, want %q", final, workload.StatusFailed)
	}
}

func TestFail_RecordsExceptionWithDefaultSeverity(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	ctx := context.Background()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	if _, err := svc.Fail(ctx, tenantID, item.ID, workload.FailureParams{
		Kind:       workload.FailureBusiness,
		Message:    "record locked",
		StackTrace: "frame one\nframe two",
	}); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	excs, err := svc.ListExceptions(ctx, tenantID, workload.ExceptionListOpts{ItemID: item.ID})
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(excs) != 1 {
		t.Fatalf("exceptions = %d, want 1", len(excs))
	}
	exc := excs[0]
	if exc.Severity != workload.SeverityMedium {
		t.Errorf("severity = %q, want default %q", exc.Severity, workload.SeverityMedium)
	}
	if exc.Kind != workload.FailureBusiness {
		t.Errorf("kind = %q, want %q", exc.Kind, workload.FailureBusiness)
	}
	if exc.StackTrace == "" {
		t.Error("stack trace dropped")
	}
}

func TestFail_TerminalItemKeepsStatus(t *testing.T) {
	svc := newService()
	tenantID := id.NewTenantID()
	ctx := context.Background()
	item, _ := enqueueAndClaim(t, svc, tenantID, workload.CreateItemParams{})

	if err := svc.Complete(ctx, tenantID, item.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	final, err := svc.Fail(ctx, tenantID, item.ID, workload.FailureParams{
		Kind:    workload.FailureSystem,
		Message: "late report",
	})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if final != workload.StatusCompleted {
		t.Errorf("final = %q, want completed to stick", final)
	}

	// A late report against a terminal item leaves no exception.
	excs, err := svc.ListExceptions(ctx, tenantID, workload.ExceptionListOpts{ItemID: item.ID})
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(excs) != 0 {
		t.Errorf("exceptions = %d, want 0", len(excs))
	}
}
