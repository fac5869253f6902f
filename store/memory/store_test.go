package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/process"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

func newItem(tenantID id.TenantID, queue string, prio workload.Priority) *workload.Item {
	return &workload.Item{
		Entity:     conductor.NewEntity(),
		ID:         id.NewItemID(),
		TenantID:   tenantID,
		QueueName:  queue,
		Priority:   prio,
		Status:     workload.StatusPending,
		MaxRetries: 3,
	}
}

// ──────────────────────────────────────────────────
// Claim protocol
// ──────────────────────────────────────────────────

func TestClaimItem_Empty(t *testing.T) {
	s := New()
	item, err := s.ClaimItem(context.Background(), id.NewTenantID(), "q", id.NewAgentID(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item from empty queue, got %v", item.ID)
	}
}

func TestClaimItem_SetsLease(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()
	agentID := id.NewAgentID()

	orig := newItem(tenant, "q", workload.PriorityNormal)
	if err := s.CreateItem(ctx, orig); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := s.ClaimItem(ctx, tenant, "q", agentID, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected an item")
	}
	if claimed.ID != orig.ID {
		t.Fatalf("claimed wrong item: %v", claimed.ID)
	}
	if claimed.Status != workload.StatusProcessing {
		t.Fatalf("status = %q, want processing", claimed.Status)
	}
	if claimed.LeasedBy != agentID {
		t.Fatalf("leased by %v, want %v", claimed.LeasedBy, agentID)
	}
	if claimed.LeaseExpires == nil || !claimed.LeaseExpires.After(time.Now()) {
		t.Fatal("lease expiry not set in the future")
	}

	// A second claim finds nothing.
	again, err := s.ClaimItem(ctx, tenant, "q", id.NewAgentID(), time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatal("item claimed twice")
	}
}

func TestClaimItem_PriorityThenFIFO(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	low := newItem(tenant, "q", workload.PriorityLow)
	first := newItem(tenant, "q", workload.PriorityNormal)
	first.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	second := newItem(tenant, "q", workload.PriorityNormal)
	second.CreatedAt = time.Now().UTC().Add(-time.Hour)
	urgent := newItem(tenant, "q", workload.PriorityCritical)

	for _, i := range []*workload.Item{low, first, second, urgent} {
		if err := s.CreateItem(ctx, i); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	want := []id.ItemID{urgent.ID, first.ID, second.ID, low.ID}
	for n, wantID := range want {
		got, err := s.ClaimItem(ctx, tenant, "q", id.NewAgentID(), time.Minute)
		if err != nil {
			t.Fatalf("claim %d: %v", n, err)
		}
		if got == nil {
			t.Fatalf("claim %d: expected an item", n)
		}
		if got.ID != wantID {
			t.Fatalf("claim %d: got %v, want %v", n, got.ID, wantID)
		}
	}
}

func TestClaimItem_MutualExclusion(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	const items = 20
	const claimants = 50

	for range items {
		if err := s.CreateItem(ctx, newItem(tenant, "q", workload.PriorityNormal)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[id.ItemID]int)
	var wg sync.WaitGroup
	for range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agentID := id.NewAgentID()
			for {
				item, err := s.ClaimItem(ctx, tenant, "q", agentID, time.Minute)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if item == nil {
					return
				}
				mu.Lock()
				seen[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != items {
		t.Fatalf("claimed %d distinct items, want %d", len(seen), items)
	}
	for itemID, n := range seen {
		if n != 1 {
			t.Errorf("item %v claimed %d times", itemID, n)
		}
	}
}

func TestClaimItem_DeferredNotEligible(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	future := time.Now().UTC().Add(time.Hour)
	item := newItem(tenant, "q", workload.PriorityNormal)
	item.Status = workload.StatusDeferred
	item.DeferredUntil = &future
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ClaimItem(ctx, tenant, "q", id.NewAgentID(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatal("deferred item should not be claimable")
	}

	// Elapse the deferral.
	past := time.Now().UTC().Add(-time.Minute)
	item.DeferredUntil = &past
	if err := s.UpdateItem(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.ClaimItem(ctx, tenant, "q", id.NewAgentID(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil {
		t.Fatal("item should be claimable after deferral elapses")
	}
}

func TestClaimItem_ExpiredLeaseRecoverable(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()
	crashed := id.NewAgentID()

	item := newItem(tenant, "q", workload.PriorityNormal)
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	// First agent claims with a lease that expires immediately.
	got, err := s.ClaimItem(ctx, tenant, "q", crashed, -time.Second)
	if err != nil || got == nil {
		t.Fatalf("first claim: item=%v err=%v", got, err)
	}

	// The agent crashes; no reaper runs. Another agent claims directly.
	second := id.NewAgentID()
	got, err = s.ClaimItem(ctx, tenant, "q", second, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if got == nil {
		t.Fatal("expired lease should make the item claimable")
	}
	if got.LeasedBy != second {
		t.Fatalf("leased by %v, want %v", got.LeasedBy, second)
	}
}

func TestClaimItem_TenantIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := id.NewTenantID()
	other := id.NewTenantID()

	if err := s.CreateItem(ctx, newItem(owner, "q", workload.PriorityNormal)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ClaimItem(ctx, other, "q", id.NewAgentID(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatal("claim crossed tenant boundary")
	}
}

func TestGetItem_TenantMismatchIsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := id.NewTenantID()

	item := newItem(owner, "q", workload.PriorityNormal)
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := s.GetItem(ctx, id.NewTenantID(), item.ID)
	if !conductor.IsNotFound(err) {
		t.Fatalf("expected not-found for foreign tenant, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Version activation invariant
// ──────────────────────────────────────────────────

func newProcess(tenant id.TenantID, name string) *process.Process {
	return &process.Process{
		Entity:   conductor.NewEntity(),
		ID:       id.NewProcessID(),
		TenantID: tenant,
		Name:     name,
		Type:     process.TypeUnattended,
		Active:   true,
	}
}

func newVersion(p *process.Process, v string) *process.Version {
	return &process.Version{
		Entity:      conductor.NewEntity(),
		ID:          id.NewVersionID(),
		TenantID:    p.TenantID,
		ProcessID:   p.ID,
		Version:     v,
		PackagePath: "pkg/" + v,
	}
}

func TestActivateVersion_SingleActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	p := newProcess(tenant, "invoice-sync")
	if err := s.CreateProcess(ctx, p); err != nil {
		t.Fatalf("create process: %v", err)
	}
	v1 := newVersion(p, "1.0.0")
	v2 := newVersion(p, "1.1.0")
	for _, v := range []*process.Version{v1, v2} {
		if err := s.CreateVersion(ctx, v); err != nil {
			t.Fatalf("create version: %v", err)
		}
	}

	if _, err := s.ActivateVersion(ctx, tenant, p.ID, v1.ID); err != nil {
		t.Fatalf("activate v1: %v", err)
	}
	if _, err := s.ActivateVersion(ctx, tenant, p.ID, v2.ID); err != nil {
		t.Fatalf("activate v2: %v", err)
	}

	active, err := s.ActiveVersion(ctx, tenant, p.ID)
	if err != nil {
		t.Fatalf("active version: %v", err)
	}
	if active.ID != v2.ID {
		t.Fatalf("active = %v, want %v", active.ID, v2.ID)
	}

	versions, err := s.ListVersions(ctx, tenant, p.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly 1 active version, got %d", activeCount)
	}
}

func TestActivateVersion_ConcurrentNeverTwoActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	p := newProcess(tenant, "report-gen")
	if err := s.CreateProcess(ctx, p); err != nil {
		t.Fatalf("create process: %v", err)
	}
	versions := make([]*process.Version, 10)
	for i := range versions {
		versions[i] = newVersion(p, string(rune('a'+i)))
		if err := s.CreateVersion(ctx, versions[i]); err != nil {
			t.Fatalf("create version: %v", err)
		}
	}

	var wg sync.WaitGroup
	for _, v := range versions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ActivateVersion(ctx, tenant, p.ID, v.ID); err != nil {
				t.Errorf("activate: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.ListVersions(ctx, tenant, p.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	activeCount := 0
	for _, v := range got {
		if v.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly 1 active version after concurrent activations, got %d", activeCount)
	}
}

func TestActiveVersion_NoneActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	p := newProcess(tenant, "no-active")
	if err := s.CreateProcess(ctx, p); err != nil {
		t.Fatalf("create process: %v", err)
	}
	if err := s.CreateVersion(ctx, newVersion(p, "1.0.0")); err != nil {
		t.Fatalf("create version: %v", err)
	}

	_, err := s.ActiveVersion(ctx, tenant, p.ID)
	if err != conductor.ErrNoActiveVersion {
		t.Fatalf("expected ErrNoActiveVersion, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Execution unit of work
// ──────────────────────────────────────────────────

func TestCreateExecution_PairIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	item := newItem(tenant, "q", workload.PriorityNormal)
	exec := &execution.Execution{
		Entity:   conductor.NewEntity(),
		ID:       id.NewExecutionID(),
		TenantID: tenant,
		ItemID:   item.ID,
		Trigger:  execution.TriggerManual,
		Status:   execution.StatusQueued,
	}
	item.ExecutionID = exec.ID

	if err := s.CreateExecution(ctx, exec, item); err != nil {
		t.Fatalf("create execution: %v", err)
	}

	gotExec, err := s.GetExecution(ctx, tenant, exec.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	gotItem, err := s.GetItem(ctx, tenant, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if gotExec.ItemID != gotItem.ID || gotItem.ExecutionID != gotExec.ID {
		t.Fatal("execution/item cross-references broken")
	}
}

func TestCreateExecution_DuplicateItemRejectsBoth(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	item := newItem(tenant, "q", workload.PriorityNormal)
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	exec := &execution.Execution{
		Entity:   conductor.NewEntity(),
		ID:       id.NewExecutionID(),
		TenantID: tenant,
		ItemID:   item.ID,
		Status:   execution.StatusQueued,
	}
	err := s.CreateExecution(ctx, exec, item)
	if err != conductor.ErrItemExists {
		t.Fatalf("expected ErrItemExists, got %v", err)
	}
	// The execution must not exist either.
	if _, err := s.GetExecution(ctx, tenant, exec.ID); !conductor.IsNotFound(err) {
		t.Fatalf("execution leaked from failed unit of work: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Agents
// ──────────────────────────────────────────────────

func TestAgent_RoundTripAndOnlineFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()

	now := time.Now().UTC()
	fresh := &agent.Agent{
		Entity:        conductor.NewEntity(),
		ID:            id.NewAgentID(),
		TenantID:      tenant,
		Name:          "bot-01",
		Status:        agent.StatusOnline,
		LastHeartbeat: &now,
	}
	stale := &agent.Agent{
		Entity:   conductor.NewEntity(),
		ID:       id.NewAgentID(),
		TenantID: tenant,
		Name:     "bot-02",
		Status:   agent.StatusOnline,
	}
	old := now.Add(-time.Hour)
	stale.LastHeartbeat = &old

	for _, a := range []*agent.Agent{fresh, stale} {
		if err := s.CreateAgent(ctx, a); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}

	online := true
	got, err := s.ListAgents(ctx, tenant, agent.ListOpts{Online: &online})
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(got) != 1 || got[0].ID != fresh.ID {
		t.Fatalf("online filter returned %d agents", len(got))
	}

	offline := false
	got, err = s.ListAgents(ctx, tenant, agent.ListOpts{Online: &offline})
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(got) != 1 || got[0].ID != stale.ID {
		t.Fatalf("offline filter returned %d agents", len(got))
	}
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func TestListDueSchedules_CrossTenant(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &schedule.Schedule{
		Entity:    conductor.NewEntity(),
		ID:        id.NewScheduleID(),
		TenantID:  id.NewTenantID(),
		ProcessID: id.NewProcessID(),
		Name:      "due",
		Kind:      schedule.KindCron,
		CronExpr:  "* * * * *",
		Active:    true,
		NextRunAt: &past,
	}
	notYet := &schedule.Schedule{
		Entity:    conductor.NewEntity(),
		ID:        id.NewScheduleID(),
		TenantID:  id.NewTenantID(),
		ProcessID: id.NewProcessID(),
		Name:      "not-yet",
		Kind:      schedule.KindCron,
		CronExpr:  "* * * * *",
		Active:    true,
		NextRunAt: &future,
	}
	inactive := &schedule.Schedule{
		Entity:    conductor.NewEntity(),
		ID:        id.NewScheduleID(),
		TenantID:  id.NewTenantID(),
		ProcessID: id.NewProcessID(),
		Name:      "inactive",
		Kind:      schedule.KindCron,
		CronExpr:  "* * * * *",
		NextRunAt: &past,
	}
	for _, sc := range []*schedule.Schedule{due, notYet, inactive} {
		if err := s.CreateSchedule(ctx, sc); err != nil {
			t.Fatalf("create schedule: %v", err)
		}
	}

	got, err := s.ListDueSchedules(ctx, now, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected only the due schedule, got %d", len(got))
	}
}

// ──────────────────────────────────────────────────
// Exceptions
// ──────────────────────────────────────────────────

func TestExceptions_RecordListResolve(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := id.NewTenantID()
	itemID := id.NewItemID()

	exc := &workload.Exception{
		ID:        id.NewExceptionID(),
		TenantID:  tenant,
		ItemID:    itemID,
		Kind:      workload.FailureSystem,
		Severity:  workload.SeverityHigh,
		Message:   "selector not found",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.RecordException(ctx, exc); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.ListExceptions(ctx, tenant, workload.ExceptionListOpts{ItemID: itemID, Unresolved: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 exception, got %d", len(got))
	}

	if err := s.ResolveException(ctx, tenant, exc.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err = s.ListExceptions(ctx, tenant, workload.ExceptionListOpts{ItemID: itemID, Unresolved: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("resolved exception still listed as unresolved")
	}
}
