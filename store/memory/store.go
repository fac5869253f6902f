// Package memory is a fully in-memory store backend, safe for
// concurrent access. Intended for unit testing, development, and the
// embedded single-binary deployment.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/process"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ agent.Store     = (*Store)(nil)
	_ process.Store   = (*Store)(nil)
	_ workload.Store  = (*Store)(nil)
	_ execution.Store = (*Store)(nil)
	_ schedule.Store  = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store. A single mutex
// covers every table so cross-table operations (claim, activation, the
// execution/item pair) are trivially atomic.
type Store struct {
	mu sync.RWMutex

	agents     map[string]*agent.Agent
	processes  map[string]*process.Process
	versions   map[string]*process.Version
	items      map[string]*workload.Item
	exceptions map[string]*workload.Exception
	executions map[string]*execution.Execution
	schedules  map[string]*schedule.Schedule
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		agents:     make(map[string]*agent.Agent),
		processes:  make(map[string]*process.Process),
		versions:   make(map[string]*process.Version),
		items:      make(map[string]*workload.Item),
		exceptions: make(map[string]*workload.Exception),
		executions: make(map[string]*execution.Execution),
		schedules:  make(map[string]*schedule.Schedule),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Agent Store
// ──────────────────────────────────────────────────

// CreateAgent persists a new agent.
func (m *Store) CreateAgent(_ context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.agents[a.ID.String()] = &cp
	return nil
}

// GetAgent retrieves an agent by ID within the tenant. A tenant
// mismatch is indistinguishable from a missing agent.
func (m *Store) GetAgent(_ context.Context, tenantID id.TenantID, agentID id.AgentID) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[agentID.String()]
	if !ok || a.TenantID != tenantID || a.Deleted() {
		return nil, conductor.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAgentByName retrieves a non-deleted agent by name within the tenant.
func (m *Store) GetAgentByName(_ context.Context, tenantID id.TenantID, name string) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agents {
		if a.TenantID == tenantID && a.Name == name && !a.Deleted() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, conductor.ErrAgentNotFound
}

// UpdateAgent persists changes to an existing agent.
func (m *Store) UpdateAgent(_ context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ID.String()
	prev, ok := m.agents[key]
	if !ok || prev.TenantID != a.TenantID {
		return conductor.ErrAgentNotFound
	}
	cp := *a
	m.agents[key] = &cp
	return nil
}

// ListAgents returns agents matching the given options, oldest first.
func (m *Store) ListAgents(_ context.Context, tenantID id.TenantID, opts agent.ListOpts) ([]*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	result := make([]*agent.Agent, 0)
	for _, a := range m.agents {
		if a.TenantID != tenantID || a.Deleted() {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.Online != nil && a.Online(now, agent.DefaultOnlineWindow) != *opts.Online {
			continue
		}
		if opts.MachineName != "" && !strings.Contains(a.MachineName, opts.MachineName) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Process Store
// ──────────────────────────────────────────────────

// CreateProcess persists a new process.
func (m *Store) CreateProcess(_ context.Context, p *process.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.processes[p.ID.String()] = &cp
	return nil
}

// GetProcess retrieves a process by ID within the tenant.
func (m *Store) GetProcess(_ context.Context, tenantID id.TenantID, processID id.ProcessID) (*process.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProcessLocked(tenantID, processID)
}

func (m *Store) getProcessLocked(tenantID id.TenantID, processID id.ProcessID) (*process.Process, error) {
	p, ok := m.processes[processID.String()]
	if !ok || p.TenantID != tenantID || p.Deleted() {
		return nil, conductor.ErrProcessNotFound
	}
	cp := *p
	return &cp, nil
}

// GetProcessByName retrieves a non-deleted process by name within the
// tenant.
func (m *Store) GetProcessByName(_ context.Context, tenantID id.TenantID, name string) (*process.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.processes {
		if p.TenantID == tenantID && p.Name == name && !p.Deleted() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, conductor.ErrProcessNotFound
}

// UpdateProcess persists changes to an existing process.
func (m *Store) UpdateProcess(_ context.Context, p *process.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.ID.String()
	prev, ok := m.processes[key]
	if !ok || prev.TenantID != p.TenantID {
		return conductor.ErrProcessNotFound
	}
	cp := *p
	m.processes[key] = &cp
	return nil
}

// ListProcesses returns processes matching the given options, newest
// first.
func (m *Store) ListProcesses(_ context.Context, tenantID id.TenantID, opts process.ListOpts) ([]*process.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*process.Process, 0)
	for _, p := range m.processes {
		if p.TenantID != tenantID || p.Deleted() {
			continue
		}
		if opts.Type != "" && p.Type != opts.Type {
			continue
		}
		if opts.Active != nil && p.Active != *opts.Active {
			continue
		}
		if len(opts.Tags) > 0 && !anyTag(p.Tags, opts.Tags) {
			continue
		}
		if opts.Search != "" &&
			!strings.Contains(strings.ToLower(p.Name), strings.ToLower(opts.Search)) &&
			!strings.Contains(strings.ToLower(p.Description), strings.ToLower(opts.Search)) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// CreateVersion persists a new process version.
func (m *Store) CreateVersion(_ context.Context, v *process.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.getProcessLocked(v.TenantID, v.ProcessID); err != nil {
		return err
	}
	cp := *v
	m.versions[v.ID.String()] = &cp
	return nil
}

// GetVersion retrieves a version by ID within the tenant.
func (m *Store) GetVersion(_ context.Context, tenantID id.TenantID, versionID id.VersionID) (*process.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[versionID.String()]
	if !ok || v.TenantID != tenantID || v.Deleted() {
		return nil, conductor.ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

// ListVersions returns all versions of a process, newest first.
func (m *Store) ListVersions(_ context.Context, tenantID id.TenantID, processID id.ProcessID) ([]*process.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*process.Version, 0)
	for _, v := range m.versions {
		if v.TenantID != tenantID || v.ProcessID != processID || v.Deleted() {
			continue
		}
		cp := *v
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return result, nil
}

// ActiveVersion returns the single active version of a process.
func (m *Store) ActiveVersion(_ context.Context, tenantID id.TenantID, processID id.ProcessID) (*process.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.getProcessLocked(tenantID, processID); err != nil {
		return nil, err
	}
	for _, v := range m.versions {
		if v.TenantID == tenantID && v.ProcessID == processID && v.IsActive && !v.Deleted() {
			cp := *v
			return &cp, nil
		}
	}
	return nil, conductor.ErrNoActiveVersion
}

// ActivateVersion atomically deactivates every sibling version and
// activates the target. Readers never observe an intermediate state;
// the whole swap happens under the store lock.
func (m *Store) ActivateVersion(_ context.Context, tenantID id.TenantID, processID id.ProcessID, versionID id.VersionID) (*process.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.getProcessLocked(tenantID, processID); err != nil {
		return nil, err
	}
	target, ok := m.versions[versionID.String()]
	if !ok || target.TenantID != tenantID || target.ProcessID != processID || target.Deleted() {
		return nil, conductor.ErrVersionNotFound
	}

	now := time.Now().UTC()
	for _, v := range m.versions {
		if v.TenantID == tenantID && v.ProcessID == processID && v.IsActive {
			v.IsActive = false
			v.UpdatedAt = now
		}
	}
	target.IsActive = true
	target.UpdatedAt = now

	cp := *target
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Workload Store
// ──────────────────────────────────────────────────

// CreateItem persists a new queue item.
func (m *Store) CreateItem(_ context.Context, i *workload.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := i.ID.String()
	if _, exists := m.items[key]; exists {
		return conductor.ErrItemExists
	}
	cp := *i
	m.items[key] = &cp
	return nil
}

// GetItem retrieves an item by ID within the tenant.
func (m *Store) GetItem(_ context.Context, tenantID id.TenantID, itemID id.ItemID) (*workload.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.items[itemID.String()]
	if !ok || i.TenantID != tenantID || i.Deleted() {
		return nil, conductor.ErrItemNotFound
	}
	cp := *i
	return &cp, nil
}

// UpdateItem persists changes to an existing item.
func (m *Store) UpdateItem(_ context.Context, i *workload.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := i.ID.String()
	prev, ok := m.items[key]
	if !ok || prev.TenantID != i.TenantID {
		return conductor.ErrItemNotFound
	}
	cp := *i
	cp.UpdatedAt = time.Now().UTC()
	m.items[key] = &cp
	return nil
}

// ClaimItem atomically leases the most urgent eligible item in the
// queue to the agent. Selection and mutation happen under one lock
// acquisition, so two concurrent claimants can never receive the same
// item. Returns (nil, nil) when no eligible item exists.
func (m *Store) ClaimItem(_ context.Context, tenantID id.TenantID, queue string, agentID id.AgentID, leaseFor time.Duration) (*workload.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	var best *workload.Item
	for _, i := range m.items {
		if i.TenantID != tenantID || i.QueueName != queue || i.Deleted() {
			continue
		}
		if !i.Eligible(now) {
			continue
		}
		if best == nil || claimBefore(i, best) {
			best = i
		}
	}
	if best == nil {
		return nil, nil
	}

	expires := now.Add(leaseFor)
	best.Status = workload.StatusProcessing
	best.LeasedBy = agentID
	best.LeaseExpires = &expires
	best.UpdatedAt = now

	cp := *best
	return &cp, nil
}

// claimBefore reports whether a should be claimed ahead of b: higher
// priority first, then strict FIFO by creation time.
func claimBefore(a, b *workload.Item) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ListItems returns items matching the given options, oldest first.
func (m *Store) ListItems(_ context.Context, tenantID id.TenantID, opts workload.ListOpts) ([]*workload.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.collectItems(tenantID, opts)
	return paginate(result, opts.Limit, opts.Offset), nil
}

// CountItems returns the number of items matching the given options.
func (m *Store) CountItems(_ context.Context, tenantID id.TenantID, opts workload.ListOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.collectItems(tenantID, opts))), nil
}

func (m *Store) collectItems(tenantID id.TenantID, opts workload.ListOpts) []*workload.Item {
	result := make([]*workload.Item, 0)
	for _, i := range m.items {
		if i.TenantID != tenantID || i.Deleted() {
			continue
		}
		if opts.Queue != "" && i.QueueName != opts.Queue {
			continue
		}
		if opts.Status != "" && i.Status != opts.Status {
			continue
		}
		if opts.Reference != "" && i.Reference != opts.Reference {
			continue
		}
		cp := *i
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result
}

// RecordException appends an exception entry.
func (m *Store) RecordException(_ context.Context, e *workload.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.exceptions[e.ID.String()] = &cp
	return nil
}

// ListExceptions returns exception entries matching the given options,
// newest first.
func (m *Store) ListExceptions(_ context.Context, tenantID id.TenantID, opts workload.ExceptionListOpts) ([]*workload.Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workload.Exception, 0)
	for _, e := range m.exceptions {
		if e.TenantID != tenantID {
			continue
		}
		if !opts.ItemID.IsNil() && e.ItemID != opts.ItemID {
			continue
		}
		if !opts.ExecutionID.IsNil() && e.ExecutionID != opts.ExecutionID {
			continue
		}
		if opts.Severity != "" && e.Severity != opts.Severity {
			continue
		}
		if opts.Unresolved && e.Resolved {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// ResolveException stamps an exception as resolved.
func (m *Store) ResolveException(_ context.Context, tenantID id.TenantID, exceptionID id.ExceptionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.exceptions[exceptionID.String()]
	if !ok || e.TenantID != tenantID {
		return conductor.ErrExceptionNotFound
	}
	if !e.Resolved {
		now := time.Now().UTC()
		e.Resolved = true
		e.ResolvedAt = &now
	}
	return nil
}

// ──────────────────────────────────────────────────
// Execution Store
// ──────────────────────────────────────────────────

// CreateExecution persists the execution and its queue item as a single
// unit of work under one lock acquisition.
func (m *Store) CreateExecution(_ context.Context, exec *execution.Execution, item *workload.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item != nil {
		if _, exists := m.items[item.ID.String()]; exists {
			return conductor.ErrItemExists
		}
	}

	ecp := *exec
	m.executions[exec.ID.String()] = &ecp
	if item != nil {
		icp := *item
		m.items[item.ID.String()] = &icp
	}
	return nil
}

// GetExecution retrieves an execution by ID within the tenant.
func (m *Store) GetExecution(_ context.Context, tenantID id.TenantID, execID id.ExecutionID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[execID.String()]
	if !ok || e.TenantID != tenantID || e.Deleted() {
		return nil, conductor.ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

// UpdateExecution persists changes to an existing execution.
func (m *Store) UpdateExecution(_ context.Context, exec *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := exec.ID.String()
	prev, ok := m.executions[key]
	if !ok || prev.TenantID != exec.TenantID {
		return conductor.ErrExecutionNotFound
	}
	cp := *exec
	cp.UpdatedAt = time.Now().UTC()
	m.executions[key] = &cp
	return nil
}

// ListExecutions returns executions matching the given options, most
// recent first.
func (m *Store) ListExecutions(_ context.Context, tenantID id.TenantID, opts execution.ListOpts) ([]*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*execution.Execution, 0)
	for _, e := range m.executions {
		if e.TenantID != tenantID || e.Deleted() {
			continue
		}
		if !opts.ProcessID.IsNil() && e.ProcessID != opts.ProcessID {
			continue
		}
		if !opts.AgentID.IsNil() && e.AgentID != opts.AgentID {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		if opts.Trigger != "" && e.Trigger != opts.Trigger {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// CreateSchedule persists a new schedule.
func (m *Store) CreateSchedule(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.schedules[s.ID.String()] = &cp
	return nil
}

// GetSchedule retrieves a schedule by ID within the tenant.
func (m *Store) GetSchedule(_ context.Context, tenantID id.TenantID, schedID id.ScheduleID) (*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[schedID.String()]
	if !ok || s.TenantID != tenantID || s.Deleted() {
		return nil, conductor.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateSchedule persists changes to an existing schedule.
func (m *Store) UpdateSchedule(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	prev, ok := m.schedules[key]
	if !ok || prev.TenantID != s.TenantID {
		return conductor.ErrScheduleNotFound
	}
	cp := *s
	m.schedules[key] = &cp
	return nil
}

// ListSchedules returns schedules matching the given options, oldest
// first.
func (m *Store) ListSchedules(_ context.Context, tenantID id.TenantID, opts schedule.ListOpts) ([]*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Schedule, 0)
	for _, s := range m.schedules {
		if s.TenantID != tenantID || s.Deleted() {
			continue
		}
		if !opts.ProcessID.IsNil() && s.ProcessID != opts.ProcessID {
			continue
		}
		if opts.Active != nil && s.Active != *opts.Active {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// ListDueSchedules returns active schedules across all tenants whose
// next run is at or before now, soonest first.
func (m *Store) ListDueSchedules(_ context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Schedule, 0)
	for _, s := range m.schedules {
		if !s.Active || s.Deleted() || s.NextRunAt == nil {
			continue
		}
		if s.NextRunAt.After(now) {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].NextRunAt.Before(*result[k].NextRunAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func paginate[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return []T{}
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
