package process

import (
	"context"

	"github.com/xraph/conductor/id"
)

// ListOpts controls filtering and pagination for process list queries.
type ListOpts struct {
	// Type filters by process type. Empty means all types.
	Type Type
	// Active filters by the active flag when non-nil.
	Active *bool
	// Tags filters to processes carrying at least one of the given tags.
	Tags []string
	// Search matches name or description substrings. Empty means all.
	Search string
	// Limit is the maximum number of processes to return. Zero means no limit.
	Limit int
	// Offset is the number of processes to skip.
	Offset int
}

// Store defines the persistence contract for processes and their versions.
// All reads exclude soft-deleted rows; a tenant mismatch is reported as
// not found.
type Store interface {
	// CreateProcess persists a new process.
	CreateProcess(ctx context.Context, p *Process) error

	// GetProcess retrieves a process by ID within the tenant.
	GetProcess(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*Process, error)

	// GetProcessByName retrieves a non-deleted process by its unique name
	// within the tenant.
	GetProcessByName(ctx context.Context, tenantID id.TenantID, name string) (*Process, error)

	// UpdateProcess persists changes to an existing process.
	UpdateProcess(ctx context.Context, p *Process) error

	// ListProcesses returns processes matching the given options, newest
	// first.
	ListProcesses(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Process, error)

	// CreateVersion persists a new process version.
	CreateVersion(ctx context.Context, v *Version) error

	// GetVersion retrieves a version by ID within the tenant.
	GetVersion(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) (*Version, error)

	// ListVersions returns all versions of a process, newest first.
	ListVersions(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) ([]*Version, error)

	// ActiveVersion returns the single active version of a process, or
	// ErrNoActiveVersion if none exists.
	ActiveVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*Version, error)

	// ActivateVersion atomically deactivates every sibling version of the
	// process and activates the target, within one store transaction. A
	// reader never observes two active versions or zero active versions
	// as an intermediate state.
	ActivateVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, versionID id.VersionID) (*Version, error)
}
