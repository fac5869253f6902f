package process

import (
	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Version is an immutable artifact reference bound to exactly one process.
// At most one version per process is active at any instant; activation is
// a single atomic transition that deactivates all siblings first. A
// version is never deleted once an execution references it.
type Version struct {
	conductor.Entity

	ID           id.VersionID   `json:"id"`
	TenantID     id.TenantID    `json:"tenant_id"`
	ProcessID    id.ProcessID   `json:"process_id"`
	Version      string         `json:"version"`
	PackagePath  string         `json:"package_path"`
	ReleaseNotes string         `json:"release_notes,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	IsActive     bool           `json:"is_active"`
}
