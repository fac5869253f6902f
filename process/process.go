package process

import (
	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Type classifies how a process is executed.
type Type string

const (
	// TypeAttended requires a human present at the agent machine.
	TypeAttended Type = "attended"
	// TypeUnattended runs fully autonomously.
	TypeUnattended Type = "unattended"
	// TypeHybrid mixes attended and unattended steps.
	TypeHybrid Type = "hybrid"
)

// Process is a named automation definition owning zero or more versions.
// Processes are soft-deleted only; versions must remain auditable.
type Process struct {
	conductor.Entity

	ID          id.ProcessID   `json:"id"`
	TenantID    id.TenantID    `json:"tenant_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        Type           `json:"type"`
	Active      bool           `json:"active"`
	Tags        []string       `json:"tags,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}
