package agent

import (
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Status is the agent's self-reported state.
type Status string

const (
	// StatusOnline means the agent is idle and available for work.
	StatusOnline Status = "online"
	// StatusOffline means the agent is not running or unreachable.
	StatusOffline Status = "offline"
	// StatusBusy means the agent is executing a work item.
	StatusBusy Status = "busy"
	// StatusMaintenance means the agent is administratively paused and
	// never counts as online regardless of heartbeat recency.
	StatusMaintenance Status = "maintenance"
)

// DefaultOnlineWindow is how recent a heartbeat must be for an agent to
// count as online.
const DefaultOnlineWindow = 5 * time.Minute

// Agent is a registered remote worker that claims and executes queue items.
type Agent struct {
	conductor.Entity

	ID            id.AgentID     `json:"id"`
	TenantID      id.TenantID    `json:"tenant_id"`
	Name          string         `json:"name"`
	MachineName   string         `json:"machine_name,omitempty"`
	Address       string         `json:"address,omitempty"`
	Version       string         `json:"version,omitempty"`
	Capabilities  []string       `json:"capabilities,omitempty"`
	Status        Status         `json:"status"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Online reports whether the agent counts as online at the given instant:
// its status is not maintenance and its last heartbeat is within window.
func (a *Agent) Online(now time.Time, window time.Duration) bool {
	if a.Status == StatusMaintenance {
		return false
	}
	if a.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*a.LastHeartbeat) < window
}
