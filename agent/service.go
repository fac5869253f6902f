package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// RegisterParams carries the fields an agent declares on registration.
type RegisterParams struct {
	Name         string
	MachineName  string
	Address      string
	Version      string
	Capabilities []string
	Extra        map[string]any
}

// Service implements the agent fleet registry. Heartbeat is a
// last-writer-wins update; no locking is required because heartbeats are
// monotonically informative and idempotent.
type Service struct {
	store        Store
	logger       *slog.Logger
	onlineWindow time.Duration
}

// NewService creates an agent Service. A zero onlineWindow falls back to
// DefaultOnlineWindow.
func NewService(store Store, logger *slog.Logger, onlineWindow time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if onlineWindow <= 0 {
		onlineWindow = DefaultOnlineWindow
	}
	return &Service{store: store, logger: logger, onlineWindow: onlineWindow}
}

// OnlineWindow returns the configured heartbeat freshness window.
func (s *Service) OnlineWindow() time.Duration { return s.onlineWindow }

// Register creates a new agent. The name must be unique among non-deleted
// agents within the tenant.
func (s *Service) Register(ctx context.Context, tenantID id.TenantID, p RegisterParams) (*Agent, error) {
	if _, err := s.store.GetAgentByName(ctx, tenantID, p.Name); err == nil {
		return nil, fmt.Errorf("register agent %q: %w", p.Name, conductor.ErrAgentNameTaken)
	} else if !errors.Is(err, conductor.ErrAgentNotFound) {
		return nil, fmt.Errorf("register agent %q: %w", p.Name, err)
	}

	a := &Agent{
		Entity:       conductor.NewEntity(),
		ID:           id.NewAgentID(),
		TenantID:     tenantID,
		Name:         p.Name,
		MachineName:  p.MachineName,
		Address:      p.Address,
		Version:      p.Version,
		Capabilities: p.Capabilities,
		Status:       StatusOffline,
		Extra:        p.Extra,
	}
	if a.Extra == nil {
		a.Extra = map[string]any{}
	}

	if err := s.store.CreateAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("register agent %q: %w", p.Name, err)
	}

	s.logger.Info("agent registered",
		slog.String("agent_id", a.ID.String()),
		slog.String("name", a.Name),
		slog.String("tenant_id", tenantID.String()),
	)
	return a, nil
}

// EnsureRegistered returns the agent with the given name, registering it
// on first contact. Used by agents that self-register.
func (s *Service) EnsureRegistered(ctx context.Context, tenantID id.TenantID, p RegisterParams) (*Agent, error) {
	a, err := s.store.GetAgentByName(ctx, tenantID, p.Name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, conductor.ErrAgentNotFound) {
		return nil, err
	}
	return s.Register(ctx, tenantID, p)
}

// Get retrieves an agent by ID.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, agentID id.AgentID) (*Agent, error) {
	return s.store.GetAgent(ctx, tenantID, agentID)
}

// List returns agents matching the given options.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Agent, error) {
	return s.store.ListAgents(ctx, tenantID, opts)
}

// Heartbeat records a liveness report: it stamps LastHeartbeat, sets the
// reported status, and merges (never replaces) extra into the stored
// metadata. Unknown or soft-deleted agents are reported as not found.
func (s *Service) Heartbeat(ctx context.Context, tenantID id.TenantID, agentID id.AgentID, status Status, extra map[string]any) (*Agent, error) {
	a, err := s.store.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	now := time.Now().UTC()
	a.Status = status
	a.LastHeartbeat = &now
	if len(extra) > 0 {
		if a.Extra == nil {
			a.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			a.Extra[k] = v
		}
	}

	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	s.logger.Debug("heartbeat recorded",
		slog.String("agent_id", agentID.String()),
		slog.String("status", string(status)),
	)
	return a, nil
}

// Rename changes the agent's unique name, failing on conflict.
func (s *Service) Rename(ctx context.Context, tenantID id.TenantID, agentID id.AgentID, name string) (*Agent, error) {
	a, err := s.store.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	if name == a.Name {
		return a, nil
	}

	if _, err := s.store.GetAgentByName(ctx, tenantID, name); err == nil {
		return nil, fmt.Errorf("rename agent: %w", conductor.ErrAgentNameTaken)
	} else if !errors.Is(err, conductor.ErrAgentNotFound) {
		return nil, err
	}

	a.Name = name
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete soft-deletes the agent and forces its status to offline. The
// record is retained for audit.
func (s *Service) Delete(ctx context.Context, tenantID id.TenantID, agentID id.AgentID) error {
	a, err := s.store.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return err
	}

	a.Status = StatusOffline
	a.MarkDeleted()
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return err
	}

	s.logger.Info("agent deleted",
		slog.String("agent_id", agentID.String()),
		slog.String("name", a.Name),
	)
	return nil
}

// IsOnline reports whether the agent counts as online right now under the
// service's configured window.
func (s *Service) IsOnline(a *Agent) bool {
	return a.Online(time.Now().UTC(), s.onlineWindow)
}
