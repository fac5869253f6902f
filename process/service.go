package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// CreateParams carries the fields for a new process.
type CreateParams struct {
	Name        string
	Description string
	Type        Type
	Tags        []string
	Extra       map[string]any
}

// UpdateParams carries the mutable fields of a process. Nil pointers leave
// the stored value unchanged.
type UpdateParams struct {
	Name        *string
	Description *string
	Type        *Type
	Active      *bool
	Tags        []string
	Extra       map[string]any
}

// VersionParams carries the fields for a new process version.
type VersionParams struct {
	Version      string
	PackagePath  string
	ReleaseNotes string
	Config       map[string]any
	Activate     bool
}

// Service implements the process and version registry.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a process Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Create registers a new process. The name must be unique among
// non-deleted processes within the tenant.
func (s *Service) Create(ctx context.Context, tenantID id.TenantID, p CreateParams) (*Process, error) {
	if _, err := s.store.GetProcessByName(ctx, tenantID, p.Name); err == nil {
		return nil, fmt.Errorf("create process %q: %w", p.Name, conductor.ErrProcessNameTaken)
	} else if !errors.Is(err, conductor.ErrProcessNotFound) {
		return nil, fmt.Errorf("create process %q: %w", p.Name, err)
	}

	proc := &Process{
		Entity:      conductor.NewEntity(),
		ID:          id.NewProcessID(),
		TenantID:    tenantID,
		Name:        p.Name,
		Description: p.Description,
		Type:        p.Type,
		Active:      true,
		Tags:        p.Tags,
		Extra:       p.Extra,
	}
	if proc.Type == "" {
		proc.Type = TypeUnattended
	}

	if err := s.store.CreateProcess(ctx, proc); err != nil {
		return nil, fmt.Errorf("create process %q: %w", p.Name, err)
	}

	s.logger.Info("process created",
		slog.String("process_id", proc.ID.String()),
		slog.String("name", proc.Name),
		slog.String("tenant_id", tenantID.String()),
	)
	return proc, nil
}

// Get retrieves a process by ID.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*Process, error) {
	return s.store.GetProcess(ctx, tenantID, processID)
}

// List returns processes matching the given options.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Process, error) {
	return s.store.ListProcesses(ctx, tenantID, opts)
}

// Update applies the given changes. A rename is checked for uniqueness.
func (s *Service) Update(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, p UpdateParams) (*Process, error) {
	proc, err := s.store.GetProcess(ctx, tenantID, processID)
	if err != nil {
		return nil, err
	}

	if p.Name != nil && *p.Name != proc.Name {
		if _, err := s.store.GetProcessByName(ctx, tenantID, *p.Name); err == nil {
			return nil, fmt.Errorf("update process: %w", conductor.ErrProcessNameTaken)
		} else if !errors.Is(err, conductor.ErrProcessNotFound) {
			return nil, err
		}
		proc.Name = *p.Name
	}
	if p.Description != nil {
		proc.Description = *p.Description
	}
	if p.Type != nil {
		proc.Type = *p.Type
	}
	if p.Active != nil {
		proc.Active = *p.Active
	}
	if p.Tags != nil {
		proc.Tags = p.Tags
	}
	if p.Extra != nil {
		proc.Extra = p.Extra
	}

	if err := s.store.UpdateProcess(ctx, proc); err != nil {
		return nil, err
	}
	return proc, nil
}

// Delete soft-deletes a process. Its versions and execution history are
// retained for audit.
func (s *Service) Delete(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) error {
	proc, err := s.store.GetProcess(ctx, tenantID, processID)
	if err != nil {
		return err
	}

	proc.Active = false
	proc.MarkDeleted()
	if err := s.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}

	s.logger.Info("process deleted",
		slog.String("process_id", processID.String()),
		slog.String("name", proc.Name),
	)
	return nil
}

// CreateVersion registers a new immutable version of the process. The
// version string must be unique within the process. With Activate set,
// the new version atomically becomes the single active one.
func (s *Service) CreateVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, p VersionParams) (*Version, error) {
	proc, err := s.store.GetProcess(ctx, tenantID, processID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListVersions(ctx, tenantID, processID)
	if err != nil {
		return nil, err
	}
	for _, v := range existing {
		if v.Version == p.Version {
			return nil, fmt.Errorf("create version %q: %w", p.Version, conductor.ErrVersionExists)
		}
	}

	v := &Version{
		Entity:       conductor.NewEntity(),
		ID:           id.NewVersionID(),
		TenantID:     tenantID,
		ProcessID:    proc.ID,
		Version:      p.Version,
		PackagePath:  p.PackagePath,
		ReleaseNotes: p.ReleaseNotes,
		Config:       p.Config,
	}

	if err := s.store.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("create version %q: %w", p.Version, err)
	}

	s.logger.Info("version created",
		slog.String("version_id", v.ID.String()),
		slog.String("process_id", proc.ID.String()),
		slog.String("version", v.Version),
	)

	if p.Activate {
		return s.Activate(ctx, tenantID, processID, v.ID)
	}
	return v, nil
}

// ListVersions returns all versions of a process, newest first.
func (s *Service) ListVersions(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) ([]*Version, error) {
	if _, err := s.store.GetProcess(ctx, tenantID, processID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, tenantID, processID)
}

// Activate makes the target version the single active version of its
// process. The deactivate-siblings-then-activate step is atomic in the
// store; readers never observe two active versions.
func (s *Service) Activate(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, versionID id.VersionID) (*Version, error) {
	v, err := s.store.ActivateVersion(ctx, tenantID, processID, versionID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("version activated",
		slog.String("version_id", v.ID.String()),
		slog.String("process_id", processID.String()),
		slog.String("version", v.Version),
	)
	return v, nil
}

// ActiveVersion returns the currently active version of the process, or
// ErrNoActiveVersion when none exists.
func (s *Service) ActiveVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*Version, error) {
	return s.store.ActiveVersion(ctx, tenantID, processID)
}
