package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/process"
)

const processColumns = `
	id, tenant_id, name, description, type, active, tags, extra,
	created_at, updated_at, deleted_at`

const versionColumns = `
	id, tenant_id, process_id, version, package_path, release_notes,
	config, is_active, created_at, updated_at, deleted_at`

// CreateProcess persists a new process.
func (s *Store) CreateProcess(ctx context.Context, p *process.Process) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conductor_processes (
			id, tenant_id, name, description, type, active, tags, extra,
			created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID.String(), p.TenantID.String(), p.Name, p.Description,
		string(p.Type), p.Active, p.Tags, p.Extra,
		p.CreatedAt, p.UpdatedAt, p.DeletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrProcessNameTaken
		}
		return fmt.Errorf("conductor/postgres: create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process by ID within the tenant.
func (s *Store) GetProcess(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*process.Process, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+processColumns+`
		FROM conductor_processes
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		processID.String(), tenantID.String(),
	)
	p, err := scanProcess(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrProcessNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get process: %w", err)
	}
	return p, nil
}

// GetProcessByName retrieves a non-deleted process by name within the
// tenant.
func (s *Store) GetProcessByName(ctx context.Context, tenantID id.TenantID, name string) (*process.Process, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+processColumns+`
		FROM conductor_processes
		WHERE tenant_id = $1 AND name = $2 AND deleted_at IS NULL`,
		tenantID.String(), name,
	)
	p, err := scanProcess(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrProcessNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get process by name: %w", err)
	}
	return p, nil
}

// UpdateProcess persists changes to an existing process.
func (s *Store) UpdateProcess(ctx context.Context, p *process.Process) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_processes SET
			name = $3, description = $4, type = $5, active = $6, tags = $7,
			extra = $8, updated_at = NOW(), deleted_at = $9
		WHERE id = $1 AND tenant_id = $2`,
		p.ID.String(), p.TenantID.String(), p.Name, p.Description,
		string(p.Type), p.Active, p.Tags, p.Extra, p.DeletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrProcessNameTaken
		}
		return fmt.Errorf("conductor/postgres: update process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrProcessNotFound
	}
	return nil
}

// ListProcesses returns processes matching the given options, newest
// first.
func (s *Store) ListProcesses(ctx context.Context, tenantID id.TenantID, opts process.ListOpts) ([]*process.Process, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + processColumns + `
		FROM conductor_processes
		WHERE tenant_id = $1 AND deleted_at IS NULL`)
	args := []any{tenantID.String()}

	if opts.Type != "" {
		args = append(args, string(opts.Type))
		b.WriteString(" AND type = $" + strconv.Itoa(len(args)))
	}
	if opts.Active != nil {
		args = append(args, *opts.Active)
		b.WriteString(" AND active = $" + strconv.Itoa(len(args)))
	}
	if len(opts.Tags) > 0 {
		args = append(args, opts.Tags)
		b.WriteString(" AND tags && $" + strconv.Itoa(len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		n := strconv.Itoa(len(args))
		b.WriteString(" AND (name ILIKE $" + n + " OR description ILIKE $" + n + ")")
	}
	b.WriteString(" ORDER BY created_at DESC")
	appendLimitOffset(&b, &args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list processes: %w", err)
	}
	defer rows.Close()

	var result []*process.Process
	for rows.Next() {
		p, scanErr := scanProcess(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan process: %w", scanErr)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// CreateVersion persists a new process version.
func (s *Store) CreateVersion(ctx context.Context, v *process.Version) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conductor_versions (
			id, tenant_id, process_id, version, package_path, release_notes,
			config, is_active, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID.String(), v.TenantID.String(), v.ProcessID.String(), v.Version,
		v.PackagePath, v.ReleaseNotes, v.Config, v.IsActive,
		v.CreatedAt, v.UpdatedAt, v.DeletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrVersionExists
		}
		return fmt.Errorf("conductor/postgres: create version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version by ID within the tenant.
func (s *Store) GetVersion(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) (*process.Version, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+versionColumns+`
		FROM conductor_versions
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		versionID.String(), tenantID.String(),
	)
	v, err := scanVersion(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrVersionNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get version: %w", err)
	}
	return v, nil
}

// ListVersions returns all versions of a process, newest first.
func (s *Store) ListVersions(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) ([]*process.Version, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+versionColumns+`
		FROM conductor_versions
		WHERE tenant_id = $1 AND process_id = $2 AND deleted_at IS NULL
		ORDER BY created_at DESC`,
		tenantID.String(), processID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list versions: %w", err)
	}
	defer rows.Close()

	var result []*process.Version
	for rows.Next() {
		v, scanErr := scanVersion(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan version: %w", scanErr)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// ActiveVersion returns the single active version of a process.
func (s *Store) ActiveVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID) (*process.Version, error) {
	if _, err := s.GetProcess(ctx, tenantID, processID); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT`+versionColumns+`
		FROM conductor_versions
		WHERE tenant_id = $1 AND process_id = $2 AND is_active AND deleted_at IS NULL`,
		tenantID.String(), processID.String(),
	)
	v, err := scanVersion(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrNoActiveVersion
		}
		return nil, fmt.Errorf("conductor/postgres: active version: %w", err)
	}
	return v, nil
}

// ActivateVersion atomically deactivates every sibling version of the
// process and activates the target within one transaction. The partial
// unique index on (process_id) WHERE is_active backstops the invariant
// against races.
func (s *Store) ActivateVersion(ctx context.Context, tenantID id.TenantID, processID id.ProcessID, versionID id.VersionID) (*process.Version, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: begin activate: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE conductor_versions
		SET is_active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND process_id = $2 AND is_active`,
		tenantID.String(), processID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: deactivate siblings: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE conductor_versions
		SET is_active = TRUE, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND process_id = $3 AND deleted_at IS NULL
		RETURNING`+versionColumns,
		versionID.String(), tenantID.String(), processID.String(),
	)
	v, err := scanVersion(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrVersionNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: activate version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("conductor/postgres: commit activate: %w", err)
	}
	return v, nil
}

func scanProcess(row pgx.Row) (*process.Process, error) {
	var (
		p                process.Process
		rawID, rawTenant string
		ptype            string
	)
	err := row.Scan(
		&rawID, &rawTenant, &p.Name, &p.Description, &ptype, &p.Active,
		&p.Tags, &p.Extra, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.ID, err = id.ParseProcessID(rawID); err != nil {
		return nil, fmt.Errorf("parse process id %q: %w", rawID, err)
	}
	if p.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	p.Type = process.Type(ptype)
	return &p, nil
}

func scanVersion(row pgx.Row) (*process.Version, error) {
	var (
		v                            process.Version
		rawID, rawTenant, rawProcess string
	)
	err := row.Scan(
		&rawID, &rawTenant, &rawProcess, &v.Version, &v.PackagePath,
		&v.ReleaseNotes, &v.Config, &v.IsActive,
		&v.CreatedAt, &v.UpdatedAt, &v.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.ID, err = id.ParseVersionID(rawID); err != nil {
		return nil, fmt.Errorf("parse version id %q: %w", rawID, err)
	}
	if v.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	if v.ProcessID, err = id.ParseProcessID(rawProcess); err != nil {
		return nil, fmt.Errorf("parse process id %q: %w", rawProcess, err)
	}
	return &v, nil
}
