package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/id"
)

const agentColumns = `
	id, tenant_id, name, machine_name, address, version, capabilities,
	status, last_heartbeat, extra, created_at, updated_at, deleted_at`

// CreateAgent persists a new agent.
func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conductor_agents (
			id, tenant_id, name, machine_name, address, version, capabilities,
			status, last_heartbeat, extra, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID.String(), a.TenantID.String(), a.Name, a.MachineName, a.Address,
		a.Version, a.Capabilities, string(a.Status), a.LastHeartbeat, a.Extra,
		a.CreatedAt, a.UpdatedAt, a.DeletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrAgentNameTaken
		}
		return fmt.Errorf("conductor/postgres: create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID within the tenant.
func (s *Store) GetAgent(ctx context.Context, tenantID id.TenantID, agentID id.AgentID) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+agentColumns+`
		FROM conductor_agents
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		agentID.String(), tenantID.String(),
	)
	a, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrAgentNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get agent: %w", err)
	}
	return a, nil
}

// GetAgentByName retrieves a non-deleted agent by name within the tenant.
func (s *Store) GetAgentByName(ctx context.Context, tenantID id.TenantID, name string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+agentColumns+`
		FROM conductor_agents
		WHERE tenant_id = $1 AND name = $2 AND deleted_at IS NULL`,
		tenantID.String(), name,
	)
	a, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrAgentNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get agent by name: %w", err)
	}
	return a, nil
}

// UpdateAgent persists changes to an existing agent.
func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_agents SET
			name = $3, machine_name = $4, address = $5, version = $6,
			capabilities = $7, status = $8, last_heartbeat = $9, extra = $10,
			updated_at = NOW(), deleted_at = $11
		WHERE id = $1 AND tenant_id = $2`,
		a.ID.String(), a.TenantID.String(), a.Name, a.MachineName, a.Address,
		a.Version, a.Capabilities, string(a.Status), a.LastHeartbeat, a.Extra,
		a.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrAgentNotFound
	}
	return nil
}

// ListAgents returns agents matching the given options, oldest first.
func (s *Store) ListAgents(ctx context.Context, tenantID id.TenantID, opts agent.ListOpts) ([]*agent.Agent, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + agentColumns + `
		FROM conductor_agents
		WHERE tenant_id = $1 AND deleted_at IS NULL`)
	args := []any{tenantID.String()}

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		b.WriteString(" AND status = $" + strconv.Itoa(len(args)))
	}
	if opts.Online != nil {
		if *opts.Online {
			b.WriteString(" AND status <> 'maintenance' AND last_heartbeat > NOW() - INTERVAL '5 minutes'")
		} else {
			b.WriteString(" AND (status = 'maintenance' OR last_heartbeat IS NULL OR last_heartbeat <= NOW() - INTERVAL '5 minutes')")
		}
	}
	if opts.MachineName != "" {
		args = append(args, "%"+opts.MachineName+"%")
		b.WriteString(" AND machine_name LIKE $" + strconv.Itoa(len(args)))
	}
	b.WriteString(" ORDER BY created_at ASC")
	appendLimitOffset(&b, &args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list agents: %w", err)
	}
	defer rows.Close()

	var result []*agent.Agent
	for rows.Next() {
		a, scanErr := scanAgent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan agent: %w", scanErr)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAgent(row pgx.Row) (*agent.Agent, error) {
	var (
		a                agent.Agent
		rawID, rawTenant string
		status           string
	)
	err := row.Scan(
		&rawID, &rawTenant, &a.Name, &a.MachineName, &a.Address, &a.Version,
		&a.Capabilities, &status, &a.LastHeartbeat, &a.Extra,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.ID, err = id.ParseAgentID(rawID); err != nil {
		return nil, fmt.Errorf("parse agent id %q: %w", rawID, err)
	}
	if a.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	a.Status = agent.Status(status)
	return &a, nil
}

// appendLimitOffset appends LIMIT/OFFSET clauses for non-zero values.