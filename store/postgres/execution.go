package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/workload"
)

const executionColumns = `
	id, tenant_id, process_id, version_id, item_id, agent_id, trigger_kind,
	status, input, output, started_at, finished_at, stop_requested,
	stop_requested_at, error, created_at, updated_at, deleted_at`

// CreateExecution persists the execution and its queue item in a single
// transaction. Neither row is visible unless both inserts succeed.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution, i *workload.Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("conductor/postgres: begin create execution: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conductor_executions (
			id, tenant_id, process_id, version_id, item_id, agent_id,
			trigger_kind, status, input, output, started_at, finished_at,
			stop_requested, stop_requested_at, error,
			created_at, updated_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)`,
		e.ID.String(), e.TenantID.String(), e.ProcessID.String(),
		e.VersionID.String(), e.ItemID.String(), e.AgentID.String(),
		string(e.Trigger), string(e.Status), e.Input, e.Output,
		e.StartedAt, e.FinishedAt, e.StopRequested, e.StopRequestedAt,
		e.Error, e.CreatedAt, e.UpdatedAt, e.DeletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrExecutionExists
		}
		return fmt.Errorf("conductor/postgres: create execution: %w", err)
	}

	if err := insertItem(ctx, tx, i); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("conductor/postgres: commit create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID within the tenant.
func (s *Store) GetExecution(ctx context.Context, tenantID id.TenantID, executionID id.ExecutionID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+executionColumns+`
		FROM conductor_executions
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		executionID.String(), tenantID.String(),
	)
	e, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get execution: %w", err)
	}
	return e, nil
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, e *execution.Execution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_executions SET
			agent_id = $3, status = $4, input = $5, output = $6,
			started_at = $7, finished_at = $8, stop_requested = $9,
			stop_requested_at = $10, error = $11, updated_at = NOW(),
			deleted_at = $12
		WHERE id = $1 AND tenant_id = $2`,
		e.ID.String(), e.TenantID.String(), e.AgentID.String(),
		string(e.Status), e.Input, e.Output, e.StartedAt, e.FinishedAt,
		e.StopRequested, e.StopRequestedAt, e.Error, e.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions matching the given options, newest
// first.
func (s *Store) ListExecutions(ctx context.Context, tenantID id.TenantID, opts execution.ListOpts) ([]*execution.Execution, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + executionColumns + `
		FROM conductor_executions
		WHERE tenant_id = $1 AND deleted_at IS NULL`)
	args := []any{tenantID.String()}

	if !opts.ProcessID.IsNil() {
		args = append(args, opts.ProcessID.String())
		b.WriteString(" AND process_id = $" + strconv.Itoa(len(args)))
	}
	if !opts.AgentID.IsNil() {
		args = append(args, opts.AgentID.String())
		b.WriteString(" AND agent_id = $" + strconv.Itoa(len(args)))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		b.WriteString(" AND status = $" + strconv.Itoa(len(args)))
	}
	if opts.Trigger != "" {
		args = append(args, string(opts.Trigger))
		b.WriteString(" AND trigger_kind = $" + strconv.Itoa(len(args)))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		b.WriteString(" AND created_at >= $" + strconv.Itoa(len(args)))
	}
	b.WriteString(" ORDER BY created_at DESC")
	appendLimitOffset(&b, &args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list executions: %w", err)
	}
	defer rows.Close()

	var result []*execution.Execution
	for rows.Next() {
		e, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan execution: %w", scanErr)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanExecution(row pgx.Row) (*execution.Execution, error) {
	var (
		e                             execution.Execution
		rawID, rawTenant, rawProcess  string
		rawVersion, rawItem, rawAgent string
		trigger, status               string
	)
	err := row.Scan(
		&rawID, &rawTenant, &rawProcess, &rawVersion, &rawItem, &rawAgent,
		&trigger, &status, &e.Input, &e.Output, &e.StartedAt, &e.FinishedAt,
		&e.StopRequested, &e.StopRequestedAt, &e.Error,
		&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.ID, err = id.ParseExecutionID(rawID); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", rawID, err)
	}
	if e.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	if e.ProcessID, err = id.ParseProcessID(rawProcess); err != nil {
		return nil, fmt.Errorf("parse process id %q: %w", rawProcess, err)
	}
	if e.VersionID, err = id.ParseVersionID(rawVersion); err != nil {
		return nil, fmt.Errorf("parse version id %q: %w", rawVersion, err)
	}
	if e.ItemID, err = id.ParseItemID(rawItem); err != nil {
		return nil, fmt.Errorf("parse item id %q: %w", rawItem, err)
	}
	if rawAgent != "" {
		if e.AgentID, err = id.ParseAgentID(rawAgent); err != nil {
			return nil, fmt.Errorf("parse agent id %q: %w", rawAgent, err)
		}
	}
	e.Trigger = execution.Trigger(trigger)
	e.Status = execution.Status(status)
	return &e, nil
}
