package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/schedule"
)

const scheduleColumns = `
	id, tenant_id, process_id, name, kind, cron_expr, timezone,
	run_interval, run_at, active, input, last_run_at, next_run_at,
	created_at, updated_at, deleted_at`

// CreateSchedule persists a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, sched *schedule.Schedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conductor_schedules (
			id, tenant_id, process_id, name, kind, cron_expr, timezone,
			run_interval, run_at, active, input, last_run_at, next_run_at,
			created_at, updated_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)`,
		sched.ID.String(), sched.TenantID.String(), sched.ProcessID.String(),
		sched.Name, string(sched.Kind), sched.CronExpr, sched.Timezone,
		int64(sched.Interval), sched.RunAt, sched.Active, sched.Input,
		sched.LastRunAt, sched.NextRunAt,
		sched.CreatedAt, sched.UpdatedAt, sched.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID within the tenant.
func (s *Store) GetSchedule(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID) (*schedule.Schedule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+scheduleColumns+`
		FROM conductor_schedules
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		schedID.String(), tenantID.String(),
	)
	sched, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get schedule: %w", err)
	}
	return sched, nil
}

// UpdateSchedule persists changes to an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sched *schedule.Schedule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_schedules SET
			name = $3, kind = $4, cron_expr = $5, timezone = $6,
			run_interval = $7, run_at = $8, active = $9, input = $10,
			last_run_at = $11, next_run_at = $12, updated_at = NOW(),
			deleted_at = $13
		WHERE id = $1 AND tenant_id = $2`,
		sched.ID.String(), sched.TenantID.String(), sched.Name,
		string(sched.Kind), sched.CronExpr, sched.Timezone,
		int64(sched.Interval), sched.RunAt, sched.Active, sched.Input,
		sched.LastRunAt, sched.NextRunAt, sched.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrScheduleNotFound
	}
	return nil
}

// ListSchedules returns schedules matching opts within the tenant.
func (s *Store) ListSchedules(ctx context.Context, tenantID id.TenantID, opts schedule.ListOpts) ([]*schedule.Schedule, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + scheduleColumns + `
		FROM conductor_schedules
		WHERE tenant_id = $1 AND deleted_at IS NULL`)
	args := []any{tenantID.String()}

	if !opts.ProcessID.IsNil() {
		args = append(args, opts.ProcessID.String())
		b.WriteString(" AND process_id = $" + strconv.Itoa(len(args)))
	}
	if opts.Active != nil {
		args = append(args, *opts.Active)
		b.WriteString(" AND active = $" + strconv.Itoa(len(args)))
	}
	b.WriteString(" ORDER BY created_at ASC")
	appendLimitOffset(&b, &args, opts.Limit, opts.Offset)

	return s.querySchedules(ctx, b.String(), args...)
}

// ListDueSchedules returns active schedules across all tenants whose
// next run is at or before now, soonest first.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + scheduleColumns + `
		FROM conductor_schedules
		WHERE active AND deleted_at IS NULL
		  AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC`)
	args := []any{now}
	appendLimitOffset(&b, &args, limit, 0)

	return s.querySchedules(ctx, b.String(), args...)
}

func (s *Store) querySchedules(ctx context.Context, sql string, args ...any) ([]*schedule.Schedule, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	var result []*schedule.Schedule
	for rows.Next() {
		sched, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan schedule: %w", scanErr)
		}
		result = append(result, sched)
	}
	return result, rows.Err()
}

func scanSchedule(row pgx.Row) (*schedule.Schedule, error) {
	var (
		sched                        schedule.Schedule
		rawID, rawTenant, rawProcess string
		kind                         string
		interval                     int64
	)
	err := row.Scan(
		&rawID, &rawTenant, &rawProcess, &sched.Name, &kind,
		&sched.CronExpr, &sched.Timezone, &interval, &sched.RunAt,
		&sched.Active, &sched.Input, &sched.LastRunAt, &sched.NextRunAt,
		&sched.CreatedAt, &sched.UpdatedAt, &sched.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if sched.ID, err = id.ParseScheduleID(rawID); err != nil {
		return nil, fmt.Errorf("parse schedule id %q: %w", rawID, err)
	}
	if sched.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	if sched.ProcessID, err = id.ParseProcessID(rawProcess); err != nil {
		return nil, fmt.Errorf("parse process id %q: %w", rawProcess, err)
	}
	sched.Kind = schedule.Kind(kind)
	sched.Interval = time.Duration(interval)
	return &sched, nil
}
