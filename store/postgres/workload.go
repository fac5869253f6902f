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
	"github.com/xraph/conductor/workload"
)

const itemColumns = `
	id, tenant_id, queue_name, reference, priority, status, payload,
	retry_count, max_retries, deferred_until, leased_by, lease_expires,
	process_id, execution_id, last_error, completed_at,
	created_at, updated_at, deleted_at`

const exceptionColumns = `
	id, tenant_id, item_id, execution_id, kind, severity, message,
	stack_trace, screenshot, context, resolved, resolved_at, created_at`

// CreateItem persists a new queue item.
func (s *Store) CreateItem(ctx context.Context, i *workload.Item) error {
	return insertItem(ctx, s.pool, i)
}

func insertItem(ctx context.Context, db querier, i *workload.Item) error {
	_, err := db.Exec(ctx, `
		INSERT INTO conductor_items (
			id, tenant_id, queue_name, reference, priority, priority_rank,
			status, payload, retry_count, max_retries, deferred_until,
			leased_by, lease_expires, process_id, execution_id, last_error,
			completed_at, created_at, updated_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`,
		i.ID.String(), i.TenantID.String(), i.QueueName, i.Reference,
		string(i.Priority), i.Priority.Rank(), string(i.Status), i.Payload,
		i.RetryCount, i.MaxRetries, i.DeferredUntil,
		i.LeasedBy.String(), i.LeaseExpires,
		i.ProcessID.String(), i.ExecutionID.String(),
		i.LastError, i.CompletedAt, i.CreatedAt, i.UpdatedAt, i.DeletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrItemExists
		}
		return fmt.Errorf("conductor/postgres: create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID within the tenant.
func (s *Store) GetItem(ctx context.Context, tenantID id.TenantID, itemID id.ItemID) (*workload.Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+itemColumns+`
		FROM conductor_items
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		itemID.String(), tenantID.String(),
	)
	i, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrItemNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get item: %w", err)
	}
	return i, nil
}

// UpdateItem persists changes to an existing item.
func (s *Store) UpdateItem(ctx context.Context, i *workload.Item) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_items SET
			queue_name = $3, reference = $4, priority = $5, priority_rank = $6,
			status = $7, payload = $8, retry_count = $9, max_retries = $10,
			deferred_until = $11, leased_by = $12, lease_expires = $13,
			last_error = $14, completed_at = $15, updated_at = NOW(),
			deleted_at = $16
		WHERE id = $1 AND tenant_id = $2`,
		i.ID.String(), i.TenantID.String(), i.QueueName, i.Reference,
		string(i.Priority), i.Priority.Rank(), string(i.Status), i.Payload,
		i.RetryCount, i.MaxRetries, i.DeferredUntil,
		i.LeasedBy.String(), i.LeaseExpires,
		i.LastError, i.CompletedAt, i.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrItemNotFound
	}
	return nil
}

// ClaimItem atomically leases the most urgent eligible item in the
// queue to the agent using SELECT FOR UPDATE SKIP LOCKED: concurrent
// claimants never block on each other and never receive the same row.
// Returns (nil, nil) when no eligible item exists.
func (s *Store) ClaimItem(ctx context.Context, tenantID id.TenantID, queue string, agentID id.AgentID, leaseFor time.Duration) (*workload.Item, error) {
	row := s.pool.QueryRow(ctx, `
		WITH claimed AS (
			UPDATE conductor_items
			SET status = 'processing',
			    leased_by = $3,
			    lease_expires = NOW() + $4,
			    updated_at = NOW()
			WHERE id = (
				SELECT id FROM conductor_items
				WHERE tenant_id = $1
				  AND queue_name = $2
				  AND (status IN ('pending', 'retry', 'deferred')
				       OR (status = 'processing' AND lease_expires <= NOW()))
				  AND (deferred_until IS NULL OR deferred_until <= NOW())
				  AND (lease_expires IS NULL OR lease_expires <= NOW())
				  AND deleted_at IS NULL
				ORDER BY priority_rank DESC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING`+itemColumns+`
		)
		SELECT * FROM claimed`,
		tenantID.String(), queue, agentID.String(), leaseFor,
	)
	i, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("conductor/postgres: claim item: %w", err)
	}
	return i, nil
}

// ListItems returns items matching the given options, oldest first.
func (s *Store) ListItems(ctx context.Context, tenantID id.TenantID, opts workload.ListOpts) ([]*workload.Item, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + itemColumns + `
		FROM conductor_items
		WHERE tenant_id = $1 AND deleted_at IS NULL`)
	args := []any{tenantID.String()}
	appendItemFilters(&b, &args, opts)
	b.WriteString(" ORDER BY created_at ASC")
	appendLimitOffset(&b, &args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list items: %w", err)
	}
	defer rows.Close()

	var result []*workload.Item
	for rows.Next() {
		i, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan item: %w", scanErr)
		}
		result = append(result, i)
	}
	return result, rows.Err()
}

// CountItems returns the number of items matching the given options.
func (s *Store) CountItems(ctx context.Context, tenantID id.TenantID, opts workload.ListOpts) (int64, error) {
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM conductor_items
		WHERE tenant_id = $1 AND deleted_at IS NULL`)
	args := []any{tenantID.String()}
	appendItemFilters(&b, &args, opts)

	var count int64
	if err := s.pool.QueryRow(ctx, b.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("conductor/postgres: count items: %w", err)
	}
	return count, nil
}

func appendItemFilters(b *strings.Builder, args *[]any, opts workload.ListOpts) {
	if opts.Queue != "" {
		*args = append(*args, opts.Queue)
		b.WriteString(" AND queue_name = $" + strconv.Itoa(len(*args)))
	}
	if opts.Status != "" {
		*args = append(*args, string(opts.Status))
		b.WriteString(" AND status = $" + strconv.Itoa(len(*args)))
	}
	if opts.Reference != "" {
		*args = append(*args, opts.Reference)
		b.WriteString(" AND reference = $" + strconv.Itoa(len(*args)))
	}
}

// RecordException appends an exception entry.
func (s *Store) RecordException(ctx context.Context, e *workload.Exception) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conductor_exceptions (
			id, tenant_id, item_id, execution_id, kind, severity, message,
			stack_trace, screenshot, context, resolved, resolved_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID.String(), e.TenantID.String(),
		e.ItemID.String(), e.ExecutionID.String(),
		string(e.Kind), string(e.Severity), e.Message, e.StackTrace,
		e.Screenshot, e.Context, e.Resolved, e.ResolvedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: record exception: %w", err)
	}
	return nil
}

// ListExceptions returns exception entries matching the given options,
// newest first.
func (s *Store) ListExceptions(ctx context.Context, tenantID id.TenantID, opts workload.ExceptionListOpts) ([]*workload.Exception, error) {
	var b strings.Builder
	b.WriteString(`SELECT` + exceptionColumns + `
		FROM conductor_exceptions
		WHERE tenant_id = $1`)
	args := []any{tenantID.String()}

	if !opts.ItemID.IsNil() {
		args = append(args, opts.ItemID.String())
		b.WriteString(" AND item_id = $" + strconv.Itoa(len(args)))
	}
	if !opts.ExecutionID.IsNil() {
		args = append(args, opts.ExecutionID.String())
		b.WriteString(" AND execution_id = $" + strconv.Itoa(len(args)))
	}
	if opts.Severity != "" {
		args = append(args, string(opts.Severity))
		b.WriteString(" AND severity = $" + strconv.Itoa(len(args)))
	}
	if opts.Unresolved {
		b.WriteString(" AND NOT resolved")
	}
	b.WriteString(" ORDER BY created_at DESC")
	appendLimitOffset(&b, &args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list exceptions: %w", err)
	}
	defer rows.Close()

	var result []*workload.Exception
	for rows.Next() {
		e, scanErr := scanException(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/postgres: scan exception: %w", scanErr)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ResolveException stamps an exception as resolved.
func (s *Store) ResolveException(ctx context.Context, tenantID id.TenantID, exceptionID id.ExceptionID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_exceptions
		SET resolved = TRUE, resolved_at = COALESCE(resolved_at, NOW())
		WHERE id = $1 AND tenant_id = $2`,
		exceptionID.String(), tenantID.String(),
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: resolve exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrExceptionNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (*workload.Item, error) {
	var (
		i                                         workload.Item
		rawID, rawTenant                          string
		priority, status                          string
		rawLeasedBy, rawProcessID, rawExecutionID string
	)
	err := row.Scan(
		&rawID, &rawTenant, &i.QueueName, &i.Reference, &priority, &status,
		&i.Payload, &i.RetryCount, &i.MaxRetries, &i.DeferredUntil,
		&rawLeasedBy, &i.LeaseExpires, &rawProcessID, &rawExecutionID,
		&i.LastError, &i.CompletedAt, &i.CreatedAt, &i.UpdatedAt, &i.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if i.ID, err = id.ParseItemID(rawID); err != nil {
		return nil, fmt.Errorf("parse item id %q: %w", rawID, err)
	}
	if i.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	if rawLeasedBy != "" {
		if i.LeasedBy, err = id.ParseAgentID(rawLeasedBy); err != nil {
			return nil, fmt.Errorf("parse agent id %q: %w", rawLeasedBy, err)
		}
	}
	if rawProcessID != "" {
		if i.ProcessID, err = id.ParseProcessID(rawProcessID); err != nil {
			return nil, fmt.Errorf("parse process id %q: %w", rawProcessID, err)
		}
	}
	if rawExecutionID != "" {
		if i.ExecutionID, err = id.ParseExecutionID(rawExecutionID); err != nil {
			return nil, fmt.Errorf("parse execution id %q: %w", rawExecutionID, err)
		}
	}
	i.Priority = workload.Priority(priority)
	i.Status = workload.Status(status)
	return &i, nil
}

func scanException(row pgx.Row) (*workload.Exception, error) {
	var (
		e                         workload.Exception
		rawID, rawTenant          string
		rawItemID, rawExecutionID string
		kind, severity            string
	)
	err := row.Scan(
		&rawID, &rawTenant, &rawItemID, &rawExecutionID, &kind, &severity,
		&e.Message, &e.StackTrace, &e.Screenshot, &e.Context,
		&e.Resolved, &e.ResolvedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.ID, err = id.ParseExceptionID(rawID); err != nil {
		return nil, fmt.Errorf("parse exception id %q: %w", rawID, err)
	}
	if e.TenantID, err = id.ParseTenantID(rawTenant); err != nil {
		return nil, fmt.Errorf("parse tenant id %q: %w", rawTenant, err)
	}
	if rawItemID != "" {
		if e.ItemID, err = id.ParseItemID(rawItemID); err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", rawItemID, err)
		}
	}
	if rawExecutionID != "" {
		if e.ExecutionID, err = id.ParseExecutionID(rawExecutionID); err != nil {
			return nil, fmt.Errorf("parse execution id %q: %w", rawExecutionID, err)
		}
	}
	e.Kind = workload.FailureKind(kind)
	e.Severity = workload.Severity(severity)
	return &e, nil
}
