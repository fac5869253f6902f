package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of pgx satisfied by both the pool and an open
// transaction, letting inserts participate in a surrounding tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// appendLimitOffset appends LIMIT and OFFSET clauses when set.
func appendLimitOffset(b *strings.Builder, args *[]any, limit, offset int) {
	if limit > 0 {
		*args = append(*args, limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(*args)))
	}
	if offset > 0 {
		*args = append(*args, offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(*args)))
	}
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
