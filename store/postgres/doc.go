// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED claims, a partial unique index enforcing the
// single-active-version invariant, transactional execution/item
// creation, and embedded SQL migrations.
package postgres
