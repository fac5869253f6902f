// Package store defines the aggregate persistence interface. Each
// subsystem (agent, process, workload, execution, schedule) defines its
// own store interface; the composite Store composes them all. Backends:
// Postgres and Memory.
package store

import (
	"context"

	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/process"
	"github.com/xraph/conductor/schedule"
	"github.com/xraph/conductor/workload"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem store so cross-subsystem operations (the
// execution/item unit of work, version activation) can be transactional.
type Store interface {
	agent.Store
	process.Store
	workload.Store
	execution.Store
	schedule.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
