// Package conductor provides a multi-tenant orchestration engine for
// distributed automation work. Remote agents poll named queues for work
// items, execute them, and report outcomes; a cron scheduler promotes due
// schedules into executions; the workload queue guarantees that each
// eligible item is leased to exactly one agent at a time, with linear
// backoff and a bounded retry budget on system failures.
//
// Conductor is designed as a library, not a service. Import it, configure
// a store, and drive the engine from your own transport layer.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.New(st)
//	if err != nil { ... }
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
// # Architecture
//
// Conductor follows a composable store pattern where each subsystem
// (agent, process, workload, execution, schedule) defines its own store
// interface. A single backend implements all of them. Every entity is
// scoped to a tenant; an operation touching an entity outside the
// caller's tenant behaves identically to the entity not existing.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package conductor
