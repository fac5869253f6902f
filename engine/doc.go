// Package engine wires all Conductor subsystems together: the store,
// subsystem services, hook registry, middleware chain, queue limiter,
// and the schedule loop. It is the single entry point for both the
// operator surface (processes, versions, triggers, schedules) and the
// agent surface (claim, report, heartbeat).
//
// This package exists to break the import cycle: the root conductor
// package defines Entity and Config (imported by every subsystem) and
// so cannot import the subsystems back. The engine package sits above
// all subsystem packages and below the application layer.
package engine
