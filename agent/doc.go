// Package agent provides the agent fleet registry: known remote workers,
// their declared capabilities, and liveness derived from heartbeats.
//
// An agent is online when its status is not maintenance and its last
// heartbeat is fresher than the configured window (5 minutes by default).
// The online property is derived, never stored: a crashed agent simply
// ages out of the window.
//
// Heartbeats are last-writer-wins. A race between a stale and a fresh
// heartbeat is acceptable because each heartbeat carries the full state.
package agent
