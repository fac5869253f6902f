// Package process provides the process and version registry.
//
// A process is a named automation definition; a version is an immutable
// artifact reference bound to it. The registry enforces the single-active-
// version invariant: at most one version per process is active at any
// instant, and only the active version can be triggered. Activation is an
// atomic store transaction that deactivates all siblings before
// activating the target, so a reader never observes two active versions
// or zero active versions as an intermediate state.
package process
