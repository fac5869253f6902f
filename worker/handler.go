package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/conductor/workload"
)

// Handler performs the work for one claimed item and returns the
// execution output. Returning an error fails the item; wrap the error
// with [Business] or [Defect] to control whether it retries.
type Handler func(ctx context.Context, item *workload.Item) (map[string]any, error)

// Registry maps queue names to handlers. The embedded worker claims
// only from queues that have a handler registered.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a queue, replacing any previous binding.
func (r *Registry) Register(queue string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[queue] = h
}

// Get returns the handler for a queue.
func (r *Registry) Get(queue string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[queue]
	return h, ok
}

// Queues returns the queues with a registered handler.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	queues := make([]string, 0, len(r.handlers))
	for q := range r.handlers {
		queues = append(queues, q)
	}
	return queues
}

// classifiedError tags a handler error with its failure kind so the
// executor reports it correctly. Unwrapped errors default to system
// failures, which retry.
type classifiedError struct {
	kind workload.FailureKind
	err  error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Business marks an error as a business failure: the work item itself
// is invalid and retrying cannot help.
func Business(err error) error {
	return &classifiedError{kind: workload.FailureBusiness, err: err}
}

// Businessf is Business with formatting.
func Businessf(format string, args ...any) error {
	return Business(fmt.Errorf(format, args...))
}

// Defect marks an error as an application failure: the automation has a
// bug, and retrying would reproduce it.
func Defect(err error) error {
	return &classifiedError{kind: workload.FailureApplication, err: err}
}

// Classify returns the failure kind carried by the error, defaulting to
// a system failure for plain errors.
func Classify(err error) workload.FailureKind {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return workload.FailureSystem
}
