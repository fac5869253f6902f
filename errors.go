package conductor

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("conductor: no store configured")
	ErrStoreClosed = errors.New("conductor: store closed")

	// Not found errors. A tenant mismatch is deliberately indistinguishable
	// from the entity not existing.
	ErrTenantNotFound    = errors.New("conductor: tenant not found")
	ErrProcessNotFound   = errors.New("conductor: process not found")
	ErrVersionNotFound   = errors.New("conductor: process version not found")
	ErrAgentNotFound     = errors.New("conductor: agent not found")
	ErrItemNotFound      = errors.New("conductor: queue item not found")
	ErrExecutionNotFound = errors.New("conductor: execution not found")
	ErrScheduleNotFound  = errors.New("conductor: schedule not found")
	ErrExceptionNotFound = errors.New("conductor: exception not found")

	// Conflict errors.
	ErrProcessNameTaken = errors.New("conductor: process name already in use")
	ErrAgentNameTaken   = errors.New("conductor: agent name already in use")
	ErrVersionExists    = errors.New("conductor: version already exists for process")
	ErrItemExists       = errors.New("conductor: queue item already exists")
	ErrExecutionExists  = errors.New("conductor: execution already exists")

	// Business rule errors: the request is valid, the domain state is not.
	ErrProcessInactive   = errors.New("conductor: process is not active")
	ErrNoActiveVersion   = errors.New("conductor: process has no active version")
	ErrInvalidTransition = errors.New("conductor: invalid status transition")
	ErrNoTenantScope     = errors.New("conductor: no tenant scope on context")
)

// notFoundErrs and conflictErrs back the classification helpers below.
// The HTTP layer maps these classes to 404 / 409 / 422 without having to
// enumerate every sentinel.
var notFoundErrs = []error{
	ErrTenantNotFound, ErrProcessNotFound, ErrVersionNotFound,
	ErrAgentNotFound, ErrItemNotFound, ErrExecutionNotFound,
	ErrScheduleNotFound, ErrExceptionNotFound,
}

var conflictErrs = []error{
	ErrProcessNameTaken, ErrAgentNameTaken, ErrVersionExists, ErrItemExists,
	ErrExecutionExists,
}

var businessRuleErrs = []error{
	ErrProcessInactive, ErrNoActiveVersion, ErrInvalidTransition,
}

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool { return matchesAny(err, notFoundErrs) }

// IsConflict reports whether err is (or wraps) a uniqueness conflict.
func IsConflict(err error) bool { return matchesAny(err, conflictErrs) }

// IsBusinessRule reports whether err is (or wraps) a domain-state error.
func IsBusinessRule(err error) bool { return matchesAny(err, businessRuleErrs) }

func matchesAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
