package workload

import (
	"time"

	"github.com/xraph/conductor/id"
)

// FailureKind classifies an agent-reported failure. It is a closed
// enumeration consumed by Fail's branching logic.
type FailureKind string

const (
	// FailureBusiness is a domain-class failure; never retried.
	FailureBusiness FailureKind = "business"
	// FailureSystem is an infrastructure-class failure; retried while the
	// item has budget left.
	FailureSystem FailureKind = "system"
	// FailureApplication is an automation-script defect; never retried.
	FailureApplication FailureKind = "application"
)

// Severity grades an exception for operator triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Exception is an append-only record of a failure reported against a
// queue item and/or its execution, kept for operator visibility. Prior
// entries are never mutated; resolution only stamps the marker fields.
type Exception struct {
	ID          id.ExceptionID `json:"id"`
	TenantID    id.TenantID    `json:"tenant_id"`
	ItemID      id.ItemID      `json:"item_id,omitempty"`
	ExecutionID id.ExecutionID `json:"execution_id,omitempty"`
	Kind        FailureKind    `json:"kind"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	StackTrace  string         `json:"stack_trace,omitempty"`
	Screenshot  string         `json:"screenshot,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
