package schedule

import (
	"context"
	"time"

	"github.com/xraph/conductor/id"
)

// ListOpts filters schedule listings. Zero values mean "any".
type ListOpts struct {
	ProcessID id.ProcessID
	Active    *bool
	Limit     int
	Offset    int
}

// Store is the persistence contract for schedules.
type Store interface {
	// CreateSchedule persists a new schedule.
	CreateSchedule(ctx context.Context, sched *Schedule) error

	// GetSchedule retrieves a schedule by ID within the tenant.
	GetSchedule(ctx context.Context, tenantID id.TenantID, schedID id.ScheduleID) (*Schedule, error)

	// UpdateSchedule persists changes to an existing schedule.
	UpdateSchedule(ctx context.Context, sched *Schedule) error

	// ListSchedules returns schedules matching opts within the tenant.
	ListSchedules(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Schedule, error)

	// ListDueSchedules returns active schedules across all tenants whose
	// next run is at or before now. The scheduler loop is the only
	// caller that crosses tenant boundaries.
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)
}
