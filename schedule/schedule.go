package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Kind selects how a schedule computes its next firing.
type Kind string

const (
	// KindCron fires per a five-field cron expression in the schedule's
	// timezone.
	KindCron Kind = "cron"
	// KindInterval fires every fixed duration.
	KindInterval Kind = "interval"
	// KindOnce fires a single time and then deactivates itself.
	KindOnce Kind = "once"
)

// cronParser accepts standard five-field expressions plus descriptors
// like @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule fires executions of a process on a recurring plan.
type Schedule struct {
	conductor.Entity

	ID        id.ScheduleID `json:"id"`
	TenantID  id.TenantID   `json:"tenant_id"`
	ProcessID id.ProcessID  `json:"process_id"`

	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// CronExpr is required for KindCron; Timezone defaults to UTC.
	CronExpr string `json:"cron_expr,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Interval is required for KindInterval.
	Interval time.Duration `json:"interval,omitempty"`

	// RunAt is required for KindOnce.
	RunAt *time.Time `json:"run_at,omitempty"`

	Active bool           `json:"active"`
	Input  map[string]any `json:"input,omitempty"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// NextAfter computes the schedule's next firing strictly after now. A
// one-shot schedule whose time has passed returns the zero time and
// false, meaning it will never fire again.
func (s *Schedule) NextAfter(now time.Time) (time.Time, bool, error) {
	switch s.Kind {
	case KindCron:
		loc := time.UTC
		if s.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(s.Timezone)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("timezone %q: %w", s.Timezone, err)
			}
		}
		sched, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("cron %q: %w", s.CronExpr, err)
		}
		return sched.Next(now.In(loc)).UTC(), true, nil

	case KindInterval:
		if s.Interval <= 0 {
			return time.Time{}, false, fmt.Errorf("interval must be positive, got %s", s.Interval)
		}
		return now.Add(s.Interval).UTC(), true, nil

	case KindOnce:
		if s.RunAt == nil {
			return time.Time{}, false, fmt.Errorf("one-shot schedule has no run time")
		}
		if s.RunAt.After(now) {
			return s.RunAt.UTC(), true, nil
		}
		return time.Time{}, false, nil

	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}
