// Package schedule runs the time-based trigger loop: cron, fixed
// interval, and one-shot schedules that fire process executions. The
// loop polls on a fixed tick rather than arming per-schedule timers, so
// schedules created or edited between ticks are picked up without any
// coordination.
package schedule
