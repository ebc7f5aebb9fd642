// Package schedule drives calendar-based enqueueing of maintenance jobs:
// a ticker evaluates trigger rules against the wall clock and enqueues
// the matching jobs, at most once per matching minute.
package schedule

import (
	"time"

	"github.com/filehaven/filehaven/jobs"
)

// Trigger pairs a calendar rule with the jobs to enqueue when it fires.
type Trigger struct {
	// Name identifies the trigger in logs and in the once-per-minute
	// guard. Must be unique within a scheduler.
	Name string

	// Matches reports whether the trigger should fire for the given
	// wall-clock time. Implementations compare at minute granularity.
	Matches func(t time.Time) bool

	// Payloads produces the work to enqueue on each firing. Called once
	// per firing, so payloads can capture per-run values.
	Payloads func() []jobs.Payload
}

// DailyAt matches once a day at the given local hour and minute.
func DailyAt(hour, minute int) func(time.Time) bool {
	return func(t time.Time) bool {
		return t.Hour() == hour && t.Minute() == minute
	}
}

// WeeklyAt matches once a week on the given weekday, hour and minute.
func WeeklyAt(weekday time.Weekday, hour, minute int) func(time.Time) bool {
	return func(t time.Time) bool {
		return t.Weekday() == weekday && t.Hour() == hour && t.Minute() == minute
	}
}

// Hourly matches once an hour at the given minute.
func Hourly(minute int) func(time.Time) bool {
	return func(t time.Time) bool {
		return t.Minute() == minute
	}
}

// DefaultTriggers returns the standing maintenance schedule: nightly
// cleanup at 02:00, a weekly full search reindex on Sunday at 03:00.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			Name:    "daily-maintenance",
			Matches: DailyAt(2, 0),
			Payloads: func() []jobs.Payload {
				return []jobs.Payload{
					&jobs.DatabaseCleanupPayload{Table: "jobs"},
					&jobs.DatabaseCleanupPayload{Table: "login_attempts"},
					&jobs.VersionCleanupPayload{FileID: nil},
				}
			},
		},
		{
			Name:    "weekly-search-reindex",
			Matches: WeeklyAt(time.Sunday, 3, 0),
			Payloads: func() []jobs.Payload {
				return []jobs.Payload{
					&jobs.SearchIndexRebuildPayload{FullRebuild: true},
				}
			},
		},
	}
}
