package jobs

import "sync/atomic"

// Counters tracks queue activity since process start. All methods are
// safe on a nil receiver so callers that don't care about metrics can
// pass nil everywhere.
type Counters struct {
	enqueued       atomic.Int64
	claimed        atomic.Int64
	succeeded      atomic.Int64
	retried        atomic.Int64
	failed         atomic.Int64
	cancelled      atomic.Int64
	cleanupDeleted atomic.Int64
	schedulerTicks atomic.Int64
	triggersFired  atomic.Int64
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncEnqueued() {
	if c != nil {
		c.enqueued.Add(1)
	}
}

func (c *Counters) IncClaimed() {
	if c != nil {
		c.claimed.Add(1)
	}
}

func (c *Counters) IncSucceeded() {
	if c != nil {
		c.succeeded.Add(1)
	}
}

func (c *Counters) IncRetried() {
	if c != nil {
		c.retried.Add(1)
	}
}

func (c *Counters) IncFailed() {
	if c != nil {
		c.failed.Add(1)
	}
}

func (c *Counters) IncCancelled() {
	if c != nil {
		c.cancelled.Add(1)
	}
}

func (c *Counters) AddCleanupDeleted(n int64) {
	if c != nil {
		c.cleanupDeleted.Add(n)
	}
}

func (c *Counters) IncSchedulerTick() {
	if c != nil {
		c.schedulerTicks.Add(1)
	}
}

func (c *Counters) IncTriggersFired() {
	if c != nil {
		c.triggersFired.Add(1)
	}
}

// CountersSnapshot is a consistent-enough copy of the counters for
// reporting. Individual loads are atomic; the set as a whole is not.
type CountersSnapshot struct {
	Enqueued       int64 `json:"enqueued"`
	Claimed        int64 `json:"claimed"`
	Succeeded      int64 `json:"succeeded"`
	Retried        int64 `json:"retried"`
	Failed         int64 `json:"failed"`
	Cancelled      int64 `json:"cancelled"`
	CleanupDeleted int64 `json:"cleanup_deleted"`
	SchedulerTicks int64 `json:"scheduler_ticks"`
	TriggersFired  int64 `json:"triggers_fired"`
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() CountersSnapshot {
	if c == nil {
		return CountersSnapshot{}
	}
	return CountersSnapshot{
		Enqueued:       c.enqueued.Load(),
		Claimed:        c.claimed.Load(),
		Succeeded:      c.succeeded.Load(),
		Retried:        c.retried.Load(),
		Failed:         c.failed.Load(),
		Cancelled:      c.cancelled.Load(),
		CleanupDeleted: c.cleanupDeleted.Load(),
		SchedulerTicks: c.schedulerTicks.Load(),
		TriggersFired:  c.triggersFired.Load(),
	}
}
