package jobs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersNilSafe(t *testing.T) {
	var c *Counters

	// None of these may panic.
	c.IncEnqueued()
	c.IncClaimed()
	c.IncSucceeded()
	c.IncRetried()
	c.IncFailed()
	c.IncCancelled()
	c.AddCleanupDeleted(3)
	c.IncSchedulerTick()
	c.IncTriggersFired()

	assert.Equal(t, CountersSnapshot{}, c.Snapshot())
}

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncEnqueued()
				c.IncClaimed()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(1000), snap.Enqueued)
	assert.Equal(t, int64(1000), snap.Claimed)
	assert.Equal(t, int64(0), snap.Failed)
}
