package jobs

import (
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filehaven/filehaven/errors"
	fhtest "github.com/filehaven/filehaven/internal/testing"
)

func newTestQueue(t *testing.T) (*Queue, *Counters) {
	t.Helper()
	counters := NewCounters()
	return NewQueue(fhtest.CreateTestDB(t), counters), counters
}

func enqueueTestJob(t *testing.T, q *Queue, payload Payload) *Job {
	t.Helper()
	job, err := q.EnqueuePayload(payload, "test")
	require.NoError(t, err)
	return job
}

func TestQueueEnqueueAndClaim(t *testing.T) {
	q, counters := newTestQueue(t)

	job := enqueueTestJob(t, q, &FileIndexingPayload{FileID: "f1", FilePath: "/a"})

	claimed, err := q.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, StatusRunning, claimed.Status)

	snap := counters.Snapshot()
	assert.Equal(t, int64(1), snap.Enqueued)
	assert.Equal(t, int64(1), snap.Claimed)
}

func TestQueueEnqueueRejectsBadPayload(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := NewJob(&FileIndexingPayload{FileID: "f1"}, "test")
	require.NoError(t, err)
	job.Payload = []byte(`{"type":"bogus","data":{}}`)

	err = q.Enqueue(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestQueueEnqueueRejectsNonPending(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := NewJob(&FileIndexingPayload{FileID: "f1"}, "test")
	require.NoError(t, err)
	job.Status = StatusRunning

	err = q.Enqueue(job)
	assert.True(t, IsInvalidState(err))
}

func TestQueueComplete(t *testing.T) {
	q, counters := newTestQueue(t)

	job := enqueueTestJob(t, q, &ThumbnailGenerationPayload{FileID: "f1", FilePath: "/a.png"})
	_, err := q.Claim()
	require.NoError(t, err)

	require.NoError(t, q.Complete(job.ID, SuccessResult("thumbnail written")))

	final, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, final.Status)
	assert.Contains(t, string(final.Result), "thumbnail written")
	assert.Equal(t, int64(1), counters.Snapshot().Succeeded)
}

func TestQueueCompleteInvalidState(t *testing.T) {
	q, _ := newTestQueue(t)

	job := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})

	err := q.Complete(job.ID, nil)
	assert.True(t, IsInvalidState(err), "completing a pending job is invalid")

	err = q.Complete("missing", nil)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestQueueFailRetriesWithBackoff(t *testing.T) {
	q, counters := newTestQueue(t)

	job := enqueueTestJob(t, q, &WebhookDeliveryPayload{WebhookID: "w1", Event: "e"})
	_, err := q.Claim()
	require.NoError(t, err)

	before := time.Now().UTC()
	require.NoError(t, q.Fail(job.ID, "timeout"))

	updated, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, 1, updated.Attempts)
	assert.Equal(t, "timeout", updated.Error)
	require.NotNil(t, updated.ScheduledFor)

	// First retry backs off 2^1 minutes.
	wantDelay := 2 * time.Minute
	gotDelay := updated.ScheduledFor.Sub(before)
	assert.InDelta(t, wantDelay.Seconds(), gotDelay.Seconds(), 5)

	assert.Equal(t, int64(1), counters.Snapshot().Retried)
	assert.Equal(t, int64(0), counters.Snapshot().Failed)
}

func TestQueueFailExhaustionIsTerminal(t *testing.T) {
	q, counters := newTestQueue(t)

	job, err := NewJob(&WebhookDeliveryPayload{WebhookID: "w1", Event: "e"}, "test")
	require.NoError(t, err)
	job.WithMaxAttempts(1)
	require.NoError(t, q.Enqueue(job))

	_, err = q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.Fail(job.ID, "still down"))

	final, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 1, final.Attempts)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, int64(1), counters.Snapshot().Failed)

	claimed, err := q.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed, "exhausted job never runs again")
}

func TestQueueAttemptsNeverExceedMax(t *testing.T) {
	q, _ := newTestQueue(t)

	job := enqueueTestJob(t, q, &WebhookDeliveryPayload{WebhookID: "w1", Event: "e"})

	// Drive the job through every attempt it has.
	for i := 0; i < job.MaxAttempts; i++ {
		// Clear the backoff so the retry is immediately claimable.
		_, err := q.Store().db.Exec(`UPDATE jobs SET scheduled_for = NULL WHERE id = ?`, job.ID)
		require.NoError(t, err)

		claimed, err := q.Claim()
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", i+1)
		assert.LessOrEqual(t, claimed.Attempts, claimed.MaxAttempts)

		require.NoError(t, q.Fail(job.ID, "nope"))
	}

	final, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, final.MaxAttempts, final.Attempts)
}

func TestQueueFailInvalidState(t *testing.T) {
	q, _ := newTestQueue(t)

	job := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})

	err := q.Fail(job.ID, "boom")
	assert.True(t, IsInvalidState(err), "failing a pending job is invalid")
}

func TestQueueCancel(t *testing.T) {
	q, counters := newTestQueue(t)

	job := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	require.NoError(t, q.Cancel(job.ID))

	final, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, int64(1), counters.Snapshot().Cancelled)

	claimed, err := q.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed, "cancelled job never runs")
}

func TestQueueCancelInvalidStates(t *testing.T) {
	q, _ := newTestQueue(t)

	running := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	_, err := q.Claim()
	require.NoError(t, err)

	err = q.Cancel(running.ID)
	assert.True(t, IsInvalidState(err), "running job cannot be cancelled")

	require.NoError(t, q.Complete(running.ID, nil))
	err = q.Cancel(running.ID)
	assert.True(t, IsInvalidState(err), "terminal job cannot be cancelled")

	err = q.Cancel("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

// Concurrent claimers must never take the same job twice.
func TestQueueConcurrentClaims(t *testing.T) {
	q, _ := newTestQueue(t)

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	}

	const claimers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]int)
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Claim()
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobCount, "every job claimed exactly once")
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}

func TestQueueStats(t *testing.T) {
	q, _ := newTestQueue(t)

	enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	running := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	done := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	cancelled := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})

	require.NoError(t, q.Cancel(cancelled.ID))

	// FIFO: the first two claims take the first two non-cancelled jobs.
	_, err := q.Claim()
	require.NoError(t, err)
	_, err = q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.Complete(running.ID, nil))
	_ = done

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 4, stats.Total)
}

func TestQueueCleanup(t *testing.T) {
	q, counters := newTestQueue(t)

	old := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})
	_, err := q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.Complete(old.ID, nil))

	// Age the completed job past the retention window.
	aged := time.Now().UTC().Add(-31 * 24 * time.Hour)
	_, err = q.Store().db.Exec(`UPDATE jobs SET completed_at = ? WHERE id = ?`, aged, old.ID)
	require.NoError(t, err)

	kept := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})

	deleted, err := q.Cleanup(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, int64(1), counters.Snapshot().CleanupDeleted)

	_, err = q.GetJob(old.ID)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = q.GetJob(kept.ID)
	assert.NoError(t, err)
}

func TestQueueSubscribe(t *testing.T) {
	q, _ := newTestQueue(t)

	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	job := enqueueTestJob(t, q, &SearchIndexRebuildPayload{})

	select {
	case got := <-ch:
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, StatusPending, got.Status)
	case <-time.After(time.Second):
		t.Fatal("expected enqueue notification")
	}

	_, err := q.Claim()
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, StatusRunning, got.Status)
	case <-time.After(time.Second):
		t.Fatal("expected claim notification")
	}
}

func TestQueueUnsubscribe(t *testing.T) {
	q, _ := newTestQueue(t)

	ch := q.Subscribe()
	q.Unsubscribe(ch)

	enqueueTestJob(t, q, &SearchIndexRebuildPayload{})

	select {
	case <-ch:
		t.Fatal("unsubscribed channel must not receive")
	case <-time.After(50 * time.Millisecond):
	}
}
