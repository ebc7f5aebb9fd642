package jobs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/filehaven/filehaven/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
	// MaxOrphanRecoveryBatch bounds how many Running rows a startup
	// recovery pass will touch.
	MaxOrphanRecoveryBatch = 1000
)

// Queue is the lifecycle surface for jobs: enqueue, claim, complete,
// fail, cancel, inspect, clean up. Claims are atomic at the SQL level,
// so multiple worker pools (or processes sharing the database file) can
// poll the same queue safely.
type Queue struct {
	store    *Store
	counters *Counters

	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB, counters *Counters) *Queue {
	return &Queue{
		store:       NewStore(db),
		counters:    counters,
		subscribers: make([]chan *Job, 0),
	}
}

// Store exposes the underlying persistence layer for callers that need
// read-only access beyond the queue surface.
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue persists a new job and notifies subscribers.
func (q *Queue) Enqueue(job *Job) error {
	if job.Status != StatusPending {
		return errors.Wrapf(ErrInvalidState, "cannot enqueue job in status %s", job.Status)
	}
	if _, err := DecodePayload(job.Payload); err != nil {
		return errors.Wrap(err, "refusing to enqueue job with undecodable payload")
	}

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Job type: %s", job.Type))
		return err
	}

	q.counters.IncEnqueued()
	q.notifySubscribers(job)

	return nil
}

// EnqueuePayload is a convenience that builds a job from a payload and
// enqueues it immediately.
func (q *Queue) EnqueuePayload(payload Payload, createdBy string) (*Job, error) {
	job, err := NewJob(payload, createdBy)
	if err != nil {
		return nil, err
	}
	if err := q.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Claim atomically takes the oldest eligible Pending job and marks it
// Running. Returns nil when nothing is eligible.
func (q *Queue) Claim() (*Job, error) {
	job, err := q.store.ClaimNext(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil // No jobs available
	}

	q.counters.IncClaimed()
	q.notifySubscribers(job)

	return job, nil
}

// Complete transitions a Running job to Success, storing the handler's
// result. Completing a job in any other state is ErrInvalidState.
func (q *Queue) Complete(id string, result *Result) error {
	var raw []byte
	if result != nil {
		var err error
		raw, err = json.Marshal(result)
		if err != nil {
			return errors.Wrap(err, "failed to marshal job result")
		}
	}

	ok, err := q.store.MarkSuccess(id, raw, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return q.statusConflict(id, "complete")
	}

	q.counters.IncSucceeded()
	q.notifyJobUpdate(id)

	return nil
}

// Fail records a failed execution attempt for a Running job. If the job
// has attempts remaining it is re-queued with exponential backoff;
// otherwise it fails terminally.
func (q *Queue) Fail(id string, errMsg string) error {
	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusRunning {
		return errors.Wrapf(ErrInvalidState, "cannot fail job %s in status %s", id, job.Status)
	}

	now := time.Now().UTC()
	var ok bool
	if job.CanRetry() {
		delay := RetryDelay(job.Attempts)
		ok, err = q.store.MarkRetry(id, errMsg, now.Add(delay), now)
		if err == nil && ok {
			q.counters.IncRetried()
		}
	} else {
		ok, err = q.store.MarkFailed(id, errMsg, now)
		if err == nil && ok {
			q.counters.IncFailed()
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with another writer between the read and the update.
		return q.statusConflict(id, "fail")
	}

	q.notifyJobUpdate(id)

	return nil
}

// Cancel transitions a Pending job to Cancelled. Running jobs cannot be
// cancelled; terminal jobs stay as they are.
func (q *Queue) Cancel(id string) error {
	ok, err := q.store.MarkCancelled(id, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return q.statusConflict(id, "cancel")
	}

	q.counters.IncCancelled()
	q.notifyJobUpdate(id)

	return nil
}

// statusConflict turns a zero-row conditional update into the right
// error: not-found if the job doesn't exist, invalid-state otherwise.
func (q *Queue) statusConflict(id string, op string) error {
	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(ErrInvalidState, "cannot %s job %s in status %s", op, id, job.Status)
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// List returns jobs matching the filter, newest first.
func (q *Queue) List(filter ListFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// Cleanup removes terminal jobs whose completion predates the retention
// window.
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	deleted, err := q.store.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}

	q.counters.AddCleanupDeleted(int64(deleted))

	return deleted, nil
}

// Stats is a point-in-time census of the queue by status.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*Stats, error) {
	stats := &Stats{}

	for _, status := range []Status{StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled} {
		s := status
		count, err := q.store.CountJobs(&s)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count %s jobs", status)
		}

		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusSuccess:
			stats.Success = count
		case StatusFailed:
			stats.Failed = count
		case StatusCancelled:
			stats.Cancelled = count
		}
		stats.Total += count
	}

	return stats, nil
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifyJobUpdate re-reads a job and pushes it to subscribers. Failures
// here are swallowed: notification is best-effort.
func (q *Queue) notifyJobUpdate(id string) {
	job, err := q.store.GetJob(id)
	if err != nil {
		return
	}
	q.notifySubscribers(job)
}

// notifySubscribers sends job updates to all subscribers.
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, skip
		}
	}
}
