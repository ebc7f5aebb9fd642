// Package jobs provides FileHaven's persisted background job queue:
// durable job records, an atomic-claim queue with retry and backoff,
// and a bounded worker pool with graceful shutdown.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/filehaven/filehaven/errors"
)

// Status represents the current state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status.
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that permit no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// DefaultMaxAttempts is the attempt bound for jobs that don't override it.
const DefaultMaxAttempts = 3

// MaxRetryDelay caps exponential backoff; 2^attempts minutes overflows
// quickly and a day is as long as any retry should wait.
const MaxRetryDelay = 24 * time.Hour

// Job is the persisted unit of background work.
//
// A job is created Pending, claimed to Running by exactly one worker at a
// time, and ends in Success, Failed, or Cancelled. A retryable failure
// moves it back to Pending with a backoff delay in ScheduledFor. All
// mutation goes through Queue; nothing else writes job rows.
type Job struct {
	ID          string          `json:"id"`
	Type        Kind            `json:"job_type"`
	Status      Status          `json:"status"`
	Priority    int             `json:"priority,omitempty"`
	Payload     json.RawMessage `json:"payload"`          // envelope: {"type": ..., "data": {...}}
	Result      json.RawMessage `json:"result,omitempty"` // set on Success only
	Error       string          `json:"error,omitempty"`  // last failure message
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	// ScheduledFor delays claim eligibility; nil means immediately eligible.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

// NewJob creates a Pending job for the given payload.
//
// The payload is validated and serialized here so malformed work is
// rejected before anything is persisted. createdBy may be empty for
// system-originated jobs.
func NewJob(payload Payload, createdBy string) (*Job, error) {
	raw, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Job{
		ID:          uuid.NewString(),
		Type:        payload.Kind(),
		Status:      StatusPending,
		Payload:     raw,
		Attempts:    0,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
	}, nil
}

// WithSchedule delays the job until the given time.
func (j *Job) WithSchedule(at time.Time) *Job {
	t := at.UTC()
	j.ScheduledFor = &t
	return j
}

// WithMaxAttempts overrides the default attempt bound.
func (j *Job) WithMaxAttempts(n int) *Job {
	if n > 0 {
		j.MaxAttempts = n
	}
	return j
}

// WithPriority records a priority hint. Claim order remains FIFO by
// creation time; priority is surfaced to API clients only.
func (j *Job) WithPriority(p int) *Job {
	j.Priority = p
	return j
}

// DecodePayload deserializes the job's payload envelope into its typed form.
func (j *Job) DecodePayload() (Payload, error) {
	p, err := DecodePayload(j.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "job %s", j.ID)
	}
	return p, nil
}

// Eligible reports whether the job could be claimed at the given time.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusPending {
		return false
	}
	return j.ScheduledFor == nil || !j.ScheduledFor.After(now)
}

// CanRetry reports whether a failure should re-queue the job instead of
// failing it terminally.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// RetryDelay computes the backoff before a failed job becomes eligible
// again: 2^attempts minutes, capped at MaxRetryDelay. attempts is the
// post-claim count, so the first retry waits 2 minutes, then 4, 8, ...
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 2^11 minutes already exceeds the cap; larger shifts would overflow.
	if attempts > 11 {
		return MaxRetryDelay
	}
	delay := time.Duration(1<<uint(attempts)) * time.Minute
	if delay > MaxRetryDelay {
		return MaxRetryDelay
	}
	return delay
}
