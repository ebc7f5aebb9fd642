package jobs

import (
	"database/sql"
	"time"

	"github.com/filehaven/filehaven/errors"
)

// Store handles persistence of job rows. All writes that depend on the
// current status are conditional UPDATEs so that concurrent workers
// cannot clobber each other; callers inspect the returned bool to detect
// a lost race.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, job_type, status, priority,
			payload, result, error,
			attempts, max_attempts,
			scheduled_for, started_at, completed_at,
			created_at, updated_at, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result := sql.NullString{String: string(job.Result), Valid: len(job.Result) > 0}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}
	createdBy := sql.NullString{String: job.CreatedBy, Valid: job.CreatedBy != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.Type,
		job.Status,
		job.Priority,
		string(job.Payload),
		result,
		errMsg,
		job.Attempts,
		job.MaxAttempts,
		job.ScheduledFor,
		job.StartedAt,
		job.CompletedAt,
		job.CreatedAt,
		job.UpdatedAt,
		createdBy,
	)

	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs WHERE id = ?`

	var job Job
	args := GetJobScanArgs()
	targets := GetJobScanTargets(&job, args)

	err := s.db.QueryRow(query, id).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	if err := ProcessJobScanArgs(&job, args); err != nil {
		return nil, err
	}

	return &job, nil
}

// ListFilter narrows ListJobs results. Nil fields match everything.
type ListFilter struct {
	Status *Status
	Kind   *Kind
	Limit  int
	Offset int
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(filter ListFilter) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs`
	var args []interface{}

	where := ""
	if filter.Status != nil {
		where = ` WHERE status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Kind != nil {
		if where == "" {
			where = ` WHERE job_type = ?`
		} else {
			where += ` AND job_type = ?`
		}
		args = append(args, *filter.Kind)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// CountJobs returns the number of jobs, optionally restricted to a status.
func (s *Store) CountJobs(status *Status) (int, error) {
	var count int
	var err error
	if status != nil {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, *status).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&count)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to count jobs")
	}
	return count, nil
}

// ListRunning returns jobs currently marked Running, oldest first. Used
// at startup to recover work orphaned by an unclean shutdown.
func (s *Store) ListRunning(limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE status = 'running'
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "running jobs")
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

// ClaimNext atomically claims the oldest eligible Pending job: the status
// flip, attempt increment, and row selection happen in one statement so
// two concurrent pollers can never claim the same job. Returns nil when
// nothing is eligible.
func (s *Store) ClaimNext(now time.Time) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = 'running',
		    attempts = attempts + 1,
		    started_at = ?,
		    updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			  AND attempts < max_attempts
			  AND (scheduled_for IS NULL OR scheduled_for <= ?)
			ORDER BY created_at ASC, rowid ASC
			LIMIT 1
		) AND status = 'pending'
		RETURNING ` + StandardJobSelectColumns()

	var job Job
	args := GetJobScanArgs()
	targets := GetJobScanTargets(&job, args)

	err := s.db.QueryRow(query, now, now, now).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // nothing eligible
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job")
	}

	if err := ProcessJobScanArgs(&job, args); err != nil {
		return nil, err
	}

	return &job, nil
}

// MarkSuccess transitions a Running job to Success, recording its result.
// Returns false if the job was not Running.
func (s *Store) MarkSuccess(id string, result []byte, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'success',
		    result = ?,
		    error = NULL,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = 'running'
	`

	res := sql.NullString{String: string(result), Valid: len(result) > 0}
	return s.conditionalUpdate(query, "failed to mark job succeeded", res, now, now, id)
}

// MarkRetry moves a Running job back to Pending with a backoff deadline.
// Returns false if the job was not Running.
func (s *Store) MarkRetry(id string, errMsg string, scheduledFor time.Time, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'pending',
		    error = ?,
		    scheduled_for = ?,
		    started_at = NULL,
		    updated_at = ?
		WHERE id = ? AND status = 'running'
	`

	return s.conditionalUpdate(query, "failed to mark job for retry", errMsg, scheduledFor, now, id)
}

// MarkFailed transitions a Running job to terminal Failed. Returns false
// if the job was not Running.
func (s *Store) MarkFailed(id string, errMsg string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'failed',
		    error = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = 'running'
	`

	return s.conditionalUpdate(query, "failed to mark job failed", errMsg, now, now, id)
}

// MarkCancelled transitions a Pending job to Cancelled. Running jobs are
// not interruptible, so the guard is stricter than the other transitions.
func (s *Store) MarkCancelled(id string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'cancelled',
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	return s.conditionalUpdate(query, "failed to mark job cancelled", now, now, id)
}

// RequeueOrphan returns a Running job to Pending without touching its
// attempt count, for jobs left behind by a crashed worker.
func (s *Store) RequeueOrphan(id string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'pending',
		    scheduled_for = NULL,
		    started_at = NULL,
		    updated_at = ?
		WHERE id = ? AND status = 'running'
	`

	return s.conditionalUpdate(query, "failed to requeue orphaned job", now, id)
}

// conditionalUpdate runs a guarded UPDATE and reports whether it matched.
func (s *Store) conditionalUpdate(query string, errContext string, args ...interface{}) (bool, error) {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return false, errors.Wrap(err, errContext)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return rows > 0, nil
}

// DeleteOlderThan removes terminal jobs whose completion predates the
// cutoff. Pending and Running jobs are never touched.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ('success', 'failed', 'cancelled')
		  AND completed_at IS NOT NULL
		  AND completed_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}
