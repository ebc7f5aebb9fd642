package jobs

import (
	"database/sql"
	"encoding/json"
)

// JobScanArgs holds the nullable column variables needed when scanning a
// job row.
type JobScanArgs struct {
	Result       sql.NullString
	ErrorMsg     sql.NullString
	ScheduledFor sql.NullTime
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	CreatedBy    sql.NullString
}

// GetJobScanArgs returns a JobScanArgs struct with all variables ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// GetJobScanTargets returns scan destinations for the job and its nullable
// columns, in the order of StandardJobSelectColumns.
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.Type,
		&job.Status,
		&job.Priority,
		(*[]byte)(&job.Payload),
		&args.Result,
		&args.ErrorMsg,
		&job.Attempts,
		&job.MaxAttempts,
		&args.ScheduledFor,
		&args.StartedAt,
		&args.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
		&args.CreatedBy,
	}
}

// ProcessJobScanArgs copies the nullable scan values into the job struct.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	if args.Result.Valid {
		job.Result = json.RawMessage(args.Result.String)
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}
	if args.ScheduledFor.Valid {
		t := args.ScheduledFor.Time
		job.ScheduledFor = &t
	}
	if args.StartedAt.Valid {
		t := args.StartedAt.Time
		job.StartedAt = &t
	}
	if args.CompletedAt.Valid {
		t := args.CompletedAt.Time
		job.CompletedAt = &t
	}
	if args.CreatedBy.Valid {
		job.CreatedBy = args.CreatedBy.String
	}
	return nil
}

// ScanJobFromRow scans a single job from a sql.Row
func ScanJobFromRow(row *sql.Row, job *Job) error {
	args := GetJobScanArgs()
	targets := GetJobScanTargets(job, args)

	if err := row.Scan(targets...); err != nil {
		return err
	}

	return ProcessJobScanArgs(job, args)
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := GetJobScanArgs()
	targets := GetJobScanTargets(job, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	return ProcessJobScanArgs(job, args)
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, job_type, status, priority,
		payload, result, error,
		attempts, max_attempts,
		scheduled_for, started_at, completed_at,
		created_at, updated_at, created_by`
}
