package logger

// Standard field names for consistent structured logging across FileHaven.
// Use these constants instead of raw strings.
const (
	FieldJobID    = "job_id"
	FieldJobType  = "job_type"
	FieldStatus   = "status"
	FieldAttempts = "attempts"
	FieldWorkerID = "worker_id"
	FieldTrigger  = "trigger"

	FieldComponent  = "component"
	FieldOperation  = "operation"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldCount      = "count"
)
