// Package config loads the FileHaven configuration with Viper.
//
// Configuration is read from filehaven.toml (working directory or
// ~/.config/filehaven/), with FILEHAVEN_* environment variables taking
// precedence over file values.
package config

// Config represents the FileHaven core configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// JobsConfig configures the background job queue and worker pool.
type JobsConfig struct {
	// Workers is the number of concurrent job workers (default: 4).
	Workers int `mapstructure:"workers"`

	// PollIntervalSeconds is how often an idle worker checks for new
	// jobs (default: 5).
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`

	// MaxAttempts is the default attempt bound for newly enqueued jobs
	// (default: 3). Individual jobs may override it at creation.
	MaxAttempts int `mapstructure:"max_attempts"`

	// RetentionDays is how long terminal jobs (success/failed/cancelled)
	// are kept before cleanup deletes them (default: 30).
	RetentionDays int `mapstructure:"retention_days"`

	// JobTimeoutSeconds bounds a single handler execution. 0 disables
	// the per-job deadline (default: 3600).
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`

	// ShutdownTimeoutSeconds is how long Stop() waits for in-flight
	// jobs before returning anyway (default: 30).
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// SchedulerConfig configures the recurring-job scheduler.
type SchedulerConfig struct {
	// Enabled toggles the calendar scheduler (default: true).
	Enabled bool `mapstructure:"enabled"`

	// IntervalSeconds is how often the scheduler wakes to evaluate
	// calendar triggers (default: 60).
	IntervalSeconds int `mapstructure:"interval_seconds"`
}
