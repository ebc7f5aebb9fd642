package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "filehaven.db")

	// Job queue defaults
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.poll_interval_seconds", 5)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.retention_days", 30)
	v.SetDefault("jobs.job_timeout_seconds", 3600)
	v.SetDefault("jobs.shutdown_timeout_seconds", 30)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_seconds", 60)
}
