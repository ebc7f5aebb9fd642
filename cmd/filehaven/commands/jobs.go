package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/filehaven/filehaven/config"
	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/jobs"
	"github.com/filehaven/filehaven/jobs/schedule"
	"github.com/filehaven/filehaven/logger"
)

// JobsCmd represents the jobs command - background job queue management
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the background job queue",
	Long: `Manage FileHaven's background job queue.

The job daemon provides:
- Durable job queue persisted in SQLite
- Worker pool with bounded concurrency and retry with backoff
- Calendar scheduler for recurring maintenance
- Graceful shutdown (in-flight jobs finish before exit)

Examples:
  filehaven jobs start              # Start daemon in foreground
  filehaven jobs start --workers 8  # Start with 8 concurrent workers
  filehaven jobs ls --status failed # List failed jobs
  filehaven jobs enqueue file_indexing --data '{"file_id":"f1","file_path":"/docs/a.pdf"}'
  filehaven jobs cancel <job-id>    # Cancel a pending job
  filehaven jobs cleanup --days 30  # Delete old terminal jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the job daemon",
	Long: `Start the job daemon in foreground mode.

The daemon recovers jobs orphaned by a previous shutdown, starts the
worker pool and the maintenance scheduler, and runs until interrupted
(Ctrl+C). Shutdown is graceful: no new jobs are claimed and in-flight
jobs are allowed to finish.`,
	RunE: runJobsStart,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	RunE:  runJobsLs,
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runJobsStats,
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue <type>",
	Short: "Enqueue a job",
	Long: `Enqueue a job of the given type with a JSON payload.

Examples:
  filehaven jobs enqueue database_cleanup --data '{"table":"jobs"}'
  filehaven jobs enqueue search_index_rebuild --data '{"full_rebuild":true}' --delay 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsEnqueue,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old completed jobs",
	RunE:  runJobsCleanup,
}

var (
	jobsWorkersFlag     int
	jobsLsStatusFlag    string
	jobsLsTypeFlag      string
	jobsLsLimitFlag     int
	jobsLsOffsetFlag    int
	jobsEnqueueDataFlag string
	jobsEnqueueDelay    time.Duration
	jobsEnqueueAttempts int
	jobsCleanupDaysFlag int
)

func init() {
	jobsStartCmd.Flags().IntVar(&jobsWorkersFlag, "workers", 0, "Number of concurrent workers (0 = use configured value)")

	jobsLsCmd.Flags().StringVar(&jobsLsStatusFlag, "status", "", "Filter by status (pending, running, success, failed, cancelled)")
	jobsLsCmd.Flags().StringVar(&jobsLsTypeFlag, "type", "", "Filter by job type")
	jobsLsCmd.Flags().IntVar(&jobsLsLimitFlag, "limit", 20, "Maximum number of jobs to show")
	jobsLsCmd.Flags().IntVar(&jobsLsOffsetFlag, "offset", 0, "Number of jobs to skip")

	jobsEnqueueCmd.Flags().StringVar(&jobsEnqueueDataFlag, "data", "{}", "Job payload data as JSON")
	jobsEnqueueCmd.Flags().DurationVar(&jobsEnqueueDelay, "delay", 0, "Delay before the job becomes eligible")
	jobsEnqueueCmd.Flags().IntVar(&jobsEnqueueAttempts, "max-attempts", 0, "Override maximum attempts (0 = default)")

	jobsCleanupCmd.Flags().IntVar(&jobsCleanupDaysFlag, "days", 0, "Retention in days (0 = use configured value)")

	JobsCmd.AddCommand(jobsStartCmd)
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatsCmd)
	JobsCmd.AddCommand(jobsEnqueueCmd)
	JobsCmd.AddCommand(jobsCancelCmd)
	JobsCmd.AddCommand(jobsCleanupCmd)
}

func runJobsStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	poolCfg := jobs.PoolConfig{
		Workers:         cfg.Jobs.Workers,
		PollInterval:    time.Duration(cfg.Jobs.PollIntervalSeconds) * time.Second,
		JobTimeout:      time.Duration(cfg.Jobs.JobTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Jobs.ShutdownTimeoutSeconds) * time.Second,
	}
	if jobsWorkersFlag > 0 {
		poolCfg.Workers = jobsWorkersFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counters := jobs.NewCounters()
	queue := jobs.NewQueue(database, counters)

	registry := jobs.NewRegistry()
	registerMaintenanceHandlers(registry, database, queue, cfg)

	pool := jobs.NewWorkerPool(ctx, queue, registry, poolCfg, counters, logger.Logger)
	pool.Start()

	var scheduler *schedule.Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := schedule.Config{
			Interval: time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		}
		triggers := handledTriggers(schedule.DefaultTriggers(), registry)
		scheduler = schedule.NewScheduler(ctx, queue, triggers, schedCfg, counters, logger.Logger)
		scheduler.Start()
	}

	fmt.Printf("Job daemon started\n")
	fmt.Printf("  Database:      %s\n", cfg.Database.Path)
	fmt.Printf("  Workers:       %d\n", poolCfg.Workers)
	fmt.Printf("  Poll interval: %v\n", poolCfg.PollInterval)
	if cfg.Scheduler.Enabled {
		fmt.Printf("  Scheduler:     every %ds\n", cfg.Scheduler.IntervalSeconds)
	} else {
		fmt.Printf("  Scheduler:     disabled\n")
	}
	fmt.Printf("\nPress Ctrl+C for graceful shutdown\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down...\n")

	// Stop components in reverse order of startup
	if scheduler != nil {
		scheduler.Stop()
	}
	pool.Stop()
	cancel()

	snap := counters.Snapshot()
	fmt.Printf("Job daemon stopped (claimed: %d, succeeded: %d, retried: %d, failed: %d)\n",
		snap.Claimed, snap.Succeeded, snap.Retried, snap.Failed)
	return nil
}

// handledTriggers drops trigger payloads whose kind has no registered
// handler, so the scheduler never enqueues work that can only fail.
func handledTriggers(triggers []schedule.Trigger, registry *jobs.Registry) []schedule.Trigger {
	filtered := make([]schedule.Trigger, 0, len(triggers))
	for _, t := range triggers {
		trigger := t
		inner := trigger.Payloads
		trigger.Payloads = func() []jobs.Payload {
			var kept []jobs.Payload
			for _, p := range inner() {
				if registry.Has(p.Kind()) {
					kept = append(kept, p)
				}
			}
			return kept
		}
		filtered = append(filtered, trigger)
	}
	return filtered
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := jobs.NewQueue(database, nil)

	filter := jobs.ListFilter{Limit: jobsLsLimitFlag, Offset: jobsLsOffsetFlag}
	if jobsLsStatusFlag != "" {
		if !jobs.IsValidStatus(jobsLsStatusFlag) {
			return errors.NewInvalidRequestError("invalid status %q", jobsLsStatusFlag)
		}
		status := jobs.Status(jobsLsStatusFlag)
		filter.Status = &status
	}
	if jobsLsTypeFlag != "" {
		if !jobs.IsValidKind(jobsLsTypeFlag) {
			return errors.NewInvalidRequestError("invalid job type %q", jobsLsTypeFlag)
		}
		kind := jobs.Kind(jobsLsTypeFlag)
		filter.Kind = &kind
	}

	list, err := queue.List(filter)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s  %-22s  %-9s  %-8s  %s\n", "ID", "TYPE", "STATUS", "ATTEMPTS", "CREATED")
	for _, job := range list {
		fmt.Printf("%-36s  %-22s  %-9s  %d/%d      %s\n",
			job.ID, job.Type, job.Status, job.Attempts, job.MaxAttempts,
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runJobsStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := jobs.NewQueue(database, nil)
	stats, err := queue.GetStats()
	if err != nil {
		return err
	}

	fmt.Printf("Job Queue Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Pending:   %d\n", stats.Pending)
	fmt.Printf("Running:   %d\n", stats.Running)
	fmt.Printf("Success:   %d\n", stats.Success)
	fmt.Printf("Failed:    %d\n", stats.Failed)
	fmt.Printf("Cancelled: %d\n", stats.Cancelled)
	fmt.Printf("Total:     %d\n", stats.Total)
	return nil
}

func runJobsEnqueue(cmd *cobra.Command, args []string) error {
	kindArg := args[0]
	if !jobs.IsValidKind(kindArg) {
		return errors.NewInvalidRequestError("invalid job type %q (known: %v)", kindArg, jobs.Kinds())
	}

	// Route the raw data through the envelope decoder so malformed
	// payloads are rejected before anything is persisted.
	envelope, err := json.Marshal(map[string]any{
		"type": kindArg,
		"data": json.RawMessage(jobsEnqueueDataFlag),
	})
	if err != nil {
		return errors.Wrap(err, "failed to build payload envelope")
	}
	payload, err := jobs.DecodePayload(envelope)
	if err != nil {
		return err
	}

	job, err := jobs.NewJob(payload, "cli")
	if err != nil {
		return err
	}
	if jobsEnqueueDelay > 0 {
		job.WithSchedule(time.Now().UTC().Add(jobsEnqueueDelay))
	}
	maxAttempts := jobsEnqueueAttempts
	if maxAttempts <= 0 {
		if cfg, err := config.Load(); err == nil {
			maxAttempts = cfg.Jobs.MaxAttempts
		}
	}
	job.WithMaxAttempts(maxAttempts)

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := jobs.NewQueue(database, nil)
	if err := queue.Enqueue(job); err != nil {
		return err
	}

	fmt.Printf("Enqueued job %s (%s)\n", job.ID, job.Type)
	if job.ScheduledFor != nil {
		fmt.Printf("  Scheduled for: %s\n", job.ScheduledFor.Local().Format(time.RFC3339))
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := jobs.NewQueue(database, nil)
	if err := queue.Cancel(args[0]); err != nil {
		return err
	}

	fmt.Printf("Cancelled job %s\n", args[0])
	return nil
}

func runJobsCleanup(cmd *cobra.Command, args []string) error {
	days := jobsCleanupDaysFlag
	if days <= 0 {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		days = cfg.Jobs.RetentionDays
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := jobs.NewQueue(database, nil)
	deleted, err := queue.Cleanup(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d jobs older than %d days\n", deleted, days)
	return nil
}
