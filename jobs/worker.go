package jobs

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/filehaven/filehaven/db"
	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/logger"
)

// WorkerPool runs a fixed set of pollers that claim and execute jobs.
// Concurrency is bounded twice: by the number of pollers and by a
// semaphore sized to match, so in-flight executions never exceed the
// configured worker count even if pollers are added later.
type WorkerPool struct {
	queue      *Queue
	dispatcher *Dispatcher
	counters   *Counters
	config     PoolConfig
	sem        *semaphore.Weighted
	parentCtx  context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	log        *zap.SugaredLogger
	mu         sync.Mutex
	started    bool
}

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers         int           `json:"workers"`          // Number of concurrent workers
	PollInterval    time.Duration `json:"poll_interval"`    // How often idle workers check for new jobs
	JobTimeout      time.Duration `json:"job_timeout"`      // Per-job execution deadline; 0 disables
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // How long Stop waits for in-flight jobs
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:         4,
		PollInterval:    5 * time.Second,
		JobTimeout:      time.Hour,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewWorkerPool creates a worker pool. Callers must register handlers on
// the registry before calling Start.
func NewWorkerPool(ctx context.Context, queue *Queue, registry *Registry, cfg PoolConfig, counters *Counters, log *zap.SugaredLogger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPoolConfig().PollInterval
	}
	if log == nil {
		log = logger.Logger
	}
	log = log.Named("workers")

	workerCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		queue:      queue,
		dispatcher: NewDispatcher(registry, log),
		counters:   counters,
		config:     cfg,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		log:        log,
	}
}

// Queue returns the queue this pool polls.
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Workers returns the configured worker count.
func (wp *WorkerPool) Workers() int {
	return wp.config.Workers
}

// Start recovers orphaned jobs and launches the worker goroutines. A
// stopped pool can be started again.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	if wp.started {
		wp.mu.Unlock()
		return
	}
	// Recreate the worker context if a previous Stop cancelled it.
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.started = true
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		// Recovery failure is not fatal; orphans stay Running until the
		// next restart.
		wp.log.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	}

	wp.log.Infow("Worker pool starting",
		"workers", wp.config.Workers,
		"poll_interval", wp.config.PollInterval,
	)

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop signals workers to stop claiming and waits up to ShutdownTimeout
// for in-flight jobs to finish. Executions past the timeout complete in
// the background; their jobs are recovered as orphans only if the
// process dies before they do.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.started {
		wp.mu.Unlock()
		return
	}
	wp.started = false
	wp.mu.Unlock()

	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := wp.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		wp.log.Infow("Worker pool stopped, all workers exited cleanly")
	case <-time.After(timeout):
		wp.log.Warnw("Worker pool stop timed out, in-flight jobs finishing in background",
			"timeout", timeout)
	}
}

// recoverOrphanedJobs handles jobs left Running by an unclean shutdown:
// jobs with attempts remaining go back to Pending; exhausted ones fail
// terminally so the attempt bound survives the crash.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	orphans, err := wp.queue.Store().ListRunning(MaxOrphanRecoveryBatch)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphans) == 0 {
		return nil
	}

	wp.log.Warnw("Found orphaned jobs from previous shutdown", logger.FieldCount, len(orphans))

	now := time.Now().UTC()
	requeued, failed := 0, 0
	for _, job := range orphans {
		if job.Attempts >= job.MaxAttempts {
			ok, err := wp.queue.Store().MarkFailed(job.ID, "worker terminated before job completed", now)
			if err != nil {
				wp.log.Warnw("Failed to fail exhausted orphaned job",
					logger.FieldJobID, job.ID, logger.FieldError, err)
				continue
			}
			if ok {
				failed++
			}
			continue
		}

		ok, err := wp.queue.Store().RequeueOrphan(job.ID, now)
		if err != nil {
			wp.log.Warnw("Failed to requeue orphaned job",
				logger.FieldJobID, job.ID, logger.FieldError, err)
			continue
		}
		if ok {
			requeued++
		}
	}

	wp.log.Infow("Orphaned job recovery complete",
		"requeued", requeued,
		"failed", failed,
	)
	return nil
}

// worker polls for jobs. When work is found it drains the queue before
// going back to sleep, so a burst of jobs doesn't wait a poll interval
// per job.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			wp.drain(id)
		}
	}
}

// drain claims and executes jobs until the queue is empty or shutdown
// begins.
func (wp *WorkerPool) drain(id int) {
	for {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		processed, err := wp.processNextJob(id)
		if err != nil {
			// Errors during shutdown are expected noise.
			if wp.shuttingDown() || db.IsDatabaseClosed(err) || errors.Is(err, sql.ErrConnDone) {
				return
			}
			wp.log.Errorw("Worker error processing job",
				logger.FieldWorkerID, id,
				logger.FieldError, err,
			)
			return
		}
		if !processed {
			return
		}
	}
}

func (wp *WorkerPool) shuttingDown() bool {
	select {
	case <-wp.ctx.Done():
		return true
	default:
		return false
	}
}

// processNextJob claims and executes a single job. Returns false when no
// job was eligible.
func (wp *WorkerPool) processNextJob(workerID int) (bool, error) {
	job, err := wp.queue.Claim()
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}
	if job == nil {
		return false, nil
	}

	if err := wp.sem.Acquire(wp.ctx, 1); err != nil {
		// Shutdown raced the claim; put the job back untouched.
		if _, reqErr := wp.queue.Store().RequeueOrphan(job.ID, time.Now().UTC()); reqErr != nil {
			wp.log.Warnw("Failed to requeue job after shutdown race",
				logger.FieldJobID, job.ID, logger.FieldError, reqErr)
		}
		return false, nil
	}
	defer wp.sem.Release(1)

	wp.executeJob(workerID, job)
	return true, nil
}

// executeJob dispatches a claimed job and records the outcome. In-flight
// executions are deliberately detached from the shutdown context: Stop
// lets them finish rather than aborting them mid-write.
func (wp *WorkerPool) executeJob(workerID int, job *Job) {
	start := time.Now()

	execCtx := context.WithoutCancel(wp.ctx)
	if wp.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, wp.config.JobTimeout)
		defer cancel()
	}

	wp.log.Debugw("Executing job",
		logger.FieldWorkerID, workerID,
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
		logger.FieldAttempts, job.Attempts,
	)

	result, err := wp.dispatcher.Dispatch(execCtx, job)

	switch {
	case err != nil:
		wp.recordFailure(job, err.Error(), start)
	case result != nil && !result.Success:
		msg := result.Message
		if msg == "" {
			msg = "handler reported failure"
		}
		wp.recordFailure(job, msg, start)
	default:
		if err := wp.queue.Complete(job.ID, result); err != nil {
			wp.log.Errorw("Failed to record job success",
				logger.FieldJobID, job.ID,
				logger.FieldError, err,
			)
			return
		}
		wp.log.Infow("Job succeeded",
			logger.FieldJobID, job.ID,
			logger.FieldJobType, job.Type,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}
}

func (wp *WorkerPool) recordFailure(job *Job, msg string, start time.Time) {
	if err := wp.queue.Fail(job.ID, msg); err != nil {
		wp.log.Errorw("Failed to record job failure",
			logger.FieldJobID, job.ID,
			logger.FieldError, err,
		)
		return
	}
	wp.log.Warnw("Job attempt failed",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
		logger.FieldAttempts, job.Attempts,
		logger.FieldError, msg,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
}
