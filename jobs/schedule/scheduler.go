package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/filehaven/filehaven/jobs"
	"github.com/filehaven/filehaven/logger"
)

// CreatedBy is recorded on every job the scheduler enqueues.
const CreatedBy = "scheduler"

// Scheduler periodically evaluates triggers against the clock and
// enqueues the jobs of any trigger whose minute has arrived. A trigger
// fires at most once per matching minute; minutes that pass while the
// scheduler is stopped are not made up.
type Scheduler struct {
	queue    *jobs.Queue
	triggers []Trigger
	interval time.Duration
	counters *jobs.Counters
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger

	mu        sync.Mutex
	lastFired map[string]time.Time // trigger name -> minute it last fired
}

// Config contains configuration for the scheduler.
type Config struct {
	Interval time.Duration // How often to evaluate triggers (default: 1 minute)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
	}
}

// NewScheduler creates a scheduler over the given triggers.
func NewScheduler(ctx context.Context, queue *jobs.Queue, triggers []Trigger, cfg Config, counters *jobs.Counters, log *zap.SugaredLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if log == nil {
		log = logger.Logger
	}

	schedCtx, cancel := context.WithCancel(ctx)

	return &Scheduler{
		queue:     queue,
		triggers:  triggers,
		interval:  cfg.Interval,
		counters:  counters,
		ctx:       schedCtx,
		cancel:    cancel,
		log:       log.Named("scheduler"),
		lastFired: make(map[string]time.Time),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Infow("Scheduler started",
		"interval", s.interval,
		"triggers", len(s.triggers),
	)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Infow("Scheduler stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tickTime := <-ticker.C:
			s.counters.IncSchedulerTick()
			s.checkTriggers(tickTime)
		}
	}
}

// checkTriggers fires every trigger whose rule matches now and has not
// yet fired for this minute. Enqueue failures are logged and skip the
// guard update so the next tick within the minute can retry.
func (s *Scheduler) checkTriggers(now time.Time) {
	minute := now.Truncate(time.Minute)

	for _, trigger := range s.triggers {
		if !trigger.Matches(now) {
			continue
		}

		s.mu.Lock()
		already := s.lastFired[trigger.Name].Equal(minute)
		s.mu.Unlock()
		if already {
			continue
		}

		// Mark fired before enqueueing: a trigger fires at most once per
		// matching minute even if some enqueues fail.
		s.mu.Lock()
		s.lastFired[trigger.Name] = minute
		s.mu.Unlock()

		s.fire(trigger)
	}
}

// fire enqueues all of a trigger's payloads. Enqueue failures are logged
// per payload; the remaining payloads still go out.
func (s *Scheduler) fire(trigger Trigger) {
	payloads := trigger.Payloads()

	enqueued := 0
	for _, payload := range payloads {
		job, err := s.queue.EnqueuePayload(payload, CreatedBy)
		if err != nil {
			s.log.Errorw("Trigger failed to enqueue job",
				logger.FieldTrigger, trigger.Name,
				logger.FieldJobType, payload.Kind(),
				logger.FieldError, err,
			)
			continue
		}
		enqueued++
		s.log.Debugw("Scheduler enqueued job",
			logger.FieldTrigger, trigger.Name,
			logger.FieldJobID, job.ID,
			logger.FieldJobType, job.Type,
		)
	}

	s.counters.IncTriggersFired()
	s.log.Infow("Trigger fired",
		logger.FieldTrigger, trigger.Name,
		logger.FieldCount, enqueued,
	)
}
