// Package scheduler is a time-ordered job queue: callers enqueue typed
// payloads with a scheduled time, and a tick loop executes due jobs at most
// once successfully, retiring them afterwards. The job store lives in memory
// and is private to the scheduler.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
)

// Scheduler owns the in-memory job store and the background tick loop.
// Start and Stop bound its lifecycle; tests call Tick directly with a fake
// clock instead of waiting on wall time.
type Scheduler struct {
	cfg     config.SchedulerConfig
	logger  *zap.Logger
	clock   Clock
	metrics *observability.Metrics

	mu       sync.Mutex
	jobs     []*Job // insertion order is the execution order among due jobs
	handlers map[JobType]Handler
	dead     []DeadJob
	ticking  bool

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithClock injects a clock, used by tests for deterministic ticks.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithMetrics records job executions into the shared counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// New builds a stopped scheduler.
func New(cfg config.SchedulerConfig, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		clock:    SystemClock(),
		handlers: make(map[JobType]Handler),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler binds a job type to its handler. Must happen before Start.
func (s *Scheduler) RegisterHandler(jobType JobType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

// Enqueue records a deferred action and returns its job id. It always
// succeeds; payload validation is the handler's responsibility. A zero
// scheduledFor means "due now".
func (s *Scheduler) Enqueue(payload JobPayload, scheduledFor time.Time) string {
	now := s.clock.Now()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	job := &Job{
		ID:           uuid.NewString(),
		Payload:      payload,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()

	s.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type())),
		zap.Time("scheduled_for", scheduledFor))
	return job.ID
}

// Start launches the tick loop. Stop or ctx cancellation ends it.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.run(ctx)
	})
}

// Stop terminates the tick loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickPeriod())
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("tick_period", s.cfg.TickPeriod()))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.String("cause", "context"))
			return
		case <-s.stop:
			s.logger.Info("scheduler stopped", zap.String("cause", "stop"))
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick executes every incomplete job whose scheduled time has arrived, in
// insertion order, then garbage-collects retired jobs. Overlapping calls are
// rejected so the same job can never run twice concurrently.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		s.logger.Warn("tick already in progress, skipping")
		return
	}
	s.ticking = true
	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if !job.Completed && !job.ScheduledFor.After(now) {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.execute(ctx, job)
	}

	s.mu.Lock()
	s.collect(now)
	s.ticking = false
	s.mu.Unlock()
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	handler, ok := s.handlerFor(job.Type())
	if !ok {
		s.retire(job, DeadJob{Job: *job, Reason: "no handler registered", DiedAt: s.clock.Now()})
		return
	}

	s.mu.Lock()
	job.Attempts++
	s.mu.Unlock()

	outcome := s.attempt(ctx, handler, job)
	s.metrics.RecordJob(string(job.Type()), dispositionName(outcome.Disposition))

	switch outcome.Disposition {
	case DispositionCompleted:
		s.mu.Lock()
		job.Completed = true
		s.mu.Unlock()

	case DispositionRetry:
		if outcome.Err != nil {
			s.mu.Lock()
			job.LastError = outcome.Err.Error()
			s.mu.Unlock()
		}
		if job.Attempts >= s.cfg.MaxAttempts {
			s.retire(job, DeadJob{
				Job:    *job,
				Reason: fmt.Sprintf("retries exhausted after %d attempts: %s", job.Attempts, job.LastError),
				DiedAt: s.clock.Now(),
			})
			return
		}
		delay := outcome.RetryAfter
		if delay <= 0 {
			// Exponential backoff on the configured base.
			delay = s.cfg.RetryBackoff() << (job.Attempts - 1)
		}
		s.mu.Lock()
		job.ScheduledFor = s.clock.Now().Add(delay)
		s.mu.Unlock()
		s.logger.Warn("job retry scheduled",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.Type())),
			zap.Int("attempts", job.Attempts),
			zap.Duration("delay", delay),
			zap.Error(outcome.Err))

	case DispositionDead:
		reason := "handler reported terminal failure"
		if outcome.Err != nil {
			reason = outcome.Err.Error()
			s.mu.Lock()
			job.LastError = reason
			s.mu.Unlock()
		}
		s.retire(job, DeadJob{Job: *job, Reason: reason, DiedAt: s.clock.Now()})
	}
}

// attempt runs the handler, converting a panic into a retryable failure so a
// single bad job cannot take the tick loop down.
func (s *Scheduler) attempt(ctx context.Context, handler Handler, job *Job) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job handler panicked",
				zap.String("job_id", job.ID),
				zap.String("job_type", string(job.Type())),
				zap.Any("panic", r))
			outcome = Retry(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, *job)
}

func (s *Scheduler) retire(job *Job, dead DeadJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Completed = true
	dead.Job = *job
	s.dead = append(s.dead, dead)
	if limit := s.cfg.DeadLetterLimit; limit > 0 && len(s.dead) > limit {
		s.dead = s.dead[len(s.dead)-limit:]
	}
	s.logger.Error("job dead-lettered",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type())),
		zap.String("reason", dead.Reason))
}

// collect purges completed jobs whose scheduled time fell out of the
// retention window. Caller holds the lock.
func (s *Scheduler) collect(now time.Time) {
	cutoff := now.Add(-s.cfg.Retention())
	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if job.Completed && job.ScheduledFor.Before(cutoff) {
			continue
		}
		kept = append(kept, job)
	}
	s.jobs = kept
}

func dispositionName(d Disposition) string {
	switch d {
	case DispositionCompleted:
		return "completed"
	case DispositionRetry:
		return "retry"
	case DispositionDead:
		return "dead"
	}
	return "unknown"
}

func (s *Scheduler) handlerFor(jobType JobType) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handler, ok := s.handlers[jobType]
	return handler, ok
}

// Job returns a snapshot of one job by id.
func (s *Scheduler) Job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == id {
			return *job, true
		}
	}
	return Job{}, false
}

// Pending counts jobs not yet retired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if !job.Completed {
			count++
		}
	}
	return count
}

// DeadLetters returns a copy of the dead-letter list, newest last.
func (s *Scheduler) DeadLetters() []DeadJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadJob, len(s.dead))
	copy(out, s.dead)
	return out
}
