// Package queue is the durable dispatch layer between the API and the
// pipeline. Jobs live in the database, so a restart loses nothing: the
// dispatcher claims due jobs with a conditional update and hands them to a
// bounded worker pool, throttled by a global start-rate limit.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/logger"
	"github.com/sheenhq/sitesmith/internal/orchestrator"
	"github.com/sheenhq/sitesmith/internal/repository"
	"golang.org/x/time/rate"
)

// Runner executes a claimed migration job and finalizes exhausted ones.
// *orchestrator.Orchestrator is the production implementation.
type Runner interface {
	Run(ctx context.Context, migrationID, workerID string) error
	FailTerminal(ctx context.Context, migrationID, code, message string) error
}

// Config holds queue dispatch settings.
type Config struct {
	Concurrency   int
	StartsPerMin  int
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffFactor int
	PollInterval  time.Duration
}

// Service owns the dispatcher and worker pool.
type Service struct {
	jobs    *repository.JobRepository
	runner  Runner
	cfg     Config
	limiter *rate.Limiter
	baseID  string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue service.
// Parameters:
//   - jobs: durable job repository.
//   - runner: pipeline runner invoked per claimed job.
//   - cfg: dispatch settings; zero values get sensible defaults.
// Returns:
//   - *Service: initialized queue service, not yet started.
func New(jobs *repository.JobRepository, runner Runner, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.StartsPerMin <= 0 {
		cfg.StartsPerMin = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Service{
		jobs:    jobs,
		runner:  runner,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.StartsPerMin)), 1),
		baseID:  uuid.New().String()[:8],
	}
}

// Enqueue submits a migration for processing. Enqueueing the same migration
// twice is a no-op while a job is queued, and re-opens the job when it is
// active or a previous run finished, which is how verification and manual
// retries redispatch.
// Parameters:
//   - ctx: context for cancellation.
//   - migrationID: migration to process.
// Returns:
//   - *domain.QueueJob: the pending job row.
//   - error: database failures.
func (s *Service) Enqueue(ctx context.Context, migrationID string) (*domain.QueueJob, error) {
	return s.jobs.Enqueue(ctx, migrationID, s.cfg.MaxAttempts)
}

// Start launches the dispatcher and worker pool. It returns immediately;
// call Stop to drain.
// Parameters:
//   - ctx: parent context; Start derives its own cancellable context.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	jobCh := make(chan *domain.QueueJob)

	for i := 0; i < s.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("worker-%s-%d", s.baseID, i)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workerLoop(ctx, workerID, jobCh)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(jobCh)
		s.dispatchLoop(ctx, jobCh)
	}()

	logger.Info("Queue started: %d workers, %d starts/min, poll every %s",
		s.cfg.Concurrency, s.cfg.StartsPerMin, s.cfg.PollInterval)
}

// Stop cancels dispatch and waits for in-flight jobs to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logger.Info("Queue stopped")
}

func (s *Service) dispatchLoop(ctx context.Context, jobCh chan<- *domain.QueueJob) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for s.limiter.Allow() {
			job, err := s.jobs.ClaimDue(ctx, time.Now())
			if err != nil {
				logger.Error("Failed to claim job: %v", err)
				break
			}
			if job == nil {
				break
			}

			select {
			case jobCh <- job:
			case <-ctx.Done():
				// Shutting down with a claimed job in hand: put it back so
				// another worker picks it up without waiting out a lease.
				requeueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				if err := s.jobs.Requeue(requeueCtx, job.ID, time.Now(), "dispatcher shutdown"); err != nil {
					logger.Error("Failed to requeue job %s on shutdown: %v", job.ID, err)
				}
				cancel()
				return
			}
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, workerID string, jobCh <-chan *domain.QueueJob) {
	for job := range jobCh {
		s.process(ctx, workerID, job)
	}
}

func (s *Service) process(ctx context.Context, workerID string, job *domain.QueueJob) {
	ctx = logger.SetJobID(ctx, job.ID)
	logger.CtxInfo(ctx, "Worker %s processing job %s (migration %s, attempt %d/%d)",
		workerID, job.ID, job.MigrationID, job.Attempts, job.MaxAttempts)

	err := s.runner.Run(ctx, job.MigrationID, workerID)

	// Bookkeeping must survive shutdown of the worker context.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err == nil {
		if err := s.jobs.MarkCompleted(bookCtx, job.ID); err != nil {
			logger.CtxError(ctx, "Failed to mark job %s completed: %v", job.ID, err)
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		logger.CtxError(ctx, "Job %s exhausted %d attempts: %v", job.ID, job.Attempts, err)
		if markErr := s.jobs.MarkFailed(bookCtx, job.ID, err.Error()); markErr != nil {
			logger.CtxError(ctx, "Failed to mark job %s failed: %v", job.ID, markErr)
		}
		if failErr := s.runner.FailTerminal(bookCtx, job.MigrationID, failureCode(err), err.Error()); failErr != nil {
			logger.CtxError(ctx, "Failed to finalize migration %s: %v", job.MigrationID, failErr)
		}
		return
	}

	delay := s.backoff(job.Attempts)
	logger.CtxWarn(ctx, "Job %s attempt %d failed, retrying in %s: %v", job.ID, job.Attempts, delay, err)
	if requeueErr := s.jobs.Requeue(bookCtx, job.ID, time.Now().Add(delay), err.Error()); requeueErr != nil {
		logger.CtxError(ctx, "Failed to requeue job %s: %v", job.ID, requeueErr)
	}
}

// backoff computes the delay before retry attempt+1: base * factor^(attempt-1).
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(s.cfg.BackoffFactor)
	}
	return delay
}

// failureCode extracts the stable error code from a classified pipeline
// error, falling back to a generic exhaustion code.
func failureCode(err error) string {
	var classified *orchestrator.PipelineError
	if errors.As(err, &classified) {
		return classified.Code
	}
	return "retries_exhausted"
}
