package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/orchestrator"
	"github.com/sheenhq/sitesmith/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type fakeRunner struct {
	mu            sync.Mutex
	runErr        error
	runCalls      int
	terminalCalls int
	terminalCode  string
}

func (f *fakeRunner) Run(ctx context.Context, migrationID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	return f.runErr
}

func (f *fakeRunner) FailTerminal(ctx context.Context, migrationID, code, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminalCalls++
	f.terminalCode = code
	return nil
}

func newService(t *testing.T, runner Runner, cfg Config) (*Service, *repository.JobRepository) {
	t.Helper()
	jobs := repository.NewJobRepository(testDB(t))
	return New(jobs, runner, cfg), jobs
}

func enqueueAndClaim(t *testing.T, s *Service, jobs *repository.JobRepository, migrationID string) *domain.QueueJob {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Enqueue(ctx, migrationID); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	job, err := jobs.ClaimDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to claim: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}

func TestProcessSuccessCompletesJob(t *testing.T) {
	runner := &fakeRunner{}
	s, jobs := newService(t, runner, Config{})
	job := enqueueAndClaim(t, s, jobs, "mig-1")

	s.process(context.Background(), "worker-1", job)

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if runner.runCalls != 1 {
		t.Errorf("expected 1 run, got %d", runner.runCalls)
	}
}

func TestProcessTransientErrorRequeuesWithBackoff(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("connection reset")}
	s, jobs := newService(t, runner, Config{BackoffBase: 30 * time.Second, BackoffFactor: 4})
	job := enqueueAndClaim(t, s, jobs, "mig-1")

	before := time.Now()
	s.process(context.Background(), "worker-1", job)

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Fatalf("expected requeued, got %s", got.Status)
	}
	// First attempt retries after the base delay.
	if delta := got.NextRunAt.Sub(before); delta < 29*time.Second || delta > 31*time.Second {
		t.Errorf("expected next run ~30s out, got %s", delta)
	}
	if got.LastError == "" {
		t.Error("expected the failure recorded on the job")
	}
	if runner.terminalCalls != 0 {
		t.Errorf("expected no terminal finalization, got %d", runner.terminalCalls)
	}
}

func TestProcessExhaustedAttemptsFinalizesMigration(t *testing.T) {
	pipelineErr := &orchestrator.PipelineError{
		Category: orchestrator.CategoryTransient,
		Code:     orchestrator.CodeFetchFailed,
		Err:      errors.New("no route to host"),
	}
	runner := &fakeRunner{runErr: pipelineErr}
	s, jobs := newService(t, runner, Config{MaxAttempts: 1})
	job := enqueueAndClaim(t, s, jobs, "mig-1")

	s.process(context.Background(), "worker-1", job)

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if runner.terminalCalls != 1 {
		t.Fatalf("expected 1 terminal finalization, got %d", runner.terminalCalls)
	}
	if runner.terminalCode != orchestrator.CodeFetchFailed {
		t.Errorf("expected code %s, got %s", orchestrator.CodeFetchFailed, runner.terminalCode)
	}
}

func TestStartStopDrainsWorkers(t *testing.T) {
	runner := &fakeRunner{}
	s, jobs := newService(t, runner, Config{
		Concurrency:  2,
		StartsPerMin: 600,
		PollInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()
	if _, err := s.Enqueue(ctx, "mig-1"); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetByMigration(ctx, "mig-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Status == domain.JobStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()

	job, err := jobs.GetByMigration(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected job completed before deadline, got %s", job.Status)
	}
	if runner.runCalls != 1 {
		t.Errorf("expected exactly 1 run, got %d", runner.runCalls)
	}
}

func TestBackoff(t *testing.T) {
	s := New(nil, &fakeRunner{}, Config{BackoffBase: 30 * time.Second, BackoffFactor: 4})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 2 * time.Minute},
		{3, 8 * time.Minute},
		{4, 32 * time.Minute},
	}
	for _, tt := range tests {
		if got := s.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestFailureCode(t *testing.T) {
	classified := &orchestrator.PipelineError{
		Category: orchestrator.CategoryTransient,
		Code:     orchestrator.CodeStorageFailed,
		Err:      errors.New("upload timed out"),
	}
	if got := failureCode(classified); got != orchestrator.CodeStorageFailed {
		t.Errorf("expected %s, got %s", orchestrator.CodeStorageFailed, got)
	}
	if got := failureCode(errors.New("boom")); got != "retries_exhausted" {
		t.Errorf("expected retries_exhausted, got %s", got)
	}
}
