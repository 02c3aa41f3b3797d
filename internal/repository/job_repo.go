package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository handles durable queue job rows.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a job for a migration, keyed by the deterministic job ID.
// If a job for the migration is already queued the call is a no-op. A
// finished job (completed or failed) is reset to queued, which is how
// retries and external re-triggers re-enter the pipeline. An active job is
// also reset to queued: the in-flight worker's finish bookkeeping is
// conditional on the job still being active, so a verification that lands
// while a run winds down is never swallowed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: migration the job belongs to.
//   - maxAttempts: retry budget for the job.
// Returns:
//   - *domain.QueueJob: the queued job row.
//   - error: non-nil if persistence fails.
func (r *JobRepository) Enqueue(ctx context.Context, migrationID string, maxAttempts int) (*domain.QueueJob, error) {
	now := time.Now()
	job := &domain.QueueJob{
		ID:          domain.JobIDForMigration(migrationID),
		MigrationID: migrationID,
		Status:      domain.JobStatusQueued,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(job).Error
	if err != nil {
		return nil, err
	}

	// Re-open a finished or active job; queued rows are left untouched.
	if err := r.db.WithContext(ctx).Model(&domain.QueueJob{}).
		Where("id = ? AND status IN ?", job.ID, []domain.JobStatus{
			domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusActive,
		}).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusQueued,
			"attempts":     0,
			"max_attempts": maxAttempts,
			"next_run_at":  now,
			"last_error":   "",
			"started_at":   nil,
			"finished_at":  nil,
		}).Error; err != nil {
		return nil, err
	}

	return r.GetByID(ctx, job.ID)
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.QueueJob: job row if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.QueueJob, error) {
	var job domain.QueueJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByMigration retrieves the job for a migration, if any.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - *domain.QueueJob: job row, or nil if none exists.
//   - error: non-nil if the query fails.
func (r *JobRepository) GetByMigration(ctx context.Context, migrationID string) (*domain.QueueJob, error) {
	var job domain.QueueJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", domain.JobIDForMigration(migrationID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// ClaimDue atomically claims the oldest due queued job by flipping it to
// active. The conditional update makes the claim safe across processes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - now: current time used for the due check.
// Returns:
//   - *domain.QueueJob: claimed job, or nil if none is due.
//   - error: non-nil if the query fails.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time) (*domain.QueueJob, error) {
	var job domain.QueueJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", domain.JobStatusQueued, now).
		Order("next_run_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	res := r.db.WithContext(ctx).Model(&domain.QueueJob{}).
		Where("id = ? AND status = ?", job.ID, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusActive,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": &now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to another dispatcher.
		return nil, nil
	}

	return r.GetByID(ctx, job.ID)
}

// MarkCompleted finishes a job successfully. The update only applies while
// the job is still active: if Enqueue re-opened it to queued in the
// meantime, the re-open wins and the pending run is preserved.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.QueueJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusActive).
		Updates(map[string]interface{}{
			"status":      domain.JobStatusCompleted,
			"finished_at": &now,
		}).Error
}

// Requeue schedules a failed attempt for a later retry. Like MarkCompleted
// it only applies while the job is active, so a concurrent re-open keeps
// its immediate next_run_at instead of inheriting the backoff delay.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - nextRunAt: time of the next attempt.
//   - lastError: error message from the failed attempt.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Requeue(ctx context.Context, id string, nextRunAt time.Time, lastError string) error {
	return r.db.WithContext(ctx).Model(&domain.QueueJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusActive).
		Updates(map[string]interface{}{
			"status":      domain.JobStatusQueued,
			"next_run_at": nextRunAt,
			"last_error":  lastError,
		}).Error
}

// MarkFailed finishes a job permanently after its retry budget is exhausted.
// A job re-opened to queued mid-attempt is left to run again instead.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - lastError: error message from the final attempt.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.QueueJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusActive).
		Updates(map[string]interface{}{
			"status":      domain.JobStatusFailed,
			"finished_at": &now,
			"last_error":  lastError,
		}).Error
}

// CountByStatus counts jobs by status for operational monitoring.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to count.
// Returns:
//   - int64: number of matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.QueueJob{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
