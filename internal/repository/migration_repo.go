package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
)

// MigrationRepository handles migration record operations.
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository creates a new MigrationRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *MigrationRepository: repository instance bound to db.
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// Create inserts a new migration record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - m: migration record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *MigrationRepository) Create(ctx context.Context, m *domain.Migration) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID retrieves a migration by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
// Returns:
//   - *domain.Migration: migration record if found.
//   - error: non-nil if lookup fails.
func (r *MigrationRepository) GetByID(ctx context.Context, id string) (*domain.Migration, error) {
	var m domain.Migration
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateStatus advances a migration to a new status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
//   - status: status to set.
// Returns:
//   - error: non-nil if the update fails.
func (r *MigrationRepository) UpdateStatus(ctx context.Context, id string, status domain.MigrationStatus) error {
	return r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SetVerified marks a migration's source ownership as verified. Written by
// the external verification flow through the API.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *MigrationRepository) SetVerified(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ?", id).
		Update("verified", true).Error
}

// Cancel sets the cancelled status if the migration is not already terminal.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
// Returns:
//   - bool: true if the migration was cancelled by this call.
//   - error: non-nil if the update fails.
func (r *MigrationRepository) Cancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ? AND status NOT IN ?", id, []domain.MigrationStatus{
			domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
		}).
		Update("status", domain.StatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed sets the failed status with a structured error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
//   - code: error code from the failure taxonomy.
//   - message: human-readable error message.
// Returns:
//   - error: non-nil if the update fails.
func (r *MigrationRepository) MarkFailed(ctx context.Context, id, code, message string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.StatusFailed,
			"error_code":    code,
			"error_message": message,
			"completed_at":  &now,
		}).Error
}

// MarkCompleted sets the completed status and stamps the completion time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *MigrationRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.StatusCompleted,
			"completed_at": &now,
		}).Error
}

// SetTargetProject stamps the generated project ID. The ID is set at most
// once; a second call with a different project is rejected.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
//   - projectID: generated project ID.
// Returns:
//   - error: non-nil if the project ID was already set or the update fails.
func (r *MigrationRepository) SetTargetProject(ctx context.Context, id, projectID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ? AND (target_project_id IS NULL OR target_project_id = ?)", id, projectID).
		Update("target_project_id", projectID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("target project already set for migration %s", id)
	}
	return nil
}

// Reset clears the failure fields and re-queues a migration for a manual
// re-run. Analyses are left in place so completed phases are skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: migration ID.
// Returns:
//   - bool: true if the migration was reset.
//   - error: non-nil if the update fails.
func (r *MigrationRepository) Reset(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ? AND status = ?", id, domain.StatusFailed).
		Updates(map[string]interface{}{
			"status":        domain.StatusQueued,
			"error_code":    "",
			"error_message": "",
			"completed_at":  nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListByUser retrieves migrations for a user with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Migration: matching migration records.
//   - error: non-nil if the query fails.
func (r *MigrationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Migration, error) {
	var migrations []domain.Migration
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&migrations).Error; err != nil {
		return nil, err
	}
	return migrations, nil
}
