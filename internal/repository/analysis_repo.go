package repository

import (
	"context"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
)

// AnalysisRepository handles append-only analysis record operations.
type AnalysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a new AnalysisRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AnalysisRepository: repository instance bound to db.
func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Append persists a new analysis record. Records are never updated; a re-run
// appends a newer record which supersedes the old one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: analysis record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *AnalysisRepository) Append(ctx context.Context, record *domain.AnalysisRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Latest retrieves the authoritative (most recent, non-superseded) record for
// a migration and analysis type. Its presence is the phase's idempotency
// signal.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
//   - analysisType: phase type to look up.
// Returns:
//   - *domain.AnalysisRecord: most recent record, or nil if none exists.
//   - error: non-nil if the query fails.
func (r *AnalysisRepository) Latest(ctx context.Context, migrationID string, analysisType domain.AnalysisType) (*domain.AnalysisRecord, error) {
	var record domain.AnalysisRecord
	err := r.db.WithContext(ctx).
		Where("migration_id = ? AND type = ? AND superseded = ?", migrationID, analysisType, false).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// SupersedeByMigration marks every record of a migration superseded, forcing
// the next run to redo all phases from scratch. The rows themselves stay for
// audit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *AnalysisRepository) SupersedeByMigration(ctx context.Context, migrationID string) error {
	return r.db.WithContext(ctx).Model(&domain.AnalysisRecord{}).
		Where("migration_id = ? AND superseded = ?", migrationID, false).
		Update("superseded", true).Error
}

// ListByMigration retrieves all analysis records for a migration, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - []domain.AnalysisRecord: matching records.
//   - error: non-nil if the query fails.
func (r *AnalysisRepository) ListByMigration(ctx context.Context, migrationID string) ([]domain.AnalysisRecord, error) {
	var records []domain.AnalysisRecord
	if err := r.db.WithContext(ctx).
		Where("migration_id = ?", migrationID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
