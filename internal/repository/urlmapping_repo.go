package repository

import (
	"context"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
)

// URLMappingRepository handles redirect mapping rows.
type URLMappingRepository struct {
	db *gorm.DB
}

// NewURLMappingRepository creates a new URLMappingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *URLMappingRepository: repository instance bound to db.
func NewURLMappingRepository(db *gorm.DB) *URLMappingRepository {
	return &URLMappingRepository{db: db}
}

// CreateBatch inserts redirect mappings in bulk during the planning phase.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - mappings: mapping rows to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *URLMappingRepository) CreateBatch(ctx context.Context, mappings []domain.URLMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&mappings).Error
}

// ReplaceForMigration swaps a migration's redirect mappings for a new set
// in one transaction. Planning calls this when a fresh plan supersedes an
// earlier one, so stale mappings never outlive the plan they came from.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
//   - mappings: replacement mapping rows.
// Returns:
//   - error: non-nil if the swap fails; the old rows are kept on failure.
func (r *URLMappingRepository) ReplaceForMigration(ctx context.Context, migrationID string, mappings []domain.URLMapping) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("migration_id = ?", migrationID).
			Delete(&domain.URLMapping{}).Error; err != nil {
			return err
		}
		if len(mappings) == 0 {
			return nil
		}
		return tx.Create(&mappings).Error
	})
}

// ListByMigration retrieves all redirect mappings for a migration.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - []domain.URLMapping: matching mapping rows.
//   - error: non-nil if the query fails.
func (r *URLMappingRepository) ListByMigration(ctx context.Context, migrationID string) ([]domain.URLMapping, error) {
	var mappings []domain.URLMapping
	if err := r.db.WithContext(ctx).
		Where("migration_id = ?", migrationID).
		Order("source_url ASC").
		Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// CountByMigration counts redirect mappings for a migration.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - int64: number of mapping rows.
//   - error: non-nil if the query fails.
func (r *URLMappingRepository) CountByMigration(ctx context.Context, migrationID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.URLMapping{}).
		Where("migration_id = ?", migrationID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
