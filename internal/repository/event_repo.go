package repository

import (
	"context"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
)

// EventRepository handles the append-only event log.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EventRepository: repository instance bound to db.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append persists a new event record. Events are never updated or deleted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - event: event record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *EventRepository) Append(ctx context.Context, event *domain.EventRecord) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByMigration retrieves events for a migration in chronological order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
//   - limit: maximum number of records to return; 0 means no limit.
// Returns:
//   - []domain.EventRecord: matching event records.
//   - error: non-nil if the query fails.
func (r *EventRepository) ListByMigration(ctx context.Context, migrationID string, limit int) ([]domain.EventRecord, error) {
	var events []domain.EventRecord
	query := r.db.WithContext(ctx).
		Where("migration_id = ?", migrationID).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// LatestByMigration retrieves the most recent event for a migration.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - *domain.EventRecord: most recent event, or nil if none exists.
//   - error: non-nil if the query fails.
func (r *EventRepository) LatestByMigration(ctx context.Context, migrationID string) (*domain.EventRecord, error) {
	var event domain.EventRecord
	err := r.db.WithContext(ctx).
		Where("migration_id = ?", migrationID).
		Order("created_at DESC").
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}
