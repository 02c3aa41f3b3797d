// Package lease grants exclusive, time-bounded ownership of a migration
// record to one worker. All coordination is built on a single-row conditional
// UPDATE, so correctness holds across independent worker processes with no
// external lock infrastructure.
package lease

import (
	"context"
	"time"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
)

// Manager performs lease operations against the migrations table.
type Manager struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewManager creates a lease manager.
// Parameters:
//   - db: GORM database handle.
//   - ttl: lease duration granted by Claim; generous to tolerate slow
//     external-service calls without false reclamation.
// Returns:
//   - *Manager: initialized manager.
func NewManager(db *gorm.DB, ttl time.Duration) *Manager {
	return &Manager{db: db, ttl: ttl}
}

// TTL returns the configured lease duration.
// Parameters: none.
// Returns:
//   - time.Duration: lease TTL.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Claim attempts to take the lease on a migration. The conditional update
// succeeds only if the lease is unset or already expired, which is what
// prevents two workers from executing the same migration concurrently.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: migration to claim.
//   - workerID: identity of the claiming worker.
// Returns:
//   - bool: true if the lease was acquired.
//   - error: non-nil if the update fails.
func (m *Manager) Claim(ctx context.Context, migrationID, workerID string) (bool, error) {
	now := time.Now()
	expires := now.Add(m.ttl)
	res := m.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ? AND (locked_by IS NULL OR lease_expires_at < ?)", migrationID, now).
		Updates(map[string]interface{}{
			"locked_by":        workerID,
			"locked_at":        &now,
			"lease_expires_at": &expires,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Renew extends the lease held by a worker. Long phases call this between
// external-service round trips.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: migration whose lease to renew.
//   - workerID: identity of the holding worker.
// Returns:
//   - bool: true if the lease was renewed; false if the worker no longer
//     holds it.
//   - error: non-nil if the update fails.
func (m *Manager) Renew(ctx context.Context, migrationID, workerID string) (bool, error) {
	expires := time.Now().Add(m.ttl)
	res := m.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ? AND locked_by = ?", migrationID, workerID).
		Update("lease_expires_at", &expires)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Release clears the lock fields unconditionally. Called from the worker's
// guaranteed-cleanup path regardless of success or failure.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: migration whose lease to release.
// Returns:
//   - error: non-nil if the update fails.
func (m *Manager) Release(ctx context.Context, migrationID string) error {
	return m.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ?", migrationID).
		Updates(map[string]interface{}{
			"locked_by":        nil,
			"locked_at":        nil,
			"lease_expires_at": nil,
		}).Error
}

// SweepStalled finds migrations whose lease expired while still in a
// non-terminal status and marks them failed with a stalled error. This is the
// watchdog that reclaims jobs lost to crashed workers. A migration whose
// lease is renewed between the scan and the per-row update is skipped and
// not reported.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Migration: the migrations that were marked stalled.
//   - error: non-nil if the sweep fails.
func (m *Manager) SweepStalled(ctx context.Context) ([]domain.Migration, error) {
	now := time.Now()
	var expired []domain.Migration
	err := m.db.WithContext(ctx).
		Where("lease_expires_at IS NOT NULL AND lease_expires_at < ? AND status NOT IN ?", now, []domain.MigrationStatus{
			domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
		}).
		Find(&expired).Error
	if err != nil {
		return nil, err
	}

	swept := make([]domain.Migration, 0, len(expired))
	for i := range expired {
		stalled, err := m.sweepOne(ctx, expired[i].ID, now)
		if err != nil {
			return nil, err
		}
		if stalled {
			swept = append(swept, expired[i])
		}
	}
	return swept, nil
}

// sweepOne marks a single migration stalled. The update re-checks the lease
// expiry, so a lease renewed after the scan snapshot wins the race and the
// migration stays live.
func (m *Manager) sweepOne(ctx context.Context, migrationID string, now time.Time) (bool, error) {
	res := m.db.WithContext(ctx).Model(&domain.Migration{}).
		Where("id = ? AND lease_expires_at < ?", migrationID, now).
		Updates(map[string]interface{}{
			"status":           domain.StatusFailed,
			"error_code":       "stalled",
			"error_message":    "lease expired while migration was in progress",
			"locked_by":        nil,
			"locked_at":        nil,
			"lease_expires_at": nil,
			"completed_at":     &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
