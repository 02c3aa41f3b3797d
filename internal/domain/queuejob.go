package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// JobStatus represents the state of a queued job.
// Values include JobStatusQueued, JobStatusActive, JobStatusCompleted, and
// JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// QueueJob is one durable unit of work. Its ID is derived deterministically
// from the migration ID so that re-submitting a migration while a job is
// queued or active is a no-op rather than a duplicate.
type QueueJob struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	MigrationID string     `gorm:"type:text;not null;index:idx_queue_jobs_migration" json:"migration_id"`
	Status      JobStatus  `gorm:"type:text;index:idx_queue_jobs_status;default:queued" json:"status"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	MaxAttempts int        `gorm:"default:5" json:"max_attempts"`
	NextRunAt   time.Time  `gorm:"index:idx_queue_jobs_next_run" json:"next_run_at"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for QueueJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (QueueJob) TableName() string {
	return "queue_jobs"
}

// JobIDForMigration derives the deterministic job ID for a migration.
// Parameters:
//   - migrationID: migration the job belongs to.
// Returns:
//   - string: stable job identifier.
func JobIDForMigration(migrationID string) string {
	sum := sha1.Sum([]byte("migration-job:" + migrationID))
	return hex.EncodeToString(sum[:])
}
