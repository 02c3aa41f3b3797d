package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MigrationStatus represents the lifecycle state of a migration.
// Transitions are strictly forward except into failed or cancelled.
type MigrationStatus string

const (
	StatusQueued               MigrationStatus = "queued"
	StatusShallowAnalysis      MigrationStatus = "shallow_analysis"
	StatusAwaitingVerification MigrationStatus = "awaiting_verification"
	StatusDeepAnalysis         MigrationStatus = "deep_analysis"
	StatusPlanning             MigrationStatus = "planning"
	StatusTransformation       MigrationStatus = "transformation"
	StatusCompleted            MigrationStatus = "completed"
	StatusFailed               MigrationStatus = "failed"
	StatusCancelled            MigrationStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
// Parameters: none.
// Returns:
//   - bool: true for completed, failed, or cancelled.
func (s MigrationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// UserBrief captures optional user preferences supplied at request time.
// It is read-only input to planning and is never mutated afterwards.
type UserBrief struct {
	Goal            string   `json:"goal,omitempty"`             // "preserve" or "modernize"
	StylePreference string   `json:"style_preference,omitempty"` // free-form style notes
	PreserveURLs    string   `json:"preserve_urls,omitempty"`    // "strict", "relaxed"
	RiskAppetite    string   `json:"risk_appetite,omitempty"`    // "low", "medium", "high"
	Notes           []string `json:"notes,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation of the brief.
//   - error: non-nil if marshaling fails.
func (b UserBrief) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (b *UserBrief) Scan(value interface{}) error {
	if value == nil {
		*b = UserBrief{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan UserBrief")
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		*b = UserBrief{}
		return nil
	}
	return json.Unmarshal(bytes, b)
}

// Migration represents one migration attempt for a source website.
// The lock triple (LockedBy, LockedAt, LeaseExpiresAt) is either fully set or
// fully null; only the worker holding the lease may mutate the record.
type Migration struct {
	ID              string          `gorm:"type:text;primaryKey" json:"id"`
	SourceURL       string          `gorm:"type:text;not null" json:"source_url"`
	UserID          string          `gorm:"type:text;not null;index:idx_migrations_user" json:"user_id"`
	Status          MigrationStatus `gorm:"type:text;index:idx_migrations_status;default:queued" json:"status"`
	Verified        bool            `gorm:"default:false" json:"verified"`
	Brief           UserBrief       `gorm:"type:text" json:"brief"`
	LockedBy        *string         `gorm:"type:text" json:"locked_by,omitempty"`
	LockedAt        *time.Time      `json:"locked_at,omitempty"`
	LeaseExpiresAt  *time.Time      `gorm:"index:idx_migrations_lease" json:"lease_expires_at,omitempty"`
	TargetProjectID *string         `gorm:"type:text" json:"target_project_id,omitempty"`
	ErrorCode       string          `gorm:"type:text" json:"error_code,omitempty"`
	ErrorMessage    string          `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Migration.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Migration) TableName() string {
	return "migrations"
}
