package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ProjectFile describes one generated file: its path inside the project and
// the storage key the contents were uploaded under.
type ProjectFile struct {
	Path              string   `json:"path"`
	StorageKey        string   `json:"storage_key"`
	Size              int64    `json:"size"`
	PendingComponents []string `json:"pending_components,omitempty"`
}

// FileManifest is the list of files making up a generated project.
type FileManifest []ProjectFile

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation of the manifest.
//   - error: non-nil if marshaling fails.
func (m FileManifest) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	data, err := json.Marshal(m)
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
func (m *FileManifest) Scan(value interface{}) error {
	if value == nil {
		*m = FileManifest{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FileManifest")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// GeneratedProject is the project produced by the transformation phase. The
// migration hands it off to deployment by identifier only.
type GeneratedProject struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	MigrationID string       `gorm:"type:text;not null;uniqueIndex:idx_projects_migration" json:"migration_id"`
	UserID      string       `gorm:"type:text;not null;index:idx_projects_user" json:"user_id"`
	Name        string       `gorm:"type:text" json:"name"`
	Framework   string       `gorm:"type:text" json:"framework"`
	Manifest    FileManifest `gorm:"type:text" json:"manifest"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TableName returns the database table name for GeneratedProject.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (GeneratedProject) TableName() string {
	return "generated_projects"
}
