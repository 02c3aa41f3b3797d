package domain

import "time"

// URLMapping redirects one source URL to a route in the generated project.
// Rows are created in bulk during planning and immutable afterwards.
type URLMapping struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	MigrationID  string    `gorm:"type:text;not null;index:idx_url_mappings_migration" json:"migration_id"`
	SourceURL    string    `gorm:"type:text;not null" json:"source_url"`
	TargetRoute  string    `gorm:"type:text;not null" json:"target_route"`
	RedirectCode int       `gorm:"default:301" json:"redirect_code"`
	Reason       string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for URLMapping.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (URLMapping) TableName() string {
	return "url_mappings"
}
