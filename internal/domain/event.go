package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an event record.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// ProgressPayload is the structure carried by progress, completion, and
// failure events. The same payload is pushed to the notification channel
// after the event row is persisted.
type ProgressPayload struct {
	MigrationID     string `json:"migration_id"`
	Phase           string `json:"phase"`
	ProgressPercent int    `json:"progress_percent"`
	Message         string `json:"message"`
	TargetProjectID string `json:"target_project_id,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
}

// EventRecord is the append-only log of everything reported externally.
// Every notification pushed to observers has a corresponding event row
// written first. Rows are never updated or deleted.
type EventRecord struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	MigrationID string    `gorm:"type:text;not null;index:idx_events_migration" json:"migration_id"`
	Type        EventType `gorm:"type:text;not null" json:"type"`
	Payload     string    `gorm:"type:text" json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for EventRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (EventRecord) TableName() string {
	return "event_records"
}

// NewEventRecord builds an event record carrying a progress payload.
// Parameters:
//   - eventType: event classification.
//   - payload: progress payload to encode.
// Returns:
//   - *EventRecord: record with the payload JSON-encoded.
//   - error: non-nil if encoding fails.
func NewEventRecord(eventType EventType, payload *ProgressPayload) (*EventRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventRecord{
		ID:          uuid.New().String(),
		MigrationID: payload.MigrationID,
		Type:        eventType,
		Payload:     string(data),
		CreatedAt:   time.Now(),
	}, nil
}

// DecodePayload decodes the event's progress payload.
// Parameters: none.
// Returns:
//   - *ProgressPayload: decoded payload.
//   - error: non-nil if decoding fails.
func (e *EventRecord) DecodePayload() (*ProgressPayload, error) {
	var out ProgressPayload
	if err := json.Unmarshal([]byte(e.Payload), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
