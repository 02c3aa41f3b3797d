package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalysisType identifies which pipeline phase produced an analysis record.
// The set is fixed; adding a value requires a matching idempotency check in
// the orchestrator.
type AnalysisType string

const (
	AnalysisPreliminary    AnalysisType = "preliminary"
	AnalysisDetailed       AnalysisType = "detailed"
	AnalysisPlanning       AnalysisType = "planning"
	AnalysisTransformation AnalysisType = "transformation"
)

// PageSummary is the condensed representation of a crawled page. Summaries
// are what gets sent to the reasoning service, never raw markup.
type PageSummary struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Headings     []string `json:"headings,omitempty"`
	LinkCount    int      `json:"link_count"`
	ImageCount   int      `json:"image_count"`
	FormCount    int      `json:"form_count"`
	InboundLinks int      `json:"inbound_links"`
}

// ShallowAnalysis is the payload of a preliminary analysis record: the root
// document only, fetched before ownership verification.
type ShallowAnalysis struct {
	Page      PageSummary `json:"page"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// DeepAnalysis is the payload of a detailed analysis record: the bounded
// same-origin crawl performed after verification.
type DeepAnalysis struct {
	Pages     []PageSummary `json:"pages"`
	AssetURLs []string      `json:"asset_urls,omitempty"`
	PageCount int           `json:"page_count"`
	Truncated bool          `json:"truncated"`
}

// PlannedComponent is one component in a page's rebuild breakdown.
type PlannedComponent struct {
	Type        string            `json:"type"`
	Role        string            `json:"role"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// PlannedPage maps a source page onto a target route with its component
// breakdown.
type PlannedPage struct {
	SourceURL  string             `json:"source_url"`
	Route      string             `json:"route"`
	Title      string             `json:"title"`
	Components []PlannedComponent `json:"components"`
}

// PlannedRedirect is a redirect the plan proposes for a source URL.
type PlannedRedirect struct {
	SourceURL    string `json:"source_url"`
	TargetRoute  string `json:"target_route"`
	RedirectCode int    `json:"redirect_code"`
	Reason       string `json:"reason,omitempty"`
}

// DesignSummary captures the design tokens extracted from the source site.
type DesignSummary struct {
	Palette      []string `json:"palette,omitempty"`
	FontHeading  string   `json:"font_heading,omitempty"`
	FontBody     string   `json:"font_body,omitempty"`
	SpacingScale []int    `json:"spacing_scale,omitempty"`
}

// RebuildPlan is the payload of a planning analysis record: the validated,
// structured output of the reasoning service.
type RebuildPlan struct {
	Pages     []PlannedPage     `json:"pages"`
	Routes    []string          `json:"routes"`
	Redirects []PlannedRedirect `json:"redirects,omitempty"`
	Design    DesignSummary     `json:"design"`
}

// TransformationResult is the payload of a transformation analysis record.
type TransformationResult struct {
	ProjectID string   `json:"project_id"`
	FileCount int      `json:"file_count"`
	Files     []string `json:"files"`
}

// AnalysisRecord caches the output of one expensive pipeline phase, keyed by
// (migration, type). Records are append-only; the most recent one per key is
// authoritative and its presence is the phase's idempotency signal.
type AnalysisRecord struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	MigrationID string       `gorm:"type:text;not null;index:idx_analyses_migration" json:"migration_id"`
	Type        AnalysisType `gorm:"type:text;not null;index:idx_analyses_migration" json:"type"`
	Data        string       `gorm:"type:text" json:"data"`
	Superseded  bool         `gorm:"default:false" json:"superseded"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TableName returns the database table name for AnalysisRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// NewAnalysisRecord builds an analysis record from a typed payload.
// Parameters:
//   - migrationID: owning migration ID.
//   - analysisType: phase type the payload belongs to.
//   - payload: typed payload struct matching analysisType.
// Returns:
//   - *AnalysisRecord: record with the payload JSON-encoded.
//   - error: non-nil if encoding fails.
func NewAnalysisRecord(migrationID string, analysisType AnalysisType, payload interface{}) (*AnalysisRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", analysisType, err)
	}
	return &AnalysisRecord{
		ID:          uuid.New().String(),
		MigrationID: migrationID,
		Type:        analysisType,
		Data:        string(data),
		CreatedAt:   time.Now(),
	}, nil
}

func (r *AnalysisRecord) decode(expected AnalysisType, out interface{}) error {
	if r.Type != expected {
		return fmt.Errorf("analysis record is %s, not %s", r.Type, expected)
	}
	if err := json.Unmarshal([]byte(r.Data), out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", expected, err)
	}
	return nil
}

// Shallow decodes the record as a preliminary payload.
// Parameters: none.
// Returns:
//   - *ShallowAnalysis: decoded payload.
//   - error: non-nil if the type does not match or decoding fails.
func (r *AnalysisRecord) Shallow() (*ShallowAnalysis, error) {
	var out ShallowAnalysis
	if err := r.decode(AnalysisPreliminary, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deep decodes the record as a detailed payload.
// Parameters: none.
// Returns:
//   - *DeepAnalysis: decoded payload.
//   - error: non-nil if the type does not match or decoding fails.
func (r *AnalysisRecord) Deep() (*DeepAnalysis, error) {
	var out DeepAnalysis
	if err := r.decode(AnalysisDetailed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Plan decodes the record as a planning payload.
// Parameters: none.
// Returns:
//   - *RebuildPlan: decoded payload.
//   - error: non-nil if the type does not match or decoding fails.
func (r *AnalysisRecord) Plan() (*RebuildPlan, error) {
	var out RebuildPlan
	if err := r.decode(AnalysisPlanning, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transformation decodes the record as a transformation payload.
// Parameters: none.
// Returns:
//   - *TransformationResult: decoded payload.
//   - error: non-nil if the type does not match or decoding fails.
func (r *AnalysisRecord) Transformation() (*TransformationResult, error) {
	var out TransformationResult
	if err := r.decode(AnalysisTransformation, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
