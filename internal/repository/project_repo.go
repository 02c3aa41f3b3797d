package repository

import (
	"context"

	"github.com/sheenhq/sitesmith/internal/domain"
	"gorm.io/gorm"
)

// ProjectRepository handles generated project records.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProjectRepository: repository instance bound to db.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new generated project record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - project: project record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.GeneratedProject) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID retrieves a generated project by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
// Returns:
//   - *domain.GeneratedProject: project record if found.
//   - error: non-nil if lookup fails.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.GeneratedProject, error) {
	var project domain.GeneratedProject
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByMigration retrieves the project generated for a migration, if any.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - migrationID: owning migration ID.
// Returns:
//   - *domain.GeneratedProject: project record, or nil if none exists.
//   - error: non-nil if the query fails.
func (r *ProjectRepository) GetByMigration(ctx context.Context, migrationID string) (*domain.GeneratedProject, error) {
	var project domain.GeneratedProject
	err := r.db.WithContext(ctx).First(&project, "migration_id = ?", migrationID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}
