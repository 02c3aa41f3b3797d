// Package generator turns a validated rebuild plan into a stored project
// scaffold: framework config, theme tokens, and one page module per planned
// route, uploaded to object storage and recorded in the database.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/logger"
	"github.com/sheenhq/sitesmith/internal/repository"
	"github.com/sheenhq/sitesmith/internal/storage"
)

// Service handles project generation from rebuild plans.
type Service struct {
	store      storage.ObjectStorage
	projects   *repository.ProjectRepository
	migrations *repository.MigrationRepository
	framework  string
}

// New creates a new generation service.
// Parameters:
//   - store: object storage for project files.
//   - projects: generated-project repository.
//   - migrations: migration repository, used to bind the project exactly once.
// Returns:
//   - *Service: initialized generation service.
func New(store storage.ObjectStorage, projects *repository.ProjectRepository, migrations *repository.MigrationRepository) *Service {
	return &Service{
		store:      store,
		projects:   projects,
		migrations: migrations,
		framework:  "nextjs",
	}
}

// Generate renders the project for a plan, uploads its files, and binds the
// resulting project to the migration. A migration that already has a target
// project returns the existing result without touching storage, so a retried
// transformation phase never produces a second project.
// Parameters:
//   - ctx: context for cancellation.
//   - migration: the migration being transformed.
//   - plan: validated rebuild plan.
// Returns:
//   - *domain.TransformationResult: project ID and file manifest.
//   - error: storage or database failures.
func (s *Service) Generate(ctx context.Context, migration *domain.Migration, plan *domain.RebuildPlan) (*domain.TransformationResult, error) {
	existing, err := s.projects.GetByMigration(ctx, migration.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing project: %w", err)
	}
	if existing != nil {
		logger.CtxInfo(ctx, "Migration already has generated project %s, skipping generation", existing.ID)
		return resultFromProject(existing), nil
	}

	projectID := uuid.New().String()
	projectName := projectNameFromSource(migration.SourceURL)

	files, err := renderProject(projectName, plan)
	if err != nil {
		return nil, err
	}

	manifest := make(domain.FileManifest, 0, len(files))
	for _, file := range files {
		key := fmt.Sprintf("projects/%s/%s", projectID, file.Path)
		if err := s.store.Upload(ctx, key, bytes.NewReader(file.Content), int64(len(file.Content)), file.ContentType); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", file.Path, err)
		}
		manifest = append(manifest, domain.ProjectFile{
			Path:              file.Path,
			StorageKey:        key,
			Size:              int64(len(file.Content)),
			PendingComponents: file.Pending,
		})
	}

	project := &domain.GeneratedProject{
		ID:          projectID,
		MigrationID: migration.ID,
		UserID:      migration.UserID,
		Name:        projectName,
		Framework:   s.framework,
		Manifest:    manifest,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to record generated project: %w", err)
	}

	if err := s.migrations.SetTargetProject(ctx, migration.ID, projectID); err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Generated project %s with %d files for migration %s", projectID, len(manifest), migration.ID)
	return resultFromProject(project), nil
}

func resultFromProject(project *domain.GeneratedProject) *domain.TransformationResult {
	files := make([]string, 0, len(project.Manifest))
	for _, file := range project.Manifest {
		files = append(files, file.Path)
	}
	return &domain.TransformationResult{
		ProjectID: project.ID,
		FileCount: len(project.Manifest),
		Files:     files,
	}
}

// projectNameFromSource derives a package-safe project name from the source
// site hostname.
func projectNameFromSource(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Hostname() == "" {
		return "rebuilt-site"
	}
	name := strings.ToLower(parsed.Hostname())
	name = strings.TrimPrefix(name, "www.")
	name = strings.ReplaceAll(name, ".", "-")
	return name + "-rebuild"
}
