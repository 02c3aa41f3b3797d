package generator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// memoryStorage is an in-memory ObjectStorage used to observe uploads.
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.uploads++
	return nil
}

func (m *memoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) GetURL(key string) string { return "https://files.test/" + key }

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func testPlan() *domain.RebuildPlan {
	return &domain.RebuildPlan{
		Pages: []domain.PlannedPage{
			{
				SourceURL: "https://example.com/",
				Route:     "/",
				Title:     "Acme",
				Components: []domain.PlannedComponent{
					{Type: "hero", Role: "main hero", Description: "welcome banner", Attributes: map[string]string{"heading": "Acme Widgets"}},
					{Type: "feature_grid", Role: "product features"},
					{Type: "hero", Role: "secondary hero"},
				},
			},
			{
				SourceURL: "https://example.com/about",
				Route:     "/about/team",
				Title:     "Team",
				Components: []domain.PlannedComponent{
					{Type: "text_section", Role: "team bios"},
				},
			},
		},
		Routes: []string{"/", "/about/team"},
		Redirects: []domain.PlannedRedirect{
			{SourceURL: "https://example.com/old-about", TargetRoute: "/about/team", RedirectCode: 301},
		},
		Design: domain.DesignSummary{
			Palette:      []string{"#102030", "#ffffff"},
			FontHeading:  "Inter",
			SpacingScale: []int{4, 8, 16},
		},
	}
}

func TestRouteToPagePath(t *testing.T) {
	tests := []struct {
		route string
		want  string
	}{
		{"/", "src/pages/index.tsx"},
		{"/about", "src/pages/about.tsx"},
		{"/about/team", "src/pages/about/team.tsx"},
		{"/pricing/", "src/pages/pricing.tsx"},
	}
	for _, tt := range tests {
		if got := routeToPagePath(tt.route); got != tt.want {
			t.Errorf("routeToPagePath(%q) = %q, want %q", tt.route, got, tt.want)
		}
	}
}

func TestComponentName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hero", "Hero"},
		{"feature_grid", "FeatureGrid"},
		{"cta_banner", "CtaBanner"},
		{"faq", "Faq"},
	}
	for _, tt := range tests {
		if got := componentName(tt.in); got != tt.want {
			t.Errorf("componentName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderProject(t *testing.T) {
	files, err := renderProject("acme-rebuild", testPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byPath := map[string]renderedFile{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	for _, path := range []string{
		"package.json",
		"site.config.json",
		"src/styles/tokens.css",
		"src/pages/index.tsx",
		"src/pages/about/team.tsx",
	} {
		if _, ok := byPath[path]; !ok {
			t.Errorf("expected rendered file %s", path)
		}
	}
	if len(files) != 5 {
		t.Errorf("expected 5 files, got %d", len(files))
	}

	cfg := string(byPath["site.config.json"].Content)
	if !strings.Contains(cfg, `"/about/team"`) {
		t.Error("site config missing planned route")
	}
	if !strings.Contains(cfg, `"statusCode": 301`) {
		t.Error("site config missing redirect status code")
	}

	tokens := string(byPath["src/styles/tokens.css"].Content)
	if !strings.Contains(tokens, "--color-1: #102030;") {
		t.Error("theme tokens missing palette entry")
	}
	if !strings.Contains(tokens, "--font-heading: Inter;") {
		t.Error("theme tokens missing heading font")
	}
	if !strings.Contains(tokens, "--space-3: 16px;") {
		t.Error("theme tokens missing spacing step")
	}

	index := byPath["src/pages/index.tsx"]
	content := string(index.Content)
	if !strings.Contains(content, "// Rebuilt from https://example.com/") {
		t.Error("page module missing source annotation")
	}
	if !strings.Contains(content, `<Hero heading="Acme Widgets" />`) {
		t.Errorf("page module missing hero with attributes:\n%s", content)
	}
	if !strings.Contains(content, "<FeatureGrid />") {
		t.Error("page module missing feature grid")
	}
	// Repeated component types are pending once.
	if len(index.Pending) != 2 {
		t.Errorf("expected 2 pending component types, got %v", index.Pending)
	}

	// Rendering is deterministic.
	again, err := renderProject("acme-rebuild", testPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range files {
		if !bytes.Equal(files[i].Content, again[i].Content) {
			t.Errorf("file %s not deterministic", files[i].Path)
		}
	}
}

func TestProjectNameFromSource(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/", "example-com-rebuild"},
		{"https://blog.acme.io", "blog-acme-io-rebuild"},
		{"not a url", "rebuilt-site"},
	}
	for _, tt := range tests {
		if got := projectNameFromSource(tt.in); got != tt.want {
			t.Errorf("projectNameFromSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateUploadsAndBindsProject(t *testing.T) {
	db := testDB(t)
	store := newMemoryStorage()
	migrations := repository.NewMigrationRepository(db)
	projects := repository.NewProjectRepository(db)
	svc := New(store, projects, migrations)
	ctx := context.Background()

	migration := &domain.Migration{
		ID:        "mig-1",
		SourceURL: "https://www.example.com/",
		UserID:    "user-1",
		Status:    domain.StatusTransformation,
	}
	if err := migrations.Create(ctx, migration); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Generate(ctx, migration, testPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FileCount != 5 {
		t.Errorf("expected 5 files, got %d", result.FileCount)
	}
	if store.uploads != 5 {
		t.Errorf("expected 5 uploads, got %d", store.uploads)
	}

	project, err := projects.GetByMigration(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project == nil {
		t.Fatal("expected project recorded")
	}
	if project.ID != result.ProjectID {
		t.Errorf("project id mismatch: %s vs %s", project.ID, result.ProjectID)
	}
	if project.Name != "example-com-rebuild" {
		t.Errorf("unexpected project name %s", project.Name)
	}
	if project.Framework != "nextjs" {
		t.Errorf("unexpected framework %s", project.Framework)
	}
	for _, file := range project.Manifest {
		wantKey := fmt.Sprintf("projects/%s/%s", project.ID, file.Path)
		if file.StorageKey != wantKey {
			t.Errorf("manifest key %s, want %s", file.StorageKey, wantKey)
		}
		exists, err := store.Exists(ctx, file.StorageKey)
		if err != nil || !exists {
			t.Errorf("expected object %s to exist", file.StorageKey)
		}
	}

	updated, err := migrations.GetByID(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.TargetProjectID == nil || *updated.TargetProjectID != result.ProjectID {
		t.Errorf("expected target project %s, got %v", result.ProjectID, updated.TargetProjectID)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	db := testDB(t)
	store := newMemoryStorage()
	migrations := repository.NewMigrationRepository(db)
	projects := repository.NewProjectRepository(db)
	svc := New(store, projects, migrations)
	ctx := context.Background()

	migration := &domain.Migration{
		ID:        "mig-1",
		SourceURL: "https://example.com/",
		UserID:    "user-1",
		Status:    domain.StatusTransformation,
	}
	if err := migrations.Create(ctx, migration); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.Generate(ctx, migration, testPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	uploadsAfterFirst := store.uploads

	second, err := svc.Generate(ctx, migration, testPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ProjectID != first.ProjectID {
		t.Errorf("expected same project, got %s then %s", first.ProjectID, second.ProjectID)
	}
	if store.uploads != uploadsAfterFirst {
		t.Errorf("expected no new uploads on retry, got %d extra", store.uploads-uploadsAfterFirst)
	}
}
