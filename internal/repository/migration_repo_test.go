package repository

import (
	"context"
	"testing"

	"github.com/sheenhq/sitesmith/internal/domain"
)

func newMigration(id string) *domain.Migration {
	return &domain.Migration{
		ID:        id,
		SourceURL: "https://example.com",
		UserID:    "user-1",
		Status:    domain.StatusQueued,
	}
}

func TestSetTargetProjectOnce(t *testing.T) {
	repo := NewMigrationRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newMigration("mig-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.SetTargetProject(ctx, "mig-1", "proj-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Re-stamping the same project is allowed for idempotent retries.
	if err := repo.SetTargetProject(ctx, "mig-1", "proj-a"); err != nil {
		t.Errorf("expected same-project stamp to succeed, got %v", err)
	}

	// A different project must be rejected.
	if err := repo.SetTargetProject(ctx, "mig-1", "proj-b"); err == nil {
		t.Error("expected conflicting project stamp to fail")
	}

	m, err := repo.GetByID(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TargetProjectID == nil || *m.TargetProjectID != "proj-a" {
		t.Errorf("expected target project proj-a, got %v", m.TargetProjectID)
	}
}

func TestCancelOnlyNonTerminal(t *testing.T) {
	repo := NewMigrationRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newMigration("mig-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := repo.Cancel(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancel of queued migration to succeed")
	}

	// Cancelling again is a no-op.
	cancelled, err = repo.Cancel(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled {
		t.Error("expected cancel of cancelled migration to report false")
	}

	if err := repo.Create(ctx, newMigration("mig-2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkCompleted(ctx, "mig-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancelled, err = repo.Cancel(ctx, "mig-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled {
		t.Error("expected cancel of completed migration to report false")
	}
}

func TestResetOnlyFailed(t *testing.T) {
	repo := NewMigrationRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newMigration("mig-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reset, err := repo.Reset(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset {
		t.Error("expected reset of queued migration to report false")
	}

	if err := repo.MarkFailed(ctx, "mig-1", "fetch_failed", "network down"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reset, err = repo.Reset(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reset {
		t.Fatal("expected reset of failed migration to succeed")
	}

	m, err := repo.GetByID(ctx, "mig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != domain.StatusQueued {
		t.Errorf("expected status queued after reset, got %s", m.Status)
	}
	if m.ErrorCode != "" || m.ErrorMessage != "" {
		t.Errorf("expected error fields cleared, got %q / %q", m.ErrorCode, m.ErrorMessage)
	}
	if m.CompletedAt != nil {
		t.Error("expected completed_at cleared")
	}
}
