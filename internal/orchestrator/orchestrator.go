// Package orchestrator drives a migration through its phases: shallow
// analysis, ownership verification, deep analysis, planning, and
// transformation. Each phase checks for a cached analysis record before
// doing work, so a re-entered migration skips everything already done.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheenhq/sitesmith/internal/crawler"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/lease"
	"github.com/sheenhq/sitesmith/internal/logger"
	"github.com/sheenhq/sitesmith/internal/notifier"
	"github.com/sheenhq/sitesmith/internal/repository"
)

// SiteCrawler fetches and summarizes source site pages.
// *crawler.Client is the production implementation.
type SiteCrawler interface {
	FetchShallow(ctx context.Context, rawURL string) (*domain.PageSummary, error)
	FetchDeep(ctx context.Context, rawURL string, maxPages int) (*crawler.CrawlResult, error)
}

// PlanService produces validated rebuild plans.
// *planner.Service is the production implementation.
type PlanService interface {
	GeneratePlan(ctx context.Context, pages []domain.PageSummary, brief domain.UserBrief) (*domain.RebuildPlan, error)
}

// ProjectGenerator turns plans into stored projects.
// *generator.Service is the production implementation.
type ProjectGenerator interface {
	Generate(ctx context.Context, m *domain.Migration, plan *domain.RebuildPlan) (*domain.TransformationResult, error)
}

// ErrLeaseHeld is returned when another worker holds the migration lease.
// The job goes back on the queue and is retried after backoff.
var ErrLeaseHeld = errors.New("migration lease held by another worker")

// errLeaseLost is returned when the lease could not be renewed mid-run.
var errLeaseLost = errors.New("migration lease lost during run")

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Migrations *repository.MigrationRepository
	Analyses   *repository.AnalysisRepository
	Events     *repository.EventRepository
	Mappings   *repository.URLMappingRepository
	Leases     *lease.Manager
	Crawler    SiteCrawler
	Planner    PlanService
	Generator  ProjectGenerator
	Notify     notifier.Notifier
	// MaxPages bounds the deep crawl.
	MaxPages int
}

// Orchestrator executes migration pipelines.
type Orchestrator struct {
	deps Deps
}

// New creates an orchestrator.
// Parameters:
//   - deps: repositories, lease manager, and phase services.
// Returns:
//   - *Orchestrator: initialized orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.MaxPages <= 0 {
		deps.MaxPages = 50
	}
	return &Orchestrator{deps: deps}
}

// Run advances a migration as far as it can go under one lease: to the
// verification pause, to completion, or to a failure. Transient failures are
// returned to the caller for retry; validation and security failures mark
// the migration failed and return nil.
// Parameters:
//   - ctx: context for cancellation.
//   - migrationID: migration to advance.
//   - workerID: identity used for the lease claim.
// Returns:
//   - error: non-nil only for retryable conditions.
func (o *Orchestrator) Run(ctx context.Context, migrationID, workerID string) error {
	ctx = logger.SetMigrationID(ctx, migrationID)
	ctx = logger.SetWorkerID(ctx, workerID)

	claimed, err := o.deps.Leases.Claim(ctx, migrationID, workerID)
	if err != nil {
		return fmt.Errorf("failed to claim lease: %w", err)
	}
	if !claimed {
		logger.CtxInfo(ctx, "Lease for migration %s held elsewhere, backing off", migrationID)
		return ErrLeaseHeld
	}
	defer func() {
		if err := o.deps.Leases.Release(context.WithoutCancel(ctx), migrationID); err != nil {
			logger.CtxError(ctx, "Failed to release lease for migration %s: %v", migrationID, err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := o.deps.Migrations.GetByID(ctx, migrationID)
		if err != nil {
			return err
		}
		if m.Status.IsTerminal() {
			logger.CtxInfo(ctx, "Migration %s already %s, nothing to do", migrationID, m.Status)
			return nil
		}

		renewed, err := o.deps.Leases.Renew(ctx, migrationID, workerID)
		if err != nil {
			return err
		}
		if !renewed {
			return errLeaseLost
		}

		phaseCtx := logger.SetPhase(ctx, string(m.Status))

		switch m.Status {
		case domain.StatusQueued, domain.StatusShallowAnalysis:
			if err := o.runShallow(phaseCtx, m); err != nil {
				return o.fail(phaseCtx, m, "shallow_analysis", err)
			}
			// The next iteration pauses unless ownership is already verified,
			// which happens on a re-run after a reset.

		case domain.StatusAwaitingVerification:
			if !m.Verified {
				logger.CtxInfo(phaseCtx, "Migration %s awaiting ownership verification", migrationID)
				return nil
			}
			if err := o.deps.Migrations.UpdateStatus(phaseCtx, m.ID, domain.StatusDeepAnalysis); err != nil {
				return err
			}

		case domain.StatusDeepAnalysis:
			if err := o.runDeep(phaseCtx, m); err != nil {
				return o.fail(phaseCtx, m, "deep_analysis", err)
			}

		case domain.StatusPlanning:
			if err := o.runPlanning(phaseCtx, m); err != nil {
				return o.fail(phaseCtx, m, "planning", err)
			}

		case domain.StatusTransformation:
			if err := o.runTransformation(phaseCtx, m); err != nil {
				return o.fail(phaseCtx, m, "transformation", err)
			}
			return nil

		default:
			return fmt.Errorf("migration %s in unexpected status %q", migrationID, m.Status)
		}
	}
}

// fail routes a phase error: transient failures bubble up for the queue to
// retry, everything else marks the migration failed here and now.
func (o *Orchestrator) fail(ctx context.Context, m *domain.Migration, phase string, err error) error {
	classified := Classify(phase, err)
	if IsRetryable(classified) {
		logger.CtxWarn(ctx, "Phase %s failed for migration %s, will retry: %v", phase, m.ID, err)
		return classified
	}

	logger.CtxError(ctx, "Phase %s failed terminally for migration %s: %v", phase, m.ID, err)
	return o.FailTerminal(ctx, m.ID, classified.Code, classified.Err.Error())
}

// FailTerminal marks a migration failed and emits the failure event. It is
// also the path the queue takes when retry attempts are exhausted. A
// migration already in a terminal state is left untouched so the failure
// event fires at most once.
// Parameters:
//   - ctx: context for cancellation.
//   - migrationID: migration to fail.
//   - code: stable error code.
//   - message: human-readable cause.
// Returns:
//   - error: database failures only.
func (o *Orchestrator) FailTerminal(ctx context.Context, migrationID, code, message string) error {
	m, err := o.deps.Migrations.GetByID(ctx, migrationID)
	if err != nil {
		return err
	}
	if m.Status.IsTerminal() {
		return nil
	}

	if err := o.deps.Migrations.MarkFailed(ctx, migrationID, code, message); err != nil {
		return err
	}

	return o.emit(ctx, domain.EventFailed, &domain.ProgressPayload{
		MigrationID: migrationID,
		Phase:       string(m.Status),
		Message:     message,
		ErrorCode:   code,
	})
}

// emit appends the event row and only then pushes the notification, so
// observers can always reconcile a notification against the event log.
func (o *Orchestrator) emit(ctx context.Context, eventType domain.EventType, payload *domain.ProgressPayload) error {
	event, err := domain.NewEventRecord(eventType, payload)
	if err != nil {
		return err
	}
	if err := o.deps.Events.Append(ctx, event); err != nil {
		return err
	}
	o.deps.Notify.Notify(ctx, event)
	return nil
}

func (o *Orchestrator) runShallow(ctx context.Context, m *domain.Migration) error {
	if m.Status == domain.StatusQueued {
		if err := o.deps.Migrations.UpdateStatus(ctx, m.ID, domain.StatusShallowAnalysis); err != nil {
			return err
		}
		if err := o.emit(ctx, domain.EventProgress, &domain.ProgressPayload{
			MigrationID:     m.ID,
			Phase:           string(domain.StatusShallowAnalysis),
			ProgressPercent: 10,
			Message:         "Analyzing source site",
		}); err != nil {
			return err
		}
	}

	record, err := o.deps.Analyses.Latest(ctx, m.ID, domain.AnalysisPreliminary)
	if err != nil {
		return err
	}
	if record == nil {
		page, err := o.deps.Crawler.FetchShallow(ctx, m.SourceURL)
		if err != nil {
			return classifyFetch(err)
		}
		record, err = domain.NewAnalysisRecord(m.ID, domain.AnalysisPreliminary, &domain.ShallowAnalysis{
			Page:      *page,
			FetchedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := o.deps.Analyses.Append(ctx, record); err != nil {
			return err
		}
	} else {
		logger.CtxInfo(ctx, "Preliminary analysis already recorded for migration %s, skipping fetch", m.ID)
	}

	if err := o.deps.Migrations.UpdateStatus(ctx, m.ID, domain.StatusAwaitingVerification); err != nil {
		return err
	}
	return o.emit(ctx, domain.EventProgress, &domain.ProgressPayload{
		MigrationID:     m.ID,
		Phase:           string(domain.StatusAwaitingVerification),
		ProgressPercent: 25,
		Message:         "Preliminary analysis complete, awaiting ownership verification",
	})
}

// classifyFetch keeps security blocks classifiable and marks everything else
// a retryable fetch failure.
func classifyFetch(err error) error {
	if errors.Is(err, crawler.ErrBlocked) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &PipelineError{Category: CategoryTransient, Code: CodeFetchFailed, Err: err}
}

func (o *Orchestrator) runDeep(ctx context.Context, m *domain.Migration) error {
	record, err := o.deps.Analyses.Latest(ctx, m.ID, domain.AnalysisDetailed)
	if err != nil {
		return err
	}
	if record == nil {
		result, err := o.deps.Crawler.FetchDeep(ctx, m.SourceURL, o.deps.MaxPages)
		if err != nil {
			return classifyFetch(err)
		}
		record, err = domain.NewAnalysisRecord(m.ID, domain.AnalysisDetailed, &domain.DeepAnalysis{
			Pages:     result.Pages,
			AssetURLs: result.AssetURLs,
			PageCount: len(result.Pages),
			Truncated: result.Truncated,
		})
		if err != nil {
			return err
		}
		if err := o.deps.Analyses.Append(ctx, record); err != nil {
			return err
		}
	} else {
		logger.CtxInfo(ctx, "Detailed analysis already recorded for migration %s, skipping crawl", m.ID)
	}

	if err := o.deps.Migrations.UpdateStatus(ctx, m.ID, domain.StatusPlanning); err != nil {
		return err
	}
	return o.emit(ctx, domain.EventProgress, &domain.ProgressPayload{
		MigrationID:     m.ID,
		Phase:           string(domain.StatusPlanning),
		ProgressPercent: 50,
		Message:         "Deep analysis complete, generating rebuild plan",
	})
}

func (o *Orchestrator) runPlanning(ctx context.Context, m *domain.Migration) error {
	record, err := o.deps.Analyses.Latest(ctx, m.ID, domain.AnalysisPlanning)
	if err != nil {
		return err
	}

	var plan *domain.RebuildPlan
	freshPlan := record == nil
	if record == nil {
		deepRecord, err := o.deps.Analyses.Latest(ctx, m.ID, domain.AnalysisDetailed)
		if err != nil {
			return err
		}
		if deepRecord == nil {
			return fmt.Errorf("planning requires a detailed analysis for migration %s", m.ID)
		}
		deep, err := deepRecord.Deep()
		if err != nil {
			return err
		}

		plan, err = o.deps.Planner.GeneratePlan(ctx, deep.Pages, m.Brief)
		if err != nil {
			return err
		}

		record, err = domain.NewAnalysisRecord(m.ID, domain.AnalysisPlanning, plan)
		if err != nil {
			return err
		}
		if err := o.deps.Analyses.Append(ctx, record); err != nil {
			return err
		}
	} else {
		logger.CtxInfo(ctx, "Rebuild plan already recorded for migration %s, skipping reasoning call", m.ID)
		plan, err = record.Plan()
		if err != nil {
			return err
		}
	}

	if err := o.persistMappings(ctx, m.ID, plan, freshPlan); err != nil {
		return err
	}

	if err := o.deps.Migrations.UpdateStatus(ctx, m.ID, domain.StatusTransformation); err != nil {
		return err
	}
	return o.emit(ctx, domain.EventProgress, &domain.ProgressPayload{
		MigrationID:     m.ID,
		Phase:           string(domain.StatusTransformation),
		ProgressPercent: 75,
		Message:         "Rebuild plan ready, generating project",
	})
}

// persistMappings derives URL mappings from the plan: one per planned page
// and one per explicit redirect. When the plan was just generated the
// mappings are replaced wholesale, so a forced retry that supersedes an
// earlier plan also supersedes its mappings. When the plan came from a
// recorded analysis, existing mappings are kept and a resumed planning
// phase never duplicates rows.
func (o *Orchestrator) persistMappings(ctx context.Context, migrationID string, plan *domain.RebuildPlan, fresh bool) error {
	if !fresh {
		count, err := o.deps.Mappings.CountByMigration(ctx, migrationID)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
	}

	mappings := make([]domain.URLMapping, 0, len(plan.Pages)+len(plan.Redirects))
	for _, page := range plan.Pages {
		mappings = append(mappings, domain.URLMapping{
			ID:           uuid.New().String(),
			MigrationID:  migrationID,
			SourceURL:    page.SourceURL,
			TargetRoute:  page.Route,
			RedirectCode: 301,
			Reason:       "page rebuilt at new route",
		})
	}
	for _, redirect := range plan.Redirects {
		mappings = append(mappings, domain.URLMapping{
			ID:           uuid.New().String(),
			MigrationID:  migrationID,
			SourceURL:    redirect.SourceURL,
			TargetRoute:  redirect.TargetRoute,
			RedirectCode: redirect.RedirectCode,
			Reason:       redirect.Reason,
		})
	}

	if fresh {
		return o.deps.Mappings.ReplaceForMigration(ctx, migrationID, mappings)
	}
	return o.deps.Mappings.CreateBatch(ctx, mappings)
}

func (o *Orchestrator) runTransformation(ctx context.Context, m *domain.Migration) error {
	record, err := o.deps.Analyses.Latest(ctx, m.ID, domain.AnalysisTransformation)
	if err != nil {
		return err
	}

	var result *domain.TransformationResult
	if record != nil && m.TargetProjectID != nil {
		result, err = record.Transformation()
		if err != nil {
			return err
		}
		logger.CtxInfo(ctx, "Transformation already recorded for migration %s, skipping generation", m.ID)
	} else {
		planRecord, err := o.deps.Analyses.Latest(ctx, m.ID, domain.AnalysisPlanning)
		if err != nil {
			return err
		}
		if planRecord == nil {
			return fmt.Errorf("transformation requires a rebuild plan for migration %s", m.ID)
		}
		plan, err := planRecord.Plan()
		if err != nil {
			return err
		}

		result, err = o.deps.Generator.Generate(ctx, m, plan)
		if err != nil {
			return &PipelineError{Category: CategoryTransient, Code: CodeStorageFailed, Err: err}
		}

		if record == nil {
			record, err = domain.NewAnalysisRecord(m.ID, domain.AnalysisTransformation, result)
			if err != nil {
				return err
			}
			if err := o.deps.Analyses.Append(ctx, record); err != nil {
				return err
			}
		}
	}

	if err := o.deps.Migrations.MarkCompleted(ctx, m.ID); err != nil {
		return err
	}
	return o.emit(ctx, domain.EventCompleted, &domain.ProgressPayload{
		MigrationID:     m.ID,
		Phase:           string(domain.StatusCompleted),
		ProgressPercent: 100,
		Message:         "Migration complete",
		TargetProjectID: result.ProjectID,
	})
}
