package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/logger"
	"github.com/sheenhq/sitesmith/internal/notifier"
	"github.com/sheenhq/sitesmith/internal/queue"
	"github.com/sheenhq/sitesmith/internal/repository"
)

// MigrationHandler handles migration lifecycle endpoints.
type MigrationHandler struct {
	migrations *repository.MigrationRepository
	events     *repository.EventRepository
	mappings   *repository.URLMappingRepository
	jobs       *repository.JobRepository
	analyses   *repository.AnalysisRepository
	queue      *queue.Service
	notify     notifier.Notifier
}

// NewMigrationHandler creates a new migration handler.
// Parameters:
//   - migrations, events, mappings, jobs, analyses: repositories.
//   - queueService: durable job queue.
//   - notify: lifecycle event notifier.
// Returns:
//   - *MigrationHandler: initialized handler.
func NewMigrationHandler(
	migrations *repository.MigrationRepository,
	events *repository.EventRepository,
	mappings *repository.URLMappingRepository,
	jobs *repository.JobRepository,
	analyses *repository.AnalysisRepository,
	queueService *queue.Service,
	notify notifier.Notifier,
) *MigrationHandler {
	return &MigrationHandler{
		migrations: migrations,
		events:     events,
		mappings:   mappings,
		jobs:       jobs,
		analyses:   analyses,
		queue:      queueService,
		notify:     notify,
	}
}

// CreateMigrationRequest is the body of POST /api/v1/migrations.
type CreateMigrationRequest struct {
	SourceURL string           `json:"source_url" binding:"required"`
	UserID    string           `json:"user_id" binding:"required"`
	Brief     domain.UserBrief `json:"brief"`
}

// Create handles POST /api/v1/migrations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Create(c *gin.Context) {
	var req CreateMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	parsed, err := url.Parse(req.SourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Hostname() == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "source_url must be an absolute http or https URL",
		})
		return
	}

	m := &domain.Migration{
		ID:        uuid.New().String(),
		SourceURL: req.SourceURL,
		UserID:    req.UserID,
		Status:    domain.StatusQueued,
		Brief:     req.Brief,
	}
	if err := h.migrations.Create(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create migration: " + err.Error(),
		})
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), m.ID)
	if err != nil {
		// The migration row exists but no job will ever pick it up. Mark it
		// failed so the retry endpoint can recover it.
		if markErr := h.migrations.MarkFailed(c.Request.Context(), m.ID, "enqueue_failed", err.Error()); markErr != nil {
			logger.CtxError(c.Request.Context(), "Failed to mark unenqueued migration %s failed: %v", m.ID, markErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":        "Failed to enqueue migration: " + err.Error(),
			"migration_id": m.ID,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"migration": m,
		"job_id":    job.ID,
	})
}

// Get handles GET /api/v1/migrations/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Get(c *gin.Context) {
	m, err := h.migrations.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Migration not found",
		})
		return
	}

	resp := gin.H{"migration": m}
	if job, err := h.jobs.GetByMigration(c.Request.Context(), m.ID); err == nil && job != nil {
		resp["job"] = job
	}

	c.JSON(http.StatusOK, resp)
}

// List handles GET /api/v1/migrations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'user_id' is required",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	migrations, err := h.migrations.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list migrations: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"migrations": migrations,
		"total":      len(migrations),
	})
}

// Verify handles POST /api/v1/migrations/:id/verify. Marking ownership
// verified redispatches the job so the pipeline resumes from deep analysis.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	m, err := h.migrations.GetByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Migration not found",
		})
		return
	}
	if m.Status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Migration is already " + string(m.Status),
		})
		return
	}

	if err := h.migrations.SetVerified(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to verify migration: " + err.Error(),
		})
		return
	}

	if _, err := h.queue.Enqueue(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to redispatch migration: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "verified",
	})
}

// Cancel handles POST /api/v1/migrations/:id/cancel. Cancellation is
// effective at the next phase boundary; the in-flight phase is not
// interrupted.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	m, err := h.migrations.GetByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Migration not found",
		})
		return
	}

	cancelled, err := h.migrations.Cancel(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel migration: " + err.Error(),
		})
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Migration is already " + string(m.Status),
		})
		return
	}

	event, err := domain.NewEventRecord(domain.EventCancelled, &domain.ProgressPayload{
		MigrationID: id,
		Phase:       string(m.Status),
		Message:     "Migration cancelled by user",
		ErrorCode:   "cancelled",
	})
	if err == nil {
		// Event row first, notification after.
		if appendErr := h.events.Append(ctx, event); appendErr == nil {
			h.notify.Notify(ctx, event)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "cancelled",
	})
}

// Retry handles POST /api/v1/migrations/:id/retry. Only failed migrations
// can be re-run; cached analysis records make the re-run skip completed
// phases unless force=true supersedes them first.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Retry(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	reset, err := h.migrations.Reset(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reset migration: " + err.Error(),
		})
		return
	}
	if !reset {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Only failed migrations can be retried",
		})
		return
	}

	if c.Query("force") == "true" {
		if err := h.analyses.SupersedeByMigration(ctx, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to supersede cached analyses: " + err.Error(),
			})
			return
		}
	}

	if _, err := h.queue.Enqueue(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue migration: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "queued",
	})
}

// Events handles GET /api/v1/migrations/:id/events.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Events(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := h.events.ListByMigration(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list events: " + err.Error(),
		})
		return
	}

	type eventView struct {
		ID        string                  `json:"id"`
		Type      domain.EventType        `json:"type"`
		Payload   *domain.ProgressPayload `json:"payload"`
		CreatedAt string                  `json:"created_at"`
	}
	views := make([]eventView, 0, len(events))
	for i := range events {
		payload, err := events[i].DecodePayload()
		if err != nil {
			continue
		}
		views = append(views, eventView{
			ID:        events[i].ID,
			Type:      events[i].Type,
			Payload:   payload,
			CreatedAt: events[i].CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"events": views,
		"total":  len(views),
	})
}

// Mappings handles GET /api/v1/migrations/:id/mappings.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MigrationHandler) Mappings(c *gin.Context) {
	mappings, err := h.mappings.ListByMigration(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list mappings: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mappings": mappings,
		"total":    len(mappings),
	})
}
