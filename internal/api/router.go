package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sheenhq/sitesmith/internal/api/handler"
	"github.com/sheenhq/sitesmith/internal/api/middleware"
	"github.com/sheenhq/sitesmith/internal/logger"
	"github.com/sheenhq/sitesmith/internal/notifier"
	"github.com/sheenhq/sitesmith/internal/queue"
	"github.com/sheenhq/sitesmith/internal/repository"
	"github.com/sheenhq/sitesmith/internal/storage"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Migrations *repository.MigrationRepository
	Events     *repository.EventRepository
	Mappings   *repository.URLMappingRepository
	Jobs       *repository.JobRepository
	Analyses   *repository.AnalysisRepository
	Projects   *repository.ProjectRepository
	Queue      *queue.Service
	Store      storage.ObjectStorage
	Notify     notifier.Notifier
	Log        *logger.Logger
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	migrationHandler := handler.NewMigrationHandler(
		deps.Migrations, deps.Events, deps.Mappings, deps.Jobs, deps.Analyses, deps.Queue, deps.Notify)
	projectHandler := handler.NewProjectHandler(deps.Projects, deps.Store)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Migrations
		v1.POST("/migrations", migrationHandler.Create)
		v1.GET("/migrations", migrationHandler.List)
		v1.GET("/migrations/:id", migrationHandler.Get)
		v1.POST("/migrations/:id/verify", migrationHandler.Verify)
		v1.POST("/migrations/:id/cancel", migrationHandler.Cancel)
		v1.POST("/migrations/:id/retry", migrationHandler.Retry)
		v1.GET("/migrations/:id/events", migrationHandler.Events)
		v1.GET("/migrations/:id/mappings", migrationHandler.Mappings)

		// Generated projects
		v1.GET("/projects/:id", projectHandler.Get)
	}

	return r
}
