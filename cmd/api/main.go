package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheenhq/sitesmith/internal/api"
	"github.com/sheenhq/sitesmith/internal/api/middleware"
	"github.com/sheenhq/sitesmith/internal/config"
	"github.com/sheenhq/sitesmith/internal/crawler"
	"github.com/sheenhq/sitesmith/internal/generator"
	"github.com/sheenhq/sitesmith/internal/lease"
	"github.com/sheenhq/sitesmith/internal/logger"
	"github.com/sheenhq/sitesmith/internal/notifier"
	"github.com/sheenhq/sitesmith/internal/orchestrator"
	"github.com/sheenhq/sitesmith/internal/planner"
	"github.com/sheenhq/sitesmith/internal/queue"
	"github.com/sheenhq/sitesmith/internal/repository"
	"github.com/sheenhq/sitesmith/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	migrationRepo := repository.NewMigrationRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	eventRepo := repository.NewEventRepository(db)
	mappingRepo := repository.NewURLMappingRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// Initialize storage (supports R2, S3, and S3-compatible gateways)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}

	ctx := context.Background()
	if s3Store, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3Store.EnsureBucket(ctx); err != nil {
			logger.Fatal("Failed to ensure storage bucket: %v", err)
		}
	}

	// Initialize pipeline services
	leaseManager := lease.NewManager(db, cfg.Lease.TTL)

	crawlerClient := crawler.New(crawler.Config{
		ShallowTimeout: cfg.Crawler.ShallowTimeout,
		DeepTimeout:    cfg.Crawler.DeepTimeout,
		MaxPages:       cfg.Crawler.MaxPages,
		MaxBodyBytes:   cfg.Crawler.MaxBodyBytes,
		UserAgent:      cfg.Crawler.UserAgent,
	})

	plannerService := planner.New(&planner.Config{
		Provider:    cfg.Reasoning.Provider,
		Model:       cfg.Reasoning.Model,
		APIKey:      cfg.Reasoning.APIKey,
		BaseURL:     cfg.Reasoning.BaseURL,
		MaxTokens:   cfg.Reasoning.MaxTokens,
		Temperature: cfg.Reasoning.Temperature,
		SamplePages: cfg.Reasoning.SamplePages,
	})

	generatorService := generator.New(objectStorage, projectRepo, migrationRepo)

	notify := notifier.NewWebhook(&notifier.Config{
		Enabled:    cfg.Notify.Enabled,
		WebhookURL: cfg.Notify.WebhookURL,
		Secret:     cfg.Notify.Secret,
		Timeout:    cfg.Notify.Timeout,
	})

	orch := orchestrator.New(orchestrator.Deps{
		Migrations: migrationRepo,
		Analyses:   analysisRepo,
		Events:     eventRepo,
		Mappings:   mappingRepo,
		Leases:     leaseManager,
		Crawler:    crawlerClient,
		Planner:    plannerService,
		Generator:  generatorService,
		Notify:     notify,
		MaxPages:   cfg.Crawler.MaxPages,
	})

	queueService := queue.New(jobRepo, orch, queue.Config{
		Concurrency:   cfg.Queue.Concurrency,
		StartsPerMin:  cfg.Queue.StartsPerMin,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		BackoffBase:   cfg.Queue.BackoffBase,
		BackoffFactor: cfg.Queue.BackoffFactor,
		PollInterval:  cfg.Queue.PollInterval,
	})

	// Start background processing
	bgCtx, bgCancel := context.WithCancel(ctx)
	queueService.Start(bgCtx)

	watchdog := orchestrator.NewWatchdog(orch, cfg.Lease.SweepInterval)
	go watchdog.Run(bgCtx)

	// Setup router
	router := api.SetupRouter(api.Deps{
		Migrations: migrationRepo,
		Events:     eventRepo,
		Mappings:   mappingRepo,
		Jobs:       jobRepo,
		Analyses:   analysisRepo,
		Projects:   projectRepo,
		Queue:      queueService,
		Store:      objectStorage,
		Notify:     notify,
		Log:        appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting API server on port %d (%s mode)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop taking new work, drain in-flight jobs, then stop the listener.
	bgCancel()
	queueService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
