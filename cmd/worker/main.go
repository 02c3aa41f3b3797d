// Command worker runs the migration pipeline without the HTTP surface: the
// queue dispatcher, worker pool, and lease watchdog. Deploy it alongside the
// API when pipeline throughput needs to scale independently.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

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
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	migrationRepo := repository.NewMigrationRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	eventRepo := repository.NewEventRepository(db)
	mappingRepo := repository.NewURLMappingRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	jobRepo := repository.NewJobRepository(db)

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

	ctx, cancel := context.WithCancel(context.Background())
	queueService.Start(ctx)

	watchdog := orchestrator.NewWatchdog(orch, cfg.Lease.SweepInterval)
	go watchdog.Run(ctx)

	logger.Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	queueService.Stop()
	logger.Info("Worker exited")
}
