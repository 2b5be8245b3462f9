package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contentloop/crossposter/app/api"
	"github.com/contentloop/crossposter/app/assets"
	"github.com/contentloop/crossposter/app/cfg"
	"github.com/contentloop/crossposter/app/community"
	"github.com/contentloop/crossposter/app/database"
	"github.com/contentloop/crossposter/app/decision"
	"github.com/contentloop/crossposter/app/filter"
	"github.com/contentloop/crossposter/app/httpclient"
	"github.com/contentloop/crossposter/app/ingest"
	"github.com/contentloop/crossposter/app/limiter"
	"github.com/contentloop/crossposter/app/pipeline"
	"github.com/contentloop/crossposter/app/publisher"
	"github.com/contentloop/crossposter/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting Crossposter", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBHost, appCfg.DBPort,
		appCfg.DBUser, appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "migration_version", version, "dirty", dirty)

	configCache := community.NewConfigCache(appCfg.CommunitiesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load community configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Community configurations loaded", "count", configCache.GetConfigCount())

	recordRepo := database.NewRecordRepository(db)
	accountRepo := database.NewAccountRepository(db)

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := assets.NewStore(storeCtx, assets.S3Config{
		Bucket:    appCfg.S3Bucket,
		Region:    appCfg.S3Region,
		Endpoint:  appCfg.S3Endpoint,
		AccessKey: appCfg.S3AccessKey,
		SecretKey: appCfg.S3SecretKey,
	})
	storeCancel()
	if err != nil {
		slog.Error("Failed to initialize asset store", "error", err)
		os.Exit(1)
	}

	httpClient := httpclient.New()
	assetManager := assets.NewManager(store, appCfg.AssetsDir, httpClient, appCfg.UserAgent)
	ingestClient := ingest.NewClient(httpClient)
	publisherClient := publisher.NewClient(httpClient, appCfg.PublisherURL)
	budgetGate := limiter.NewLimiter(accountRepo, appCfg.DailyBudget)

	processor := pipeline.NewProcessor(recordRepo, filter.NewFilterer(assetManager),
		decision.NewEngine(), budgetGate, assetManager, publisherClient)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount,
		"interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(configCache, ingestClient, processor, assetManager)
	scheduler.Start()
	defer scheduler.Stop()

	taskFactory := func(name string, config *community.Config) tasks.TaskInterface {
		return tasks.NewProcessCommunityTask(name, config, ingestClient,
			processor, assetManager, appCfg.SnapshotDir)
	}

	apiHandler := api.NewHandler(configCache, recordRepo, accountRepo, scheduler, taskFactory)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
