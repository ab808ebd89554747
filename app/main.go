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

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/opp-comb/app/ai"
	"github.com/lysyi3m/opp-comb/app/api"
	"github.com/lysyi3m/opp-comb/app/cfg"
	"github.com/lysyi3m/opp-comb/app/crawl"
	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/events"
	"github.com/lysyi3m/opp-comb/app/pipeline"
	"github.com/lysyi3m/opp-comb/app/registry"
	"github.com/lysyi3m/opp-comb/app/seed"
	"github.com/lysyi3m/opp-comb/app/status"
)

const runReportTTL = 7 * 24 * time.Hour

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Opp Comb server", "version", appCfg.Version, "timezone", appCfg.Timezone)

	db, err := database.NewConnection(appCfg.DBDriver, appCfg.DBDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "driver", appCfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "driver", appCfg.DBDriver, "schema_version", version, "dirty", dirty)

	targetRepo := database.NewTargetRepository(db)
	listingRepo := database.NewListingRepository(db)
	categoryRepo := database.NewCategoryRepository(db)

	httpClient := &http.Client{}
	fetcher := crawl.NewFetcher(httpClient, crawl.FetcherConfig{
		UserAgent:    appCfg.UserAgent,
		Timeout:      appCfg.FetchTimeout,
		ProbeTimeout: appCfg.ProbeTimeout,
		MaxBytes:     appCfg.MaxPageBytes,
	})

	model := ai.NewGeminiClient(ai.GeminiConfig{
		APIKey:            appCfg.GeminiAPIKey,
		Model:             appCfg.GeminiModel,
		BaseURL:           appCfg.GeminiBaseURL,
		Timeout:           appCfg.AITimeout,
		RequestsPerMinute: appCfg.AIRequestsPerMinute,
		MaxRetries:        appCfg.AIMaxRetries,
	})

	reg := registry.New(targetRepo, listingRepo, fetcher)

	sourceCache := seed.NewSourceCache(appCfg.SourcesDir)
	if err := sourceCache.Run(); err != nil {
		slog.Error("Failed to load source seeds", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	created, err := sourceCache.Sync(context.Background(), reg)
	if err != nil {
		slog.Error("Failed to register seeded sources", "error", err)
		os.Exit(1)
	}
	slog.Info("Source seeds synced", "loaded", sourceCache.GetConfigCount(), "created", created)

	var (
		reports status.Store  = status.NewMemoryStore(status.DefaultHistory)
		lock    status.Locker = &status.LocalLock{}
	)
	if appCfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Error("Failed to connect to Redis", "addr", appCfg.RedisAddr, "error", err)
			os.Exit(1)
		}

		reports = status.NewRedisStore(rdb, appCfg.RedisPrefix, runReportTTL)
		// refreshed before every source, so the ttl only has to outlast one source
		lock = status.NewRedisLock(rdb, appCfg.RedisPrefix, max(4*appCfg.SourceBudget, 5*time.Minute))
		slog.Info("Run status stored in Redis", "addr", appCfg.RedisAddr, "prefix", appCfg.RedisPrefix)
	}

	var publisher events.Publisher = events.Nop{}
	if len(appCfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(appCfg.KafkaBrokers, appCfg.KafkaTopic)
		slog.Info("Listing events enabled", "brokers", appCfg.KafkaBrokers, "topic", appCfg.KafkaTopic)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("Failed to close event publisher", "error", err)
		}
	}()

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Registry:   reg,
		Categories: categoryRepo,
		Fetcher:    fetcher,
		Preparer:   crawl.NewPreparer(appCfg.MaxMarkupBytes),
		Extractor:  ai.NewExtractor(model),
		Deduper:    ai.NewDeduper(model),
		Persister:  pipeline.NewPersister(listingRepo),
		Validator:  pipeline.NewValidator(),
		Filters:    sourceCache,
		Store:      reports,
		Lock:       lock,
		Publisher:  publisher,
	}, pipeline.Config{
		WorkerCount:   appCfg.WorkerCount,
		SourceBudget:  appCfg.SourceBudget,
		SnapshotLimit: appCfg.DedupSnapshotLimit,
	})

	scheduler := pipeline.NewScheduler(orchestrator, pipeline.NewIntervalTicker(appCfg.SchedulerInterval), appCfg.RunOnStart)
	scheduler.Start()
	slog.Info("Scheduler started", "interval", appCfg.SchedulerInterval, "workers", appCfg.WorkerCount, "run_on_start", appCfg.RunOnStart)

	handler := api.NewHandler(reg, api.NewRunController(scheduler, orchestrator), reports, sourceCache.GetConfigCount(), appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
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

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// lets the in-flight source finish, then marks the rest halted
	scheduler.Stop()

	slog.Info("Opp Comb server shutdown complete")
}
