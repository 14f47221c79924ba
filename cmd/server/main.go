// Package main is the entry point for the MarketMind analysis service.
// It wires the two SQLite databases, the market-data and advisor clients,
// the fetch coordinator, the background jobs and the HTTP API, then runs
// until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketmind/internal/analysis"
	"marketmind/internal/cache"
	"marketmind/internal/clients/advisor"
	"marketmind/internal/clients/marketdata"
	"marketmind/internal/config"
	"marketmind/internal/database"
	"marketmind/internal/decisions"
	"marketmind/internal/jobs"
	"marketmind/internal/metrics"
	"marketmind/internal/portfolio"
	"marketmind/internal/predictions"
	"marketmind/internal/reliability"
	"marketmind/internal/scheduler"
	"marketmind/internal/server"
	"marketmind/internal/watchlist"
	"marketmind/pkg/logger"
)

// Job schedules (cron with seconds). Times are server-local; deployments
// targeting NSE hours should run the box in IST.
const (
	scheduleWeeklyReview   = "0 0 9 * * SAT"       // after the trading week closes
	schedulePnLUpdate      = "0 30 16 * * MON-FRI" // after market close
	scheduleWatchlistWarm  = "0 15 * * * *"        // hourly, offset from the TTL boundary
	scheduleRetentionSweep = "0 45 2 * * *"        // nightly
	scheduleCloudBackup    = "0 0 3 * * *"         // nightly, after the sweep
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting MarketMind")

	// Durable records (decisions, predictions, users) and the ephemeral
	// market-data cache live in separate databases with separate PRAGMA
	// profiles, so a cache sweep never contends with decision writes.
	coreDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "core.db"),
		Profile: database.ProfileStandard,
		Name:    "core",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open core database")
	}
	defer coreDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{coreDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	cacheRepo := cache.NewRepository(cacheDB, log)
	decisionRepo := decisions.NewRepository(coreDB, log)
	predictionRepo := predictions.NewRepository(coreDB, log)
	watchlistRepo := watchlist.NewRepository(coreDB, log)
	portfolioRepo := portfolio.NewRepository(coreDB, log)

	market := marketdata.NewClient(cfg.MarketDataBaseURL, log)
	advisorClient := advisor.NewClient(advisor.Config{
		BaseURL: cfg.AdvisorBaseURL,
		APIKey:  cfg.AdvisorAPIKey,
		Model:   cfg.AdvisorModel,
	}, log)

	coordinator := analysis.NewCoordinator(market, advisorClient, cacheRepo, decisionRepo, cfg.CacheTTL, m, log)
	reviewService := predictions.NewService(predictionRepo, advisorClient, market, m, log)

	sched := scheduler.New(log)
	registerJob := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}

	registerJob(scheduleWeeklyReview, jobs.NewWeeklyReview(reviewService, log))
	registerJob(schedulePnLUpdate, jobs.NewPnLUpdate(decisionRepo, market, m, log))
	registerJob(scheduleWatchlistWarm, jobs.NewWatchlistRefresh(watchlistRepo, coordinator, log))
	registerJob(scheduleRetentionSweep, jobs.NewRetentionSweep(
		cacheRepo, decisionRepo, cfg.CacheRetention, cfg.DecisionRetention, m, log))

	if cfg.BackupsEnabled() {
		store, err := reliability.NewStorageClient(reliability.StorageConfig{
			Endpoint:  cfg.BackupEndpoint,
			Region:    cfg.BackupRegion,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
			Bucket:    cfg.BackupBucket,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}

		backupService := reliability.NewBackupService(map[string]*database.DB{
			"core":  coreDB,
			"cache": cacheDB,
		}, cfg.DataDir, store, log)

		registerJob(scheduleCloudBackup, jobs.NewCloudBackup(backupService, cfg.BackupRetentionDays, log))
		log.Info().Str("bucket", cfg.BackupBucket).Msg("Cloud backups enabled")
	} else {
		log.Info().Msg("Cloud backups disabled (no bucket configured)")
	}

	sched.Start()

	srv := server.New(server.Config{
		Port: cfg.Port,
		Log:  log,
		Deps: server.Deps{
			Analysis:    coordinator,
			Decisions:   decisionRepo,
			Cache:       cacheRepo,
			Quotes:      market,
			Predictions: predictionRepo,
			Users:       watchlistRepo,
			Portfolio:   portfolioRepo,
			CoreDB:      coreDB,
			CacheDB:     cacheDB,
			Registry:    registry,
		},
		DevMode: cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("MarketMind stopped")
}
