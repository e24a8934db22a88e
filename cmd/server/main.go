// Package main is the entry point for the stockhunter screening service:
// an HTTP API over a locally collected price store, backed by the Korea
// Investment & Securities open API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockhunter/stockhunter/internal/clients/kis"
	"github.com/stockhunter/stockhunter/internal/config"
	"github.com/stockhunter/stockhunter/internal/database"
	"github.com/stockhunter/stockhunter/internal/modules/collector"
	"github.com/stockhunter/stockhunter/internal/modules/master"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
	"github.com/stockhunter/stockhunter/internal/reliability"
	"github.com/stockhunter/stockhunter/internal/scheduler"
	"github.com/stockhunter/stockhunter/internal/server"
	"github.com/stockhunter/stockhunter/pkg/logger"
)

// maintenanceSchedule runs the WAL/integrity pass nightly, after the usual
// collection window.
const maintenanceSchedule = "0 4 * * *"

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
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting stockhunter")

	db, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "prices",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open price database")
	}
	defer db.Close()

	store := prices.NewStore(db, log)
	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate price database")
	}

	repo := master.NewRepository(db, log)
	masterTTL := time.Duration(cfg.MasterTTLDays) * 24 * time.Hour
	universe := master.NewManager(repo, store, masterTTL, log)

	// Scheduled jobs run on the configured credentials; API requests may
	// carry their own and swap the collector's client.
	collectorClient := kis.NewClient(kis.Config{
		AppKey:     cfg.KISAppKey,
		AppSecret:  cfg.KISAppSecret,
		Production: cfg.KISProduction,
		RateLimit:  cfg.CollectorRateLimit,
		CacheDir:   cfg.DataDir,
	}, log)
	c := collector.New(collectorClient, store, universe, cfg.RetentionDays, log)

	clients := server.NewClientProvider(cfg, log)

	sched := scheduler.New(log)
	if cfg.UpdateSchedule != "" {
		if err := sched.AddJob(cfg.UpdateSchedule, scheduler.NewIncrementalUpdateJob(c, log)); err != nil {
			log.Fatal().Err(err).Msg("Invalid update schedule")
		}
	}
	if cfg.MasterSchedule != "" {
		if err := sched.AddJob(cfg.MasterSchedule, scheduler.NewMasterRefreshJob(universe, c, log)); err != nil {
			log.Fatal().Err(err).Msg("Invalid master refresh schedule")
		}
	}

	maintenance := reliability.NewMaintenanceService(db, cfg.DataDir, log)
	if err := sched.AddJob(maintenanceSchedule, scheduler.NewMaintenanceJob(maintenance)); err != nil {
		log.Fatal().Err(err).Msg("Invalid maintenance schedule")
	}

	if cfg.Backup.Enabled && cfg.BackupSchedule != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialise backup storage")
		}
		backups := reliability.NewBackupService(s3Client, db, cfg.DataDir, cfg.Backup.KeepLast, log)
		if err := sched.AddJob(cfg.BackupSchedule, scheduler.NewBackupJob(backups)); err != nil {
			log.Fatal().Err(err).Msg("Invalid backup schedule")
		}
	}

	sched.Start()

	srv := server.New(cfg, store, universe, c, clients, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}
