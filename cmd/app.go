package cmd

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ekaya-inc/survey-engine/pkg/cloudsync"
	"github.com/ekaya-inc/survey-engine/pkg/config"
	"github.com/ekaya-inc/survey-engine/pkg/database"
	"github.com/ekaya-inc/survey-engine/pkg/logging"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

var _ services.Mirror = (*cloudsync.Adapter)(nil)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	local   *gorm.DB
	remote  *database.Remote
	adapter *cloudsync.Adapter
	monitor *cloudsync.Monitor

	surveys  services.SurveyService
	mappings services.MappingService
	unmapped services.UnmappedService
	learned  services.LearnedMappingService
	exports  services.ExportService
}

// newApp opens the local store and, when sync is configured, wires the remote
// store behind the connectivity monitor.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	local, err := database.OpenLocal(&database.LocalConfig{
		Path:  cfg.Local.SQLitePath,
		Debug: cfg.Local.Debug,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.local = local

	syncMetrics, err := cloudsync.NewMetrics(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}

	// An untyped nil keeps services from seeing a typed-nil mirror.
	var mirror services.Mirror
	var pinger cloudsync.Pinger
	if cfg.Sync.IsConfigured() {
		// The pool opens on the first connectivity check, so a remote that is
		// down now is retried on every poll and Refresh.
		a.remote = database.NewRemote(func(ctx context.Context) (*database.DB, error) {
			return openRemote(ctx, &cfg.Sync, logger)
		})
		store := cloudsync.NewPostgresStore(a.remote, logger)
		a.adapter = cloudsync.NewAdapter(store, adapterConfig(&cfg.Sync), syncMetrics, logger)
		mirror = a.adapter
		pinger = store
	} else {
		logger.Info("Cloud sync not configured; running local-only")
	}
	a.monitor = cloudsync.NewMonitor(pinger, a.adapter, cfg.Sync.PollInterval, cfg.Sync.CheckTimeout, syncMetrics, logger)

	surveyRepo := repositories.NewSurveyRepository(local)
	mappingRepo := repositories.NewMappingRepository(local)
	learnedRepo := repositories.NewLearnedMappingRepository(local)

	a.learned = services.NewLearnedMappingService(learnedRepo, cfg.Cache.LearnedTTL, cfg.Cache.CleanupInterval, logger)
	a.unmapped = services.NewUnmappedService(surveyRepo, mappingRepo, a.learned, logger)
	a.mappings = services.NewMappingService(mappingRepo, a.unmapped, mirror, logger)
	a.surveys = services.NewSurveyService(surveyRepo, mappingRepo, a.learned, mirror, logger)
	a.exports = services.NewExportService(mappingRepo, logger)
	return a, nil
}

// openRemote opens the remote pool and applies pending migrations.
func openRemote(ctx context.Context, cfg *config.SyncConfig, logger *zap.Logger) (*database.DB, error) {
	dsn := cfg.ConnectionString()
	logger.Debug("Connecting to remote store", zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	remote, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: cfg.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		remote.Close()
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		remote.Close()
		return nil, err
	}
	return remote, nil
}

func adapterConfig(cfg *config.SyncConfig) cloudsync.Config {
	c := cloudsync.DefaultConfig()
	c.ChunkSize = cfg.ChunkSize
	c.InterChunkDelay = cfg.InterChunkDelay
	c.ProgressStart = cfg.ProgressStart
	c.ProgressEnd = cfg.ProgressEnd
	c.MaxDrainAttempts = cfg.MaxDrainAttempts
	return c
}

// Close stops the monitor and releases both stores.
func (a *app) Close() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.remote != nil {
		a.remote.Close()
	}
	if a.local != nil {
		if sqlDB, err := a.local.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Warn("Failed to close local store", zap.Error(err))
			}
		}
	}
}
