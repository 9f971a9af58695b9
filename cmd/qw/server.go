package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Nysah1997/qw/internal/config"
	"github.com/Nysah1997/qw/internal/metrics"
	"github.com/Nysah1997/qw/internal/milestone"
	"github.com/Nysah1997/qw/internal/notify"
	"github.com/Nysah1997/qw/internal/report"
	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/schedule"
	"github.com/Nysah1997/qw/internal/service"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/storage/bolt"
	"github.com/Nysah1997/qw/internal/storage/redis"
	"github.com/Nysah1997/qw/internal/sweep"
	"github.com/Nysah1997/qw/internal/systemd"
	"github.com/Nysah1997/qw/internal/tracker"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the qw tracking server",
	Long:  `Start the qw server with the milestone sweep, scheduled auto-start, reporting API, and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting qw")

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	// Initialize tracking engine
	trk := tracker.New(store.Records(), tracker.RealClock{}, logger)
	logger.Info().Msg("Tracker initialized")

	// Initialize role lookup with caching
	membership := roles.NewMembership(cfg.Roles.GoldUsers, cfg.Roles.ExtendedUsers)
	roleLookup := roles.NewCached(
		membership,
		cfg.Roles.CacheSize,
		parseDuration(cfg.Roles.CacheTTL, 5*time.Minute),
		logger,
	)

	logger.Info().
		Int("gold_users", len(cfg.Roles.GoldUsers)).
		Int("extended_users", len(cfg.Roles.ExtendedUsers)).
		Msg("Role lookup initialized")

	// Initialize milestone evaluator
	evaluator := milestone.NewEvaluator(trk, roleLookup, cfg.Limits.ExtendedHours, tracker.RealClock{}, logger)

	// Initialize webhook notifier
	webhook := notify.NewWebhook(notify.Config{
		MilestonesURL:    cfg.Notify.MilestonesURL,
		PausesURL:        cfg.Notify.PausesURL,
		CancellationsURL: cfg.Notify.CancellationsURL,
		MovementsURL:     cfg.Notify.MovementsURL,
		MaxRetries:       cfg.Notify.MaxRetries,
		RequestTimeout:   parseDuration(cfg.Notify.RequestTimeout, 10*time.Second),
	}, logger)

	// Initialize the command service
	startHour, startMinute, err := parseTimeOfDay(cfg.Schedule.AutoStartTime)
	if err != nil {
		return fmt.Errorf("invalid schedule.auto_start_time: %w", err)
	}
	location, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("invalid schedule.timezone: %w", err)
	}

	svc := service.New(trk, evaluator, roleLookup, webhook, service.Config{
		Limits: service.Limits{
			StandardHours: cfg.Limits.StandardHours,
			GoldHours:     cfg.Limits.GoldHours,
			ExtendedHours: cfg.Limits.ExtendedHours,
		},
		PauseLimit:  cfg.Tracking.PauseLimit,
		StartHour:   startHour,
		StartMinute: startMinute,
		Location:    location,
	}, tracker.RealClock{}, logger)

	logger.Info().Msg("Service initialized")

	// Initialize milestone sweep
	sweeper := sweep.New(trk, evaluator, webhook, sweep.Config{
		Interval:      parseDuration(cfg.Tracking.SweepInterval, time.Minute),
		BatchSize:     cfg.Tracking.SweepBatchSize,
		RecordTimeout: parseDuration(cfg.Tracking.RecordTimeout, 15*time.Second),
	}, logger)

	sweeper.Start()
	logger.Info().
		Str("interval", cfg.Tracking.SweepInterval).
		Int("batch_size", cfg.Tracking.SweepBatchSize).
		Msg("Milestone sweep started")

	// Initialize scheduled auto-start
	autoStart, err := schedule.New(trk, webhook, cfg.Schedule.AutoStartTime, cfg.Schedule.Timezone, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize auto-start scheduler: %w", err)
	}

	autoStart.Start()
	logger.Info().
		Str("time", cfg.Schedule.AutoStartTime).
		Str("timezone", cfg.Schedule.Timezone).
		Msg("Auto-start scheduler started")

	// Initialize report API server
	var reportServer *http.Server
	if cfg.Report.Enabled {
		reportAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Report.Port)
		reportServer = &http.Server{
			Addr:         reportAddr,
			Handler:      report.NewRouter(cfg.Report, svc, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		go func() {
			if err := reportServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Report API server failed")
			}
		}()

		logger.Info().
			Str("addr", reportAddr).
			Msg("Report API started")
	}

	// Initialize metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics server started")

	// Log startup complete
	logger.Info().Msg("qw startup complete")
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	if cfg.Report.Enabled {
		logger.Info().Msgf("Report API: http://%s:%d/api/v1", cfg.Server.BindAddress, cfg.Report.Port)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop components
	autoStart.Stop()
	sweeper.Stop()

	if reportServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := reportServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping report API server")
		}
		cancel()
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("qw stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Type)
	}
}

// parseTimeOfDay parses an HH:MM clock time.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
