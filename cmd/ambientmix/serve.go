package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/config"
	"github.com/ambientflow/ambientmix/internal/logger"
	"github.com/ambientflow/ambientmix/internal/service/maintenance"
	"github.com/ambientflow/ambientmix/internal/service/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mixer daemon and its HTTP control API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Only the log level is applied on reload; everything else needs a restart
	cfg, err := config.Watch(configPath, func(next *config.Config) {
		if err := logger.SetLevel(next.Logging.Level); err != nil {
			logger.GetZapLogger().Warn("Ignoring log level change", zap.Error(err))
			return
		}
		logger.GetZapLogger().Info("Configuration reloaded", zap.String("level", next.Logging.Level))
	}, func(err error) {
		logger.GetZapLogger().Warn("Ignoring invalid configuration change", zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting ambientmix",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	a.withPlayback()

	maintenanceService := maintenance.New(&maintenance.Config{
		CleanupInterval:    cfg.Cache.GetCleanupInterval(),
		IdleUnloadInterval: cfg.Cache.GetIdleUnloadInterval(),
		TempFileMaxAge:     24 * time.Hour,
		PreloadMinInterval: time.Minute,
		PreloadOnStart:     true,
	}, a.orchestrator, a.playback, a.bytes, a.monitor, logger.Named("maintenance"))

	httpServer := server.New(&server.Config{
		BindAddr:               cfg.HTTP.BindAddr,
		AdminUsername:          cfg.HTTP.AdminUsername,
		AdminPassword:          cfg.HTTP.AdminPassword,
		ReadTimeout:            cfg.HTTP.GetReadTimeout(),
		WriteTimeout:           cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:            cfg.HTTP.GetIdleTimeout(),
		MaintenanceMinInterval: 10 * time.Second,
	}, server.Deps{
		Catalog: a.catalog,
		Mixer:   a.playback,
		Cache:   a.orchestrator,
		Store:   a.store,
		Storage: a.bytes,
		Latency: a.latency,
		Metrics: a.collector.Handler(),
	}, logger.Named("http"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	go a.monitor.Run(ctx)

	maintenanceDone := make(chan struct{})
	go func() {
		defer close(maintenanceDone)
		if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("cache_dir", cfg.Cache.RootDir),
		zap.String("playback_backend", cfg.Playback.Backend),
	)

	var runErr error
	select {
	case <-sigChan:
		zapLogger.Info("shutdown signal received, stopping services...")
	case err := <-serverErr:
		if err != nil {
			zapLogger.Error("HTTP server failed", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	maintenanceService.Stop()
	select {
	case <-maintenanceDone:
	case <-shutdownCtx.Done():
		zapLogger.Warn("maintenance service did not stop in time")
	}

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("shutdown complete")
	return runErr
}
