package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/adapter/audio"
	"github.com/ambientflow/ambientmix/internal/adapter/connectivity"
	"github.com/ambientflow/ambientmix/internal/adapter/filesystem"
	"github.com/ambientflow/ambientmix/internal/adapter/httpfetch"
	"github.com/ambientflow/ambientmix/internal/adapter/sqlite"
	"github.com/ambientflow/ambientmix/internal/config"
	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/domain/event"
	"github.com/ambientflow/ambientmix/internal/domain/service"
	"github.com/ambientflow/ambientmix/internal/logger"
	"github.com/ambientflow/ambientmix/internal/metrics"
	"github.com/ambientflow/ambientmix/internal/port"
	"github.com/ambientflow/ambientmix/internal/service/bytestore"
	"github.com/ambientflow/ambientmix/internal/service/orchestrator"
	"github.com/ambientflow/ambientmix/internal/service/playback"
)

// app holds the wired cache stack shared by every command. Playback is only
// built for serve.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	catalog    *domain.Catalog
	policy     *service.PriorityPolicy
	dispatcher *event.InMemoryDispatcher
	collector  *metrics.Collector
	latency    *metrics.LatencyTracker

	fsManager    *filesystem.Manager
	store        *sqlite.Store
	fetcher      *httpfetch.Client
	monitor      *connectivity.Monitor
	bytes        *bytestore.Store
	orchestrator *orchestrator.Orchestrator
	playback     *playback.Manager
}

func catalogFromConfig(cfg *config.Config) *domain.Catalog {
	sounds := make([]domain.Sound, 0, len(cfg.Assets.Catalog))
	for _, s := range cfg.Assets.Catalog {
		sounds = append(sounds, domain.Sound{
			ID:            s.ID,
			Name:          s.Name,
			Category:      domain.Category(s.Category),
			FileName:      s.FileName,
			DefaultVolume: s.DefaultVolume,
		})
	}
	return domain.NewCatalog(cfg.Assets.BaseURL, sounds)
}

// newApp opens storage and builds the cache stack. The dispatcher is
// asynchronous only for long-running processes.
func newApp(ctx context.Context, cfg *config.Config, async bool) (*app, error) {
	zapLogger := logger.GetZapLogger()

	a := &app{
		cfg:        cfg,
		logger:     zapLogger,
		catalog:    catalogFromConfig(cfg),
		policy:     service.DefaultPriorityPolicy(),
		dispatcher: event.NewInMemoryDispatcher(async, logger.Named("events")),
		collector:  metrics.NewCollector(),
		latency:    metrics.NewLatencyTracker(0.01),
	}
	a.dispatcher.Subscribe(event.NewLoggingHandler(logger.Named("events")))
	a.dispatcher.Subscribe(a.collector)

	var err error
	a.fsManager, err = filesystem.NewManagerWithLevel(filepath.Join(cfg.Cache.RootDir, "blobs"), cfg.Cache.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Cache.RootDir, "cache.db")
	}
	a.store, err = sqlite.Open(dbPath, sqlite.Options{
		CacheSizeMB:   cfg.Database.CacheSizeMB,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		_ = a.fsManager.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	a.fetcher = httpfetch.NewClient(&httpfetch.ClientConfig{
		Timeout:   cfg.Network.GetFetchTimeout(),
		UserAgent: "ambientmix/" + version,
	})

	a.monitor = connectivity.NewMonitor(&connectivity.Config{
		ProbeURL:      cfg.Network.ProbeURL,
		ProbeInterval: cfg.Network.GetProbeInterval(),
		ProbeTimeout:  cfg.Network.GetProbeTimeout(),
	}, a.fetcher, a.dispatcher, logger.Named("connectivity"))

	a.bytes = bytestore.New(&bytestore.Config{
		MemoryEntries: cfg.Cache.MemoryEntries,
	}, a.fsManager, a.store.Blobs(), a.store.Entries(), logger.Named("bytestore"))

	a.orchestrator = orchestrator.New(&orchestrator.Config{
		MaxSizeBytes:       cfg.Cache.GetMaxSizeBytes(),
		StaleAfter:         cfg.Cache.GetStaleAfter(),
		PreloadConcurrency: cfg.Cache.PreloadConcurrency,
		FlightTimeout:      2 * cfg.Network.GetFetchTimeout(), // fetch plus store write
	}, orchestrator.Deps{
		Catalog:      a.catalog,
		Policy:       a.policy,
		Store:        a.bytes,
		Entries:      a.store.Entries(),
		Fetcher:      a.fetcher,
		Connectivity: a.monitor,
		Dispatcher:   a.dispatcher,
		Latency:      a.latency,
	}, logger.Named("orchestrator"))
	a.orchestrator.Init(ctx)

	return a, nil
}

// withPlayback builds the playback manager on the configured backend
func (a *app) withPlayback() {
	var factory port.ResourceFactory
	switch a.cfg.Playback.Backend {
	case "null":
		factory = audio.NewNullFactory(a.fetcher)
	default:
		factory = audio.NewOtoFactory(&audio.OtoConfig{
			SampleRate: a.cfg.Playback.SampleRate,
			BufferSize: a.cfg.Playback.GetBufferSize(),
		}, a.fetcher, logger.Named("audio"))
	}

	a.playback = playback.New(&playback.Config{
		DefaultFade: a.cfg.Playback.GetDefaultFade(),
		LoadTimeout: 2 * a.cfg.Network.GetFetchTimeout(),
	}, playback.Deps{
		Catalog:    a.catalog,
		Policy:     a.policy,
		Cache:      a.orchestrator,
		Factory:    factory,
		Dispatcher: a.dispatcher,
		Latency:    a.latency,
	}, logger.Named("playback"))
}

// Close releases playback handles, drains events and closes storage
func (a *app) Close() {
	if a.playback != nil {
		if n := a.playback.SmartUnloadUnused(); n > 0 {
			a.logger.Info("Reclaimed idle sounds before shutdown", zap.Int("count", n))
		}
		if err := a.playback.Close(); err != nil {
			a.logger.Error("Failed to release playback resources", zap.Error(err))
		}
	}
	a.dispatcher.Wait()
	if err := a.fsManager.Close(); err != nil {
		a.logger.Error("Failed to close filesystem manager", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close database", zap.Error(err))
	}
}
