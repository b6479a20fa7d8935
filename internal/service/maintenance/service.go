package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/port"
	"github.com/ambientflow/ambientmix/internal/util/ratelimiter"
)

const preloadKey = "preload"

// Cache is the part of the cache orchestrator maintenance drives
type Cache interface {
	CleanupStale(ctx context.Context) int
	PreloadHighPriority(ctx context.Context)
}

// Reclaimer releases idle playback handles
type Reclaimer interface {
	SmartUnloadUnused() int
}

// TempCleaner removes leftovers of interrupted blob writes
type TempCleaner interface {
	CleanTemp(olderThan time.Duration) int
}

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often stale cache entries and temp files are removed
	CleanupInterval time.Duration

	// IdleUnloadInterval is how often idle low priority sounds are unloaded
	IdleUnloadInterval time.Duration

	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration

	// PreloadMinInterval limits how often reconnects trigger a preload
	PreloadMinInterval time.Duration

	// PreloadOnStart preloads high priority sounds when the service starts
	PreloadOnStart bool
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:    time.Hour,
		IdleUnloadInterval: 5 * time.Minute,
		TempFileMaxAge:     24 * time.Hour,
		PreloadMinInterval: time.Minute,
		PreloadOnStart:     true,
	}
}

// Service runs periodic cache and playback housekeeping, and preloads
// popular sounds when connectivity returns
type Service struct {
	config       *Config
	cache        Cache
	reclaimer    Reclaimer
	temp         TempCleaner
	connectivity port.Connectivity
	limiter      *ratelimiter.Limiter
	logger       *zap.Logger

	reconnected chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. reclaimer, temp and connectivity
// may be nil.
func New(cfg *Config, cache Cache, reclaimer Reclaimer, temp TempCleaner, connectivity port.Connectivity, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.IdleUnloadInterval == 0 {
		cfg.IdleUnloadInterval = 5 * time.Minute
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:       cfg,
		cache:        cache,
		reclaimer:    reclaimer,
		temp:         temp,
		connectivity: connectivity,
		limiter:      ratelimiter.New(cfg.PreloadMinInterval),
		logger:       logger,
		reconnected:  make(chan struct{}, 1),
	}
}

// Start runs the maintenance loop until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.connectivity != nil {
		unsubscribe := s.connectivity.Subscribe(s.onConnectivity)
		defer unsubscribe()
	}

	s.logger.Info("Maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("idle_unload_interval", s.config.IdleUnloadInterval))

	if s.config.PreloadOnStart {
		s.preload(ctx)
	}

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) onConnectivity(online bool) {
	if !online {
		return
	}
	select {
	case s.reconnected <- struct{}{}:
	default:
	}
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	idleTicker := time.NewTicker(s.config.IdleUnloadInterval)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.RunCleanup(ctx)
		case <-idleTicker.C:
			s.unloadIdle()
		case <-s.reconnected:
			s.logger.Info("Connectivity restored")
			s.preload(ctx)
		}
	}
}

// RunCleanup removes stale cache entries and old temp files once
func (s *Service) RunCleanup(ctx context.Context) {
	if removed := s.cache.CleanupStale(ctx); removed > 0 {
		s.logger.Info("Cleaned up stale cache entries", zap.Int("count", removed))
	}
	if s.temp != nil {
		if n := s.temp.CleanTemp(s.config.TempFileMaxAge); n > 0 {
			s.logger.Info("Cleaned up old temp files", zap.Int("count", n))
		}
	}
}

func (s *Service) unloadIdle() {
	if s.reclaimer == nil {
		return
	}
	if n := s.reclaimer.SmartUnloadUnused(); n > 0 {
		s.logger.Debug("Unloaded idle sounds", zap.Int("count", n))
	}
}

func (s *Service) preload(ctx context.Context) {
	if s.connectivity != nil && !s.connectivity.Online() {
		s.logger.Debug("Offline, preload deferred")
		return
	}
	if ok, wait := s.limiter.Allow(preloadKey); !ok {
		s.logger.Debug("Preload rate limited", zap.Duration("retry_in", wait))
		return
	}
	s.cache.PreloadHighPriority(ctx)
}
