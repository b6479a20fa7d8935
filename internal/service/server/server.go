package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/domain/vo"
	"github.com/ambientflow/ambientmix/internal/metrics"
	"github.com/ambientflow/ambientmix/internal/port"
	"github.com/ambientflow/ambientmix/internal/util/ratelimiter"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration

	// MaintenanceMinInterval limits how often preload and cleanup can be
	// triggered over HTTP
	MaintenanceMinInterval time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:               "127.0.0.1:8080",
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           60 * time.Second,
		IdleTimeout:            60 * time.Second,
		MaintenanceMinInterval: 10 * time.Second,
	}
}

// Mixer is the playback surface exposed over HTTP
type Mixer interface {
	LoadOnDemand(ctx context.Context, soundID string) bool
	Play(soundID string)
	Stop(soundID string)
	SetVolume(soundID string, level int)
	FadeIn(soundID string, d time.Duration)
	FadeOut(soundID string, d time.Duration)
	Unload(soundID string)
	StopAll()
	UnloadUnused() int
	SmartUnloadUnused() int
	GetPlayingSounds() []string
	LoadedSounds() []string
	IsPlaying(soundID string) bool
	IsLoaded(soundID string) bool
	GetVolume(soundID string) int
	GetMemoryUsage() domain.MemoryUsage
}

// Cache is the cache surface exposed over HTTP
type Cache interface {
	GetStats() domain.CacheStats
	ListCachedKeys(ctx context.Context) []string
	Entries() []domain.CacheEntryMeta
	PreloadHighPriority(ctx context.Context)
	CleanupStale(ctx context.Context) int
	Clear(ctx context.Context) bool
	IsOffline() bool
	Priority(soundID string) vo.Priority
}

// StorageReporter reports blob directory and disk usage
type StorageReporter interface {
	Usage() port.StorageUsage
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the collaborators of a Server. Store, Storage, Latency and
// Metrics are optional.
type Deps struct {
	Catalog *domain.Catalog
	Mixer   Mixer
	Cache   Cache
	Store   Pinger
	Storage StorageReporter
	Latency *metrics.LatencyTracker
	Metrics http.Handler
}

// Server represents the HTTP API server
type Server struct {
	config       *Config
	deps         Deps
	logger       *zap.Logger
	server       *http.Server
	handler      http.Handler
	soundHandler *SoundHandler
	cacheHandler *CacheHandler
	debugHandler *DebugHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		deps.Catalog = domain.NewCatalog("", nil)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	limiter := ratelimiter.New(cfg.MaintenanceMinInterval)
	s.soundHandler = NewSoundHandler(deps.Catalog, deps.Mixer, deps.Cache, logger)
	s.cacheHandler = NewCacheHandler(deps.Cache, deps.Storage, limiter, logger)
	s.debugHandler = NewDebugHandler(deps.Latency, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Sounds
	mux.HandleFunc("GET /sounds", s.soundHandler.HandleList)
	mux.HandleFunc("POST /sounds/{id}/load", s.soundHandler.HandleLoad)
	mux.HandleFunc("POST /sounds/{id}/play", s.soundHandler.HandlePlay)
	mux.HandleFunc("POST /sounds/{id}/stop", s.soundHandler.HandleStop)
	mux.HandleFunc("POST /sounds/{id}/fade-in", s.soundHandler.HandleFadeIn)
	mux.HandleFunc("POST /sounds/{id}/fade-out", s.soundHandler.HandleFadeOut)
	mux.HandleFunc("POST /sounds/{id}/unload", s.soundHandler.HandleUnload)
	mux.HandleFunc("PUT /sounds/{id}/volume", s.soundHandler.HandleVolume)

	// Mixer
	mux.HandleFunc("POST /mixer/stop-all", s.soundHandler.HandleStopAll)
	mux.HandleFunc("POST /mixer/unload-unused", s.soundHandler.HandleUnloadUnused)
	mux.HandleFunc("GET /mixer/playing", s.soundHandler.HandlePlaying)
	mux.HandleFunc("GET /mixer/memory", s.soundHandler.HandleMemory)

	// Cache
	mux.HandleFunc("GET /cache/stats", s.cacheHandler.HandleStats)
	mux.HandleFunc("GET /cache/files", s.cacheHandler.HandleFiles)
	mux.HandleFunc("GET /cache/entries", s.cacheHandler.HandleEntries)
	mux.HandleFunc("POST /cache/preload", s.cacheHandler.HandlePreload)
	mux.HandleFunc("POST /cache/cleanup", s.cacheHandler.HandleCleanup)
	clearCache := s.cacheHandler.HandleClear
	if cfg.AdminUsername != "" {
		clearCache = BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)(clearCache)
	}
	mux.HandleFunc("POST /cache/clear", clearCache)

	// Debug endpoints
	mux.HandleFunc("GET /debug/latency", s.debugHandler.HandleLatency)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	s.handler = LoggingMiddleware(logger)(mux)
	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", zap.Error(err))
			http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"online": !s.deps.Cache.IsOffline(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
