package playback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/domain/event"
	"github.com/ambientflow/ambientmix/internal/domain/service"
	"github.com/ambientflow/ambientmix/internal/domain/vo"
	"github.com/ambientflow/ambientmix/internal/metrics"
	"github.com/ambientflow/ambientmix/internal/port"
)

// Unload reasons reported in SoundUnloaded events
const (
	ReasonExplicit = "explicit"
	ReasonReclaim  = "reclaim"
	ReasonShutdown = "shutdown"
)

// Config contains playback manager configuration
type Config struct {
	DefaultFade time.Duration
	LoadTimeout time.Duration // Bounds a shared load once callers stop waiting
}

// DefaultConfig returns default playback configuration
func DefaultConfig() *Config {
	return &Config{DefaultFade: time.Second, LoadTimeout: time.Minute}
}

// handle is the manager's record of one loaded sound
type handle struct {
	soundID    string
	res        port.Resource
	volume     vo.Volume // Target volume, kept through fades
	playing    bool
	fadingOut  bool
	generation uint64
	fadeTimer  *time.Timer
}

// cancelFade invalidates any deferred fade-out continuation. Callers hold
// the manager lock.
func (h *handle) cancelFade(gen uint64) {
	h.generation = gen
	if h.fadeTimer != nil {
		h.fadeTimer.Stop()
		h.fadeTimer = nil
	}
}

// Manager owns the live set of playback handles and bridges cached bytes
// to playable resources. At most one handle exists per sound id.
type Manager struct {
	config     *Config
	catalog    *domain.Catalog
	policy     *service.PriorityPolicy
	cache      port.AssetCache
	factory    port.ResourceFactory
	dispatcher event.EventDispatcher
	latency    *metrics.LatencyTracker
	logger     *zap.Logger

	loads singleflight.Group

	mu         sync.Mutex
	handles    map[string]*handle
	generation uint64
	closed     bool

	// Background cache population outlives individual requests
	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup
}

// Deps groups the collaborators of a Manager. Dispatcher and Latency are
// optional.
type Deps struct {
	Catalog    *domain.Catalog
	Policy     *service.PriorityPolicy
	Cache      port.AssetCache
	Factory    port.ResourceFactory
	Dispatcher event.EventDispatcher
	Latency    *metrics.LatencyTracker
}

// New creates a playback manager
func New(cfg *Config, deps Deps, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultFade <= 0 {
		cfg.DefaultFade = time.Second
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = time.Minute
	}
	if deps.Catalog == nil {
		deps.Catalog = domain.NewCatalog("", nil)
	}
	if deps.Policy == nil {
		deps.Policy = service.DefaultPriorityPolicy()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = event.NewNullDispatcher()
	}
	if deps.Latency == nil {
		deps.Latency = metrics.NewLatencyTracker(0.01)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:     cfg,
		catalog:    deps.Catalog,
		policy:     deps.Policy,
		cache:      deps.Cache,
		factory:    deps.Factory,
		dispatcher: deps.Dispatcher,
		latency:    deps.Latency,
		logger:     logger,
		handles:    make(map[string]*handle),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Load creates the playback handle for sound. Loading an already loaded
// sound is a no-op. Cached bytes are used when present; otherwise the
// resource streams from the network and the asset is cached in the
// background for later loads.
func (m *Manager) Load(ctx context.Context, sound domain.Sound) error {
	if m.isLoaded(sound.ID) {
		return nil
	}

	// Joined callers share the load; it is not tied to whichever caller
	// started it.
	ch := m.loads.DoChan(sound.ID, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.LoadTimeout)
		defer cancel()
		return nil, m.load(lctx, sound)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) load(ctx context.Context, sound domain.Sound) error {
	// A load for this id may have completed while we waited to start
	if m.isLoaded(sound.ID) {
		return nil
	}

	start := time.Now()
	defer m.latency.Since(metrics.OpLoad, start)

	url := m.catalog.AssetURL(sound)
	volume := vo.NewVolume(sound.DefaultVolume)

	opts := port.ResourceOptions{
		SoundID:       sound.ID,
		URL:           url,
		Loop:          true,
		InitialVolume: volume.Gain(),
		OnLoadError: func(id string, err error) {
			m.logger.Error("Failed to load sound", zap.String("sound_id", id), zap.Error(err))
		},
		OnPlayError: func(id string, err error) {
			m.logger.Error("Playback error", zap.String("sound_id", id), zap.Error(err))
		},
	}

	data, fromCache := m.cache.GetCachedAsset(ctx, sound.ID, url)
	if fromCache {
		opts.Data = data
	}

	res, err := m.factory.Create(ctx, opts)
	if err != nil {
		m.logger.Warn("Sound left unloaded",
			zap.String("sound_id", sound.ID),
			zap.Error(err))
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = res.Unload()
		return domain.ErrResourceClosed
	}
	if _, exists := m.handles[sound.ID]; exists {
		m.mu.Unlock()
		_ = res.Unload()
		return nil
	}
	m.generation++
	m.handles[sound.ID] = &handle{
		soundID:    sound.ID,
		res:        res,
		volume:     volume,
		generation: m.generation,
	}
	if !fromCache {
		m.cacheInBackgroundLocked(sound.ID, url)
	}
	m.mu.Unlock()

	m.logger.Debug("Sound loaded",
		zap.String("sound_id", sound.ID),
		zap.Bool("from_cache", fromCache))
	m.dispatcher.Dispatch(event.NewSoundLoaded(sound.ID, fromCache))
	return nil
}

// cacheInBackgroundLocked populates the cache without holding up the load.
// Failures are logged and never reach the caller.
func (m *Manager) cacheInBackgroundLocked(soundID, url string) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Background caching panicked",
					zap.String("sound_id", soundID),
					zap.Any("panic", r))
			}
		}()

		if !m.cache.CacheAsset(m.baseCtx, soundID, url) {
			m.logger.Debug("Background caching did not store asset", zap.String("sound_id", soundID))
		}
	}()
}

// LoadOnDemand loads a catalog sound by id and reports whether a handle
// exists afterwards
func (m *Manager) LoadOnDemand(ctx context.Context, soundID string) bool {
	sound, ok := m.catalog.Lookup(soundID)
	if !ok {
		m.logger.Warn("Unknown sound", zap.String("sound_id", soundID))
		return false
	}
	return m.Load(ctx, sound) == nil && m.isLoaded(soundID)
}

// Play starts playback. Unknown or unloaded ids are a logged no-op and an
// already playing sound keeps playing. A pending fade-out is cancelled and
// the target volume restored.
func (m *Manager) Play(soundID string) {
	m.mu.Lock()
	h, ok := m.handles[soundID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("Play on sound that is not loaded", zap.String("sound_id", soundID))
		return
	}
	if h.playing {
		if h.fadingOut {
			m.generation++
			h.cancelFade(m.generation)
			h.fadingOut = false
			h.res.SetVolume(h.volume.Gain())
		}
		m.mu.Unlock()
		return
	}
	if err := h.res.Play(); err != nil {
		m.mu.Unlock()
		m.logger.Warn("Failed to start playback", zap.String("sound_id", soundID), zap.Error(err))
		return
	}
	m.generation++
	h.cancelFade(m.generation)
	h.playing = true
	m.mu.Unlock()

	m.dispatcher.Dispatch(event.NewPlaybackStateChanged(soundID, true))
}

// Stop halts playback without releasing the handle
func (m *Manager) Stop(soundID string) {
	m.mu.Lock()
	h, ok := m.handles[soundID]
	if !ok || !h.playing {
		m.mu.Unlock()
		return
	}
	m.stopLocked(h)
	m.mu.Unlock()

	m.dispatcher.Dispatch(event.NewPlaybackStateChanged(soundID, false))
}

func (m *Manager) stopLocked(h *handle) {
	m.generation++
	h.cancelFade(m.generation)
	h.res.Stop()
	if h.fadingOut {
		h.fadingOut = false
		h.res.SetVolume(h.volume.Gain())
	}
	h.playing = false
}

// StopAll stops every playing sound
func (m *Manager) StopAll() {
	var stopped []string

	m.mu.Lock()
	for id, h := range m.handles {
		if h.playing {
			m.stopLocked(h)
			stopped = append(stopped, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stopped {
		m.dispatcher.Dispatch(event.NewPlaybackStateChanged(id, false))
	}
}

// SetVolume clamps level to [0, 100] and applies it. During a fade-out
// only the target is recorded; it is restored once the fade completes.
func (m *Manager) SetVolume(soundID string, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[soundID]
	if !ok {
		m.logger.Debug("Volume change on sound that is not loaded", zap.String("sound_id", soundID))
		return
	}
	h.volume = vo.NewVolume(level)
	if !h.fadingOut {
		h.res.SetVolume(h.volume.Gain())
	}
}

// FadeIn ramps from silence to the target volume over d, starting playback
// if needed. A d of zero uses the configured default.
func (m *Manager) FadeIn(soundID string, d time.Duration) {
	if d <= 0 {
		d = m.config.DefaultFade
	}

	m.mu.Lock()
	h, ok := m.handles[soundID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("Fade in on sound that is not loaded", zap.String("sound_id", soundID))
		return
	}

	m.generation++
	h.cancelFade(m.generation)
	h.fadingOut = false
	h.res.SetVolume(0)

	started := false
	if !h.playing {
		if err := h.res.Play(); err != nil {
			h.res.SetVolume(h.volume.Gain())
			m.mu.Unlock()
			m.logger.Warn("Failed to start playback", zap.String("sound_id", soundID), zap.Error(err))
			return
		}
		h.playing = true
		started = true
	}
	h.res.Fade(0, h.volume.Gain(), d)
	m.mu.Unlock()

	if started {
		m.dispatcher.Dispatch(event.NewPlaybackStateChanged(soundID, true))
	}
}

// FadeOut ramps to silence over d, then stops playback and restores the
// target volume so the next Play resumes at it. Any Play, FadeIn, Stop or
// Unload issued before the fade completes supersedes it. A d of zero uses
// the configured default.
func (m *Manager) FadeOut(soundID string, d time.Duration) {
	if d <= 0 {
		d = m.config.DefaultFade
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[soundID]
	if !ok {
		m.logger.Warn("Fade out on sound that is not loaded", zap.String("sound_id", soundID))
		return
	}
	if !h.playing {
		return
	}

	m.generation++
	h.cancelFade(m.generation)
	gen := m.generation
	h.fadingOut = true
	h.res.Fade(h.res.Volume(), 0, d)
	h.fadeTimer = time.AfterFunc(d, func() {
		m.finishFadeOut(h, gen)
	})
}

// finishFadeOut runs when a fade-out elapses. It acts only if nothing has
// touched the handle since the fade started.
func (m *Manager) finishFadeOut(h *handle, gen uint64) {
	m.mu.Lock()
	if current, ok := m.handles[h.soundID]; !ok || current != h || h.generation != gen {
		m.mu.Unlock()
		return
	}
	h.fadeTimer = nil
	h.fadingOut = false
	// The last ramp step can land just after the timer; the generation
	// check already proves the fade was not superseded.
	h.res.Stop()
	h.res.SetVolume(h.volume.Gain())
	h.playing = false
	m.mu.Unlock()

	m.dispatcher.Dispatch(event.NewPlaybackStateChanged(h.soundID, false))
}

// Unload releases the handle whether or not it is playing
func (m *Manager) Unload(soundID string) {
	m.mu.Lock()
	h, ok := m.handles[soundID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.detachLocked(h)
	m.mu.Unlock()

	m.release(h, ReasonExplicit)
}

func (m *Manager) detachLocked(h *handle) {
	m.generation++
	h.cancelFade(m.generation)
	delete(m.handles, h.soundID)
}

func (m *Manager) release(h *handle, reason string) {
	if err := h.res.Unload(); err != nil {
		m.logger.Warn("Failed to release resource",
			zap.String("sound_id", h.soundID),
			zap.Error(err))
	}
	m.dispatcher.Dispatch(event.NewSoundUnloaded(h.soundID, reason))
}

// UnloadUnused releases every handle that is not playing and returns how
// many were released
func (m *Manager) UnloadUnused() int {
	return m.reclaim(func(string) bool { return true })
}

// SmartUnloadUnused releases idle handles of low priority sounds only, so
// popular sounds stay ready
func (m *Manager) SmartUnloadUnused() int {
	return m.reclaim(func(id string) bool { return m.policy.PriorityOf(id).IsLow() })
}

func (m *Manager) reclaim(eligible func(soundID string) bool) int {
	var victims []*handle

	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id, h := range m.handles {
		if !h.playing && eligible(id) {
			ids = append(ids, id)
		}
	}
	for _, id := range m.policy.ReclaimOrder(ids) {
		h := m.handles[id]
		m.detachLocked(h)
		victims = append(victims, h)
	}
	m.mu.Unlock()

	for _, h := range victims {
		m.release(h, ReasonReclaim)
	}
	if len(victims) > 0 {
		m.logger.Info("Reclaimed idle sounds", zap.Int("count", len(victims)))
	}
	return len(victims)
}

// GetPlayingSounds returns the ids of playing sounds, sorted
func (m *Manager) GetPlayingSounds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.handles))
	for id, h := range m.handles {
		if h.playing {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsPlaying reports whether soundID is playing
func (m *Manager) IsPlaying(soundID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[soundID]
	return ok && h.playing
}

// IsLoaded reports whether soundID has a handle
func (m *Manager) IsLoaded(soundID string) bool {
	return m.isLoaded(soundID)
}

func (m *Manager) isLoaded(soundID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[soundID]
	return ok
}

// GetVolume returns the target volume of a loaded sound, or the catalog
// default when it is not loaded
func (m *Manager) GetVolume(soundID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[soundID]; ok {
		return h.volume.Level()
	}
	return m.catalog.DefaultVolume(soundID)
}

// LoadedSounds returns the ids of all loaded sounds, sorted
func (m *Manager) LoadedSounds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetMemoryUsage combines live handle counts with cache statistics
func (m *Manager) GetMemoryUsage() domain.MemoryUsage {
	m.mu.Lock()
	var total int64
	for _, h := range m.handles {
		total += h.res.EstimatedBytes()
	}
	count := len(m.handles)
	m.mu.Unlock()

	return domain.MemoryUsage{
		HandleCount:     count,
		EstimatedBytes:  total,
		EstimatedMemory: vo.MustFileSize(total).WholeMB(),
		CachedFileCount: m.cache.GetStats().CachedFileCount,
	}
}

// Close releases every handle and waits for background caching to finish
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	victims := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		victims = append(victims, h)
	}
	for _, h := range victims {
		m.detachLocked(h)
	}
	m.mu.Unlock()

	var firstErr error
	for _, h := range victims {
		if err := h.res.Unload(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unload %s: %w", h.soundID, err)
		}
		m.dispatcher.Dispatch(event.NewSoundUnloaded(h.soundID, ReasonShutdown))
	}

	m.cancelBase()
	m.background.Wait()
	return firstErr
}

// Wait blocks until background caching started by loads has finished
func (m *Manager) Wait() {
	m.background.Wait()
}
