package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/domain/event"
	"github.com/ambientflow/ambientmix/internal/domain/service"
	"github.com/ambientflow/ambientmix/internal/domain/vo"
	"github.com/ambientflow/ambientmix/internal/metrics"
	"github.com/ambientflow/ambientmix/internal/port"
)

// Removal reasons reported in AssetRemoved events
const (
	ReasonStale      = "stale"
	ReasonOverBudget = "over_budget"
	ReasonReplaced   = "replaced"
)

// Config contains orchestrator configuration
type Config struct {
	MaxSizeBytes       int64
	StaleAfter         time.Duration
	PreloadConcurrency int
	FlightTimeout      time.Duration // Bounds a shared fetch once callers stop waiting
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSizeBytes:       30 * 1024 * 1024, // 30MB
		StaleAfter:         7 * 24 * time.Hour,
		PreloadConcurrency: 4,
		FlightTimeout:      time.Minute,
	}
}

// Orchestrator decides what gets cached, tracks per-sound metadata and usage
// statistics, and enforces the cache size budget on admission.
type Orchestrator struct {
	config       *Config
	catalog      *domain.Catalog
	policy       *service.PriorityPolicy
	admission    *service.CachePolicy
	store        port.ByteStore
	entries      port.EntryRepository
	fetcher      port.Fetcher
	connectivity port.Connectivity
	dispatcher   event.EventDispatcher
	latency      *metrics.LatencyTracker
	logger       *zap.Logger

	flights singleflight.Group

	mu       sync.Mutex
	metas    map[string]*domain.CacheEntryMeta
	stats    domain.CacheStats
	reserved int64 // Bytes admitted but not yet written

	now func() time.Time
}

// Ensure Orchestrator implements port.AssetCache
var _ port.AssetCache = (*Orchestrator)(nil)

// Deps groups the collaborators of an Orchestrator. Entries, Connectivity,
// Dispatcher and Latency are optional.
type Deps struct {
	Catalog      *domain.Catalog
	Policy       *service.PriorityPolicy
	Store        port.ByteStore
	Entries      port.EntryRepository
	Fetcher      port.Fetcher
	Connectivity port.Connectivity
	Dispatcher   event.EventDispatcher
	Latency      *metrics.LatencyTracker
}

// New creates an orchestrator with one metadata entry per known sound id.
// Call Init to merge persisted metadata before serving requests.
func New(cfg *Config, deps Deps, logger *zap.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultConfig().MaxSizeBytes
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = 1
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = DefaultConfig().FlightTimeout
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

	o := &Orchestrator{
		config:       cfg,
		catalog:      deps.Catalog,
		policy:       deps.Policy,
		admission:    service.NewCachePolicyFromBytes(cfg.MaxSizeBytes),
		store:        deps.Store,
		entries:      deps.Entries,
		fetcher:      deps.Fetcher,
		connectivity: deps.Connectivity,
		dispatcher:   deps.Dispatcher,
		latency:      deps.Latency,
		logger:       logger,
		metas:        make(map[string]*domain.CacheEntryMeta),
		now:          time.Now,
	}

	started := o.now()
	ids := append(deps.Catalog.IDs(), deps.Policy.KnownIDs()...)
	for _, id := range ids {
		if _, ok := o.metas[id]; ok {
			continue
		}
		c := deps.Policy.Classify(id)
		o.metas[id] = &domain.CacheEntryMeta{
			SoundID:    id,
			Priority:   c.Priority,
			Preload:    c.Preload,
			LastUsedAt: started,
		}
	}
	o.recomputeLocked()
	return o
}

// Init merges persisted metadata and reconciles it with the keys actually
// present in the byte store. Each stored blob is accounted to at most one
// sound, the budget is enforced over what survives, and blobs no sound
// accounts for are removed. Failures are logged; the orchestrator stays
// usable with fresh metadata.
func (o *Orchestrator) Init(ctx context.Context) {
	if o.entries != nil {
		persisted, err := o.entries.ListEntries(ctx)
		if err != nil {
			o.logger.Warn("Failed to load cache metadata", zap.Error(err))
		}
		o.mu.Lock()
		for _, p := range persisted {
			m, ok := o.metas[p.SoundID]
			if !ok {
				continue
			}
			// Priority always comes from the policy.
			m.URL = p.URL
			m.SizeBytes = p.SizeBytes
			if !p.LastUsedAt.IsZero() {
				m.LastUsedAt = p.LastUsedAt
			}
		}
		o.mu.Unlock()
	}

	keys := o.store.ListKeys(ctx)
	stored := make(map[string]bool, len(keys))
	for _, key := range keys {
		stored[key] = true
	}

	var changed []domain.CacheEntryMeta
	var adopt []string
	claimed := make(map[string]string)

	o.mu.Lock()
	ids := make([]string, 0, len(o.metas))
	for id := range o.metas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := o.metas[id]
		if !m.IsCached() {
			continue
		}
		if !stored[m.URL] {
			m.SizeBytes = 0
			changed = append(changed, *m)
			continue
		}
		if claimed[m.URL] != "" {
			// Another sound already accounts for this blob.
			m.SizeBytes = 0
			m.URL = ""
			changed = append(changed, *m)
			continue
		}
		claimed[m.URL] = id
	}
	for _, id := range ids {
		if o.metas[id].IsCached() {
			continue
		}
		if url := o.urlForLocked(id); url != "" && stored[url] && claimed[url] == "" {
			claimed[url] = id
			adopt = append(adopt, id)
		}
	}
	o.mu.Unlock()

	// Blobs stored under a sound's URL without a size on record are
	// adopted so they count against the budget.
	for _, id := range adopt {
		url := o.assetURL(id)
		data, ok := o.store.Get(ctx, url)
		if !ok {
			delete(claimed, url)
			continue
		}
		o.mu.Lock()
		m := o.metas[id]
		m.URL = url
		m.SizeBytes = int64(len(data))
		changed = append(changed, *m)
		o.mu.Unlock()
	}

	type victim struct {
		id, url string
		size    int64
	}
	var evicted []victim

	o.mu.Lock()
	keep := make([]*domain.CacheEntryMeta, 0, len(claimed))
	for _, m := range o.metas {
		if m.IsCached() {
			keep = append(keep, m)
		}
	}
	sort.Slice(keep, func(i, j int) bool { return lessValuable(keep[j], keep[i]) })
	var total int64
	for _, m := range keep {
		check := o.admission.CheckSpace(vo.MustFileSize(m.SizeBytes), vo.MustFileSize(total))
		if check.HasSpace {
			total += m.SizeBytes
			continue
		}
		evicted = append(evicted, victim{id: m.SoundID, url: m.URL, size: m.SizeBytes})
		m.SizeBytes = 0
		changed = append(changed, *m)
	}
	var orphans []string
	for _, key := range keys {
		if claimed[key] == "" {
			orphans = append(orphans, key)
		}
	}
	o.recomputeLocked()
	stats := o.stats
	o.mu.Unlock()

	for i := range changed {
		o.persist(ctx, &changed[i])
	}

	for _, v := range evicted {
		if !o.store.Remove(ctx, v.url) {
			o.logger.Warn("Failed to remove asset over budget", zap.String("sound_id", v.id))
			continue
		}
		o.logger.Info("Removed asset over budget",
			zap.String("sound_id", v.id),
			zap.String("size", vo.MustFileSize(v.size).String()))
		o.dispatcher.Dispatch(event.NewAssetRemoved(v.id, v.size, ReasonOverBudget))
	}
	for _, key := range orphans {
		if !o.store.Remove(ctx, key) {
			o.logger.Warn("Failed to remove unreferenced asset", zap.String("key", key))
			continue
		}
		o.logger.Debug("Removed unreferenced asset", zap.String("key", key))
	}

	o.logger.Info("Cache metadata initialized",
		zap.Int("known_sounds", len(o.metas)),
		zap.Int("cached_files", stats.CachedFileCount),
		zap.String("cache_size", vo.MustFileSize(stats.TotalSizeBytes).String()),
		zap.Int("over_budget", len(evicted)),
		zap.Int("unreferenced", len(orphans)))
}

// GetCachedAsset returns the cached bytes for url without any network
// activity. Every call counts as a lookup for the hit rate. A hit only
// refreshes the sound's last use; sizes are recorded by CacheAsset and Init.
func (o *Orchestrator) GetCachedAsset(ctx context.Context, soundID, url string) ([]byte, bool) {
	start := o.now()
	data, ok := o.store.Get(ctx, url)
	o.latency.Since(metrics.OpGet, start)

	var touched *domain.CacheEntryMeta
	o.mu.Lock()
	o.stats.RecordLookup(ok)
	if m, known := o.metas[soundID]; known && ok {
		m.Touch(o.now())
		cp := *m
		touched = &cp
	}
	o.mu.Unlock()

	if touched != nil {
		o.persist(ctx, touched)
	}
	o.dispatcher.Dispatch(event.NewCacheLookup(soundID, ok))

	if !ok {
		o.logger.Debug("Cache miss", zap.String("sound_id", soundID))
	}
	return data, ok
}

// CacheAsset makes sure the asset at url is in the byte cache. It returns
// true when the bytes are already cached or were fetched and admitted.
// Offline state, fetch failures and budget refusals return false.
// Concurrent calls for the same url share one fetch.
func (o *Orchestrator) CacheAsset(ctx context.Context, soundID, url string) bool {
	return o.cache(ctx, soundID, url) == nil
}

// cache is CacheAsset with the reason for a refusal. Unknown sounds and
// offline state yield skippable errors.
func (o *Orchestrator) cache(ctx context.Context, soundID, url string) error {
	o.mu.Lock()
	_, known := o.metas[soundID]
	o.mu.Unlock()
	if !known {
		o.logger.Warn("Unknown sound, not caching", zap.String("sound_id", soundID))
		return domain.ErrSkipUnknownSound
	}

	// The shared work outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := o.flights.DoChan(url, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.FlightTimeout)
		defer cancel()
		return nil, o.cacheAsset(fctx, soundID, url)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) cacheAsset(ctx context.Context, soundID, url string) error {
	if _, ok := o.store.Get(ctx, url); ok {
		var touched domain.CacheEntryMeta
		o.mu.Lock()
		o.stats.RecordLookup(true)
		m := o.metas[soundID]
		m.Touch(o.now())
		touched = *m
		o.mu.Unlock()

		o.persist(ctx, &touched)
		return nil
	}

	if o.IsOffline() {
		o.logger.Debug("Offline, skipping fetch", zap.String("sound_id", soundID))
		return domain.ErrSkipOffline
	}
	if o.fetcher == nil {
		return domain.ErrSkipOffline
	}

	start := o.now()
	res, err := o.fetcher.Fetch(ctx, url)
	elapsed := o.now().Sub(start)
	o.latency.Record(metrics.OpFetch, elapsed)
	if err != nil {
		if !errors.Is(err, domain.ErrFetchFailed) {
			err = &domain.FetchError{URL: url, Err: err}
		}
		o.logger.Warn("Asset fetch failed",
			zap.String("sound_id", soundID),
			zap.String("url", url),
			zap.Error(err))
		o.dispatcher.Dispatch(event.NewAssetFetchFailed(soundID, url, err.Error()))
		return err
	}
	if !res.OK {
		fetchErr := &domain.FetchError{URL: url, StatusCode: res.StatusCode}
		o.logger.Warn("Asset fetch returned non-ok status",
			zap.String("sound_id", soundID),
			zap.Int("status", res.StatusCode))
		o.dispatcher.Dispatch(event.NewAssetFetchFailed(soundID, url, fetchErr.Error()))
		return fetchErr
	}

	size := int64(len(res.Data))

	o.mu.Lock()
	current := o.stats.TotalSizeBytes + o.reserved
	check := o.admission.CheckSpace(vo.MustFileSize(size), vo.MustFileSize(current))
	if !check.HasSpace {
		o.mu.Unlock()
		limit := o.admission.GetMaxCacheSize()
		o.logger.Warn("Cache budget exceeded, not caching",
			zap.String("sound_id", soundID),
			zap.String("size", vo.MustFileSize(size).String()),
			zap.String("current", check.CurrentCacheSize.String()),
			zap.String("max", limit.String()))
		o.dispatcher.Dispatch(event.NewAdmissionRefused(soundID, size, current, limit.Bytes()))
		return fmt.Errorf("%w: %s needs %s, %s of %s in use", domain.ErrAdmissionRefused,
			soundID, vo.MustFileSize(size), check.CurrentCacheSize, limit)
	}
	o.reserved += size
	o.mu.Unlock()

	putStart := o.now()
	stored := o.store.Put(ctx, url, res.Data)
	o.latency.Since(metrics.OpPut, putStart)

	var updated domain.CacheEntryMeta
	var replaced string
	var replacedSize int64
	o.mu.Lock()
	o.reserved -= size
	if stored {
		m := o.metas[soundID]
		if m.URL != "" && m.URL != url && !o.sharedLocked(soundID, m.URL) {
			replaced, replacedSize = m.URL, m.SizeBytes
		}
		m.URL = url
		m.SizeBytes = size
		m.Touch(o.now())
		o.recomputeLocked()
		updated = *m
	}
	o.mu.Unlock()

	if !stored {
		o.logger.Warn("Failed to store asset", zap.String("sound_id", soundID))
		return fmt.Errorf("%w: store %s", domain.ErrBackendUnavailable, soundID)
	}

	o.persist(ctx, &updated)
	o.dispatcher.Dispatch(event.NewAssetCached(soundID, url, size, elapsed))

	// The sound moved to a new URL; its previous blob is no longer accounted.
	if replaced != "" {
		if o.store.Remove(ctx, replaced) {
			o.dispatcher.Dispatch(event.NewAssetRemoved(soundID, replacedSize, ReasonReplaced))
		} else {
			o.logger.Warn("Failed to remove replaced asset",
				zap.String("sound_id", soundID),
				zap.String("url", replaced))
		}
	}
	return nil
}

// PreloadHighPriority caches every high priority sound marked for preload.
// All attempts run to completion; individual failures are logged and do not
// stop the others.
func (o *Orchestrator) PreloadHighPriority(ctx context.Context) {
	o.mu.Lock()
	ids := make([]string, 0, len(o.metas))
	for id := range o.metas {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	targets := o.policy.PreloadSet(ids)
	if len(targets) == 0 {
		return
	}

	o.logger.Info("Preloading high priority sounds", zap.Strings("sounds", targets))

	var (
		mu     sync.Mutex
		failed []error
	)
	var g errgroup.Group
	g.SetLimit(o.config.PreloadConcurrency)
	for _, id := range targets {
		id := id
		url := o.assetURL(id)
		if url == "" {
			o.logger.Debug("No asset URL for preload target", zap.String("sound_id", id))
			continue
		}
		g.Go(func() error {
			if err := o.cache(ctx, id, url); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range failed {
		if domain.IsSkippable(err) {
			o.logger.Debug("Preload skipped", zap.Error(err))
			continue
		}
		o.logger.Warn("Preload failed", zap.Error(err))
	}
	o.logger.Info("Preload finished",
		zap.Int("targets", len(targets)),
		zap.Int("failed", len(failed)))
}

// CleanupStale removes low priority entries that have not been used within
// the stale window and returns how many cached assets were removed
func (o *Orchestrator) CleanupStale(ctx context.Context) int {
	now := o.now()

	type victim struct {
		id, url string
		size    int64
	}
	var victims []victim

	o.mu.Lock()
	for id, m := range o.metas {
		if !m.IsStale(now, o.config.StaleAfter) {
			continue
		}
		url := m.URL
		if url == "" {
			url = o.urlForLocked(id)
		}
		if o.sharedLocked(id, url) {
			url = ""
		}
		victims = append(victims, victim{id: id, url: url, size: m.SizeBytes})
	}
	o.mu.Unlock()

	removed := 0
	for _, v := range victims {
		if v.url != "" && !o.store.Remove(ctx, v.url) {
			o.logger.Warn("Failed to remove stale asset", zap.String("sound_id", v.id))
			continue
		}

		var updated domain.CacheEntryMeta
		o.mu.Lock()
		m := o.metas[v.id]
		m.SizeBytes = 0
		o.recomputeLocked()
		updated = *m
		o.mu.Unlock()

		if v.size > 0 {
			removed++
			o.persist(ctx, &updated)
			o.dispatcher.Dispatch(event.NewAssetRemoved(v.id, v.size, ReasonStale))
		}
	}

	if removed > 0 {
		o.logger.Info("Removed stale cache entries", zap.Int("count", removed))
	}
	return removed
}

// Clear removes every cached asset and resets metadata and statistics
func (o *Orchestrator) Clear(ctx context.Context) bool {
	if !o.store.RemoveAll(ctx) {
		o.logger.Error("Failed to clear byte store")
		return false
	}

	now := o.now()
	o.mu.Lock()
	freed := o.stats.TotalSizeBytes
	for _, m := range o.metas {
		m.SizeBytes = 0
		m.URL = ""
		m.LastUsedAt = now
	}
	o.stats = domain.CacheStats{}
	o.recomputeLocked()
	o.mu.Unlock()

	if o.entries != nil {
		if err := o.entries.ResetEntries(ctx, now); err != nil {
			o.logger.Warn("Failed to reset cache metadata", zap.Error(err))
		}
	}

	o.dispatcher.Dispatch(event.NewCacheCleared(freed))
	o.logger.Info("Cache cleared", zap.String("freed", vo.MustFileSize(freed).String()))
	return true
}

// GetStats returns a snapshot of the cache statistics
func (o *Orchestrator) GetStats() domain.CacheStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// IsOffline reports whether connectivity is currently down
func (o *Orchestrator) IsOffline() bool {
	if o.connectivity == nil {
		return false
	}
	return !o.connectivity.Online()
}

// Priority returns the priority of a sound
func (o *Orchestrator) Priority(soundID string) vo.Priority {
	return o.policy.PriorityOf(soundID)
}

// ListCachedKeys returns the keys currently held by the byte store
func (o *Orchestrator) ListCachedKeys(ctx context.Context) []string {
	keys := o.store.ListKeys(ctx)
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of every metadata entry, cheapest to lose first:
// low priority before high, then least recently used
func (o *Orchestrator) Entries() []domain.CacheEntryMeta {
	o.mu.Lock()
	out := make([]domain.CacheEntryMeta, 0, len(o.metas))
	for _, m := range o.metas {
		out = append(out, *m)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return lessValuable(&out[i], &out[j]) })
	return out
}

// lessValuable orders a before b when a is cheaper to lose
func lessValuable(a, b *domain.CacheEntryMeta) bool {
	if !a.Priority.Equals(b.Priority) {
		return a.Priority.LowerThan(b.Priority)
	}
	if !a.LastUsedAt.Equal(b.LastUsedAt) {
		return a.LastUsedAt.Before(b.LastUsedAt)
	}
	return a.SoundID < b.SoundID
}

// Latency returns the tracker recording cache operation latencies
func (o *Orchestrator) Latency() *metrics.LatencyTracker {
	return o.latency
}

func (o *Orchestrator) assetURL(soundID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.urlForLocked(soundID)
}

// urlForLocked resolves the cache key for a sound: the recorded URL, or the
// catalog URL for sounds that were never stored
func (o *Orchestrator) urlForLocked(soundID string) string {
	if m, ok := o.metas[soundID]; ok && m.URL != "" {
		return m.URL
	}
	if s, ok := o.catalog.Lookup(soundID); ok {
		return o.catalog.AssetURL(s)
	}
	return ""
}

// sharedLocked reports whether a sound other than soundID accounts for url
func (o *Orchestrator) sharedLocked(soundID, url string) bool {
	for id, m := range o.metas {
		if id != soundID && m.IsCached() && m.URL == url {
			return true
		}
	}
	return false
}

func (o *Orchestrator) recomputeLocked() {
	var total int64
	count := 0
	for _, m := range o.metas {
		if m.IsCached() {
			total += m.SizeBytes
			count++
		}
	}
	o.stats.TotalSizeBytes = total
	o.stats.CachedFileCount = count
}

func (o *Orchestrator) persist(ctx context.Context, meta *domain.CacheEntryMeta) {
	if o.entries == nil {
		return
	}
	if err := o.entries.UpsertEntry(ctx, meta); err != nil {
		o.logger.Warn("Failed to persist cache metadata",
			zap.String("sound_id", meta.SoundID),
			zap.Error(err))
	}
}
