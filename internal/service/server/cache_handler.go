package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain/vo"
	"github.com/ambientflow/ambientmix/internal/util/ratelimiter"
)

// CacheHandler handles cache inspection and maintenance requests
type CacheHandler struct {
	cache   Cache
	storage StorageReporter
	limiter *ratelimiter.Limiter
	logger  *zap.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(cache Cache, storage StorageReporter, limiter *ratelimiter.Limiter, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{
		cache:   cache,
		storage: storage,
		limiter: limiter,
		logger:  logger,
	}
}

// HandleStats handles cache statistics requests
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.GetStats()
	resp := map[string]interface{}{
		"stats":      stats,
		"total_size": vo.MustFileSize(stats.TotalSizeBytes).String(),
		"online":     !h.cache.IsOffline(),
	}
	if h.storage != nil {
		usage := h.storage.Usage()
		resp["storage"] = usage
		resp["on_disk_size"] = humanize.IBytes(uint64(usage.OnDiskBytes))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleFiles lists the keys held by the byte store
func (h *CacheHandler) HandleFiles(w http.ResponseWriter, r *http.Request) {
	keys := h.cache.ListCachedKeys(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(keys),
		"files": keys,
	})
}

type entryView struct {
	SoundID   string `json:"sound_id"`
	Priority  string `json:"priority"`
	Preload   bool   `json:"preload"`
	Cached    bool   `json:"cached"`
	URL       string `json:"url,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
	LastUsed  string `json:"last_used"`
}

// HandleEntries lists per-sound cache metadata, cheapest to lose first
func (h *CacheHandler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	entries := h.cache.Entries()
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			SoundID:   e.SoundID,
			Priority:  e.Priority.String(),
			Preload:   e.Preload,
			Cached:    e.IsCached(),
			URL:       e.URL,
			SizeBytes: e.SizeBytes,
			Size:      vo.MustFileSize(e.SizeBytes).String(),
			LastUsed:  humanize.Time(e.LastUsedAt),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// HandlePreload preloads high priority sounds
func (h *CacheHandler) HandlePreload(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, "preload") {
		return
	}
	if h.cache.IsOffline() {
		http.Error(w, "Offline", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	h.cache.PreloadHighPriority(r.Context())
	stats := h.cache.GetStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":       stats,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// HandleCleanup removes stale low priority entries
func (h *CacheHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, "cleanup") {
		return
	}
	removed := h.cache.CleanupStale(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// HandleClear removes every cached asset
func (h *CacheHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if !h.cache.Clear(r.Context()) {
		http.Error(w, "Failed to clear cache", http.StatusInternalServerError)
		return
	}
	h.logger.Info("Cache cleared over HTTP", zap.String("request_id", RequestID(r.Context())))
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func (h *CacheHandler) allow(w http.ResponseWriter, op string) bool {
	if h.limiter == nil {
		return true
	}
	ok, wait := h.limiter.Allow(op)
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
	}
	return ok
}
