package domain

import (
	"time"

	"github.com/ambientflow/ambientmix/internal/domain/vo"
)

// CacheEntryMeta tracks one known sound in the byte cache
type CacheEntryMeta struct {
	SoundID    string      `json:"sound_id"`
	Priority   vo.Priority `json:"priority"`
	Preload    bool        `json:"preload"`
	URL        string      `json:"url,omitempty"` // Key the asset was last stored under
	SizeBytes  int64       `json:"size_bytes"` // 0 until the asset is stored
	LastUsedAt time.Time   `json:"last_used_at"`
}

// IsCached reports whether the entry currently has bytes in the cache
func (m *CacheEntryMeta) IsCached() bool {
	return m.SizeBytes > 0
}

// Touch marks the entry as used now
func (m *CacheEntryMeta) Touch(now time.Time) {
	m.LastUsedAt = now
}

// IsStale returns true when a low priority entry has not been used for maxAge
func (m *CacheEntryMeta) IsStale(now time.Time, maxAge time.Duration) bool {
	return m.Priority.IsLow() && now.Sub(m.LastUsedAt) > maxAge
}

// CacheStats represents aggregate cache statistics
type CacheStats struct {
	TotalSizeBytes  int64   `json:"total_size_bytes"`
	CachedFileCount int     `json:"cached_file_count"`
	TotalRequests   int64   `json:"total_requests"`
	CacheHits       int64   `json:"cache_hits"`
	HitRate         float64 `json:"hit_rate"` // Percentage in [0, 100]
}

// RecordLookup counts one cache lookup and refreshes the hit rate
func (s *CacheStats) RecordLookup(hit bool) {
	s.TotalRequests++
	if hit {
		s.CacheHits++
	}
	s.HitRate = float64(s.CacheHits) / float64(s.TotalRequests) * 100
}

// MemoryUsage summarizes the resources held by loaded playback handles
type MemoryUsage struct {
	HandleCount     int    `json:"audio_instances"`
	EstimatedBytes  int64  `json:"estimated_bytes"`
	EstimatedMemory string `json:"estimated_memory"`
	CachedFileCount int    `json:"cached_files"`
}
