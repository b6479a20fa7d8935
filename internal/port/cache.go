package port

import (
	"context"

	"github.com/ambientflow/ambientmix/internal/domain"
)

// ByteStore is a persistent key to bytes store for audio assets.
// Backend failures are absorbed: reads report absence, writes report false.
type ByteStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, data []byte) bool
	Remove(ctx context.Context, key string) bool
	RemoveAll(ctx context.Context) bool
	ListKeys(ctx context.Context) []string
}

// AssetCache is the view of the cache orchestrator used by playback
type AssetCache interface {
	// GetCachedAsset returns cached bytes without touching the network
	GetCachedAsset(ctx context.Context, soundID, url string) ([]byte, bool)
	// CacheAsset fetches and stores an asset, returning whether it is cached
	CacheAsset(ctx context.Context, soundID, url string) bool
	// IsOffline reports the current connectivity state
	IsOffline() bool
	// GetStats returns a snapshot of the cache statistics
	GetStats() domain.CacheStats
}
