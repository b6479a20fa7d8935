package port

import (
	"context"
	"time"

	"github.com/ambientflow/ambientmix/internal/domain"
)

// BlobRecord indexes one stored blob
type BlobRecord struct {
	Key        string
	Path       string
	Size       int64 // Original byte length
	StoredSize int64 // Bytes on disk after compression
	StoredAt   time.Time
}

// BlobIndex persists the key to blob mapping. Get returns domain.ErrNotFound
// for unknown keys.
type BlobIndex interface {
	GetBlob(ctx context.Context, key string) (*BlobRecord, error)
	UpsertBlob(ctx context.Context, rec *BlobRecord) error
	DeleteBlob(ctx context.Context, key string) error
	ListBlobs(ctx context.Context) ([]*BlobRecord, error)
	DeleteAllBlobs(ctx context.Context) error
}

// EntryRepository persists per-sound cache metadata
type EntryRepository interface {
	ListEntries(ctx context.Context) ([]*domain.CacheEntryMeta, error)
	UpsertEntry(ctx context.Context, meta *domain.CacheEntryMeta) error
	// ResetSizes sets every entry's size to zero
	ResetSizes(ctx context.Context) error
	// ResetEntries sets every entry's size to zero and its last use to lastUsedAt
	ResetEntries(ctx context.Context, lastUsedAt time.Time) error
}

// Store groups the repositories backed by one database
type Store interface {
	Blobs() BlobIndex
	Entries() EntryRepository
	Ping(ctx context.Context) error
	Close() error
}
