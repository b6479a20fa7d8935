package bytestore

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/port"
)

// Config holds byte store configuration
type Config struct {
	MemoryEntries int // Decoded blobs kept in memory, 0 disables the memory layer
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{MemoryEntries: 8}
}

// Store is the persistent key to bytes cache for audio assets. Blobs live on
// disk, the key index and per-sound metadata in the database. Every backend
// failure is logged and turned into a miss or a false result.
type Store struct {
	config  *Config
	blobs   port.BlobStore
	index   port.BlobIndex
	entries port.EntryRepository
	memory  *lru.Cache[string, []byte]
	logger  *zap.Logger
}

// Ensure Store implements port.ByteStore
var _ port.ByteStore = (*Store)(nil)

// New creates a new byte store
func New(cfg *Config, blobs port.BlobStore, index port.BlobIndex, entries port.EntryRepository, logger *zap.Logger) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		config:  cfg,
		blobs:   blobs,
		index:   index,
		entries: entries,
		logger:  logger,
	}
	if cfg.MemoryEntries > 0 {
		// Only fails for a non-positive size.
		s.memory, _ = lru.New[string, []byte](cfg.MemoryEntries)
	}
	return s
}

// Get returns the bytes stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if s.memory != nil {
		if data, ok := s.memory.Get(key); ok {
			return data, true
		}
	}

	rec, err := s.index.GetBlob(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Blob index lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	data, err := s.blobs.ReadBlob(rec.Path)
	if err != nil {
		s.logger.Warn("Failed to read blob, dropping index record",
			zap.String("key", key),
			zap.String("path", rec.Path),
			zap.Error(err))
		if delErr := s.index.DeleteBlob(ctx, key); delErr != nil {
			s.logger.Warn("Failed to delete index record", zap.String("key", key), zap.Error(delErr))
		}
		return nil, false
	}

	if s.memory != nil {
		s.memory.Add(key, data)
	}
	return data, true
}

// Put stores data under key, replacing any previous value. It does not
// enforce a size budget.
func (s *Store) Put(ctx context.Context, key string, data []byte) bool {
	if s.memory != nil {
		s.memory.Remove(key)
	}

	path, stored, err := s.blobs.WriteBlob(key, data)
	if err != nil {
		s.logger.Error("Failed to write blob", zap.String("key", key), zap.Error(err))
		return false
	}

	rec := &port.BlobRecord{
		Key:        key,
		Path:       path,
		Size:       int64(len(data)),
		StoredSize: stored,
		StoredAt:   time.Now(),
	}
	if err := s.index.UpsertBlob(ctx, rec); err != nil {
		s.logger.Error("Failed to index blob", zap.String("key", key), zap.Error(err))
		if delErr := s.blobs.DeleteFile(path); delErr != nil {
			s.logger.Warn("Failed to delete orphaned blob", zap.String("path", path), zap.Error(delErr))
		}
		return false
	}

	s.logger.Debug("Stored blob",
		zap.String("key", key),
		zap.Int64("size", rec.Size),
		zap.Int64("stored_size", stored))
	return true
}

// Remove deletes the value stored under key. Removing a missing key succeeds.
func (s *Store) Remove(ctx context.Context, key string) bool {
	if s.memory != nil {
		s.memory.Remove(key)
	}

	rec, err := s.index.GetBlob(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("Blob index lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := s.index.DeleteBlob(ctx, key); err != nil {
		s.logger.Warn("Failed to delete index record", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := s.blobs.DeleteFile(rec.Path); err != nil {
		// The index no longer points at it; the file is only wasted space.
		s.logger.Warn("Failed to delete blob", zap.String("path", rec.Path), zap.Error(err))
	}
	return true
}

// RemoveAll deletes every stored value and zeroes the size of every cache entry
func (s *Store) RemoveAll(ctx context.Context) bool {
	if s.memory != nil {
		s.memory.Purge()
	}

	records, err := s.index.ListBlobs(ctx)
	if err != nil {
		s.logger.Error("Failed to list blobs", zap.Error(err))
		return false
	}

	ok := true
	for _, rec := range records {
		if err := s.blobs.DeleteFile(rec.Path); err != nil {
			s.logger.Warn("Failed to delete blob", zap.String("path", rec.Path), zap.Error(err))
		}
	}
	if err := s.index.DeleteAllBlobs(ctx); err != nil {
		s.logger.Error("Failed to clear blob index", zap.Error(err))
		ok = false
	}
	if err := s.entries.ResetSizes(ctx); err != nil {
		s.logger.Error("Failed to reset entry sizes", zap.Error(err))
		ok = false
	}

	s.logger.Info("Removed all blobs", zap.Int("count", len(records)))
	return ok
}

// ListKeys returns the stored keys, or an empty slice if the index is unavailable
func (s *Store) ListKeys(ctx context.Context) []string {
	records, err := s.index.ListBlobs(ctx)
	if err != nil {
		s.logger.Warn("Failed to list blobs", zap.Error(err))
		return []string{}
	}

	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key)
	}
	return keys
}

// SizeOf returns the original byte length stored under key
func (s *Store) SizeOf(ctx context.Context, key string) (int64, bool) {
	rec, err := s.index.GetBlob(ctx, key)
	if err != nil {
		return 0, false
	}
	return rec.Size, true
}

// CleanTemp removes abandoned partial writes older than olderThan
func (s *Store) CleanTemp(olderThan time.Duration) int {
	n, err := s.blobs.CleanOldTempFiles(olderThan)
	if err != nil {
		s.logger.Warn("Failed to clean temp files", zap.Error(err))
	}
	return n
}

// Usage reports space taken by blobs and by the volume they live on
func (s *Store) Usage() port.StorageUsage {
	var usage port.StorageUsage
	size, err := s.blobs.GetCacheSize()
	if err != nil {
		s.logger.Warn("Failed to measure blob directory", zap.Error(err))
	}
	usage.OnDiskBytes = size

	disk, err := s.blobs.GetDiskUsage()
	if err != nil {
		s.logger.Debug("Disk usage unavailable", zap.Error(err))
		return usage
	}
	usage.Disk = disk
	return usage
}
