package port

import (
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// StorageUsage summarizes the blob directory and the volume holding it
type StorageUsage struct {
	OnDiskBytes int64      `json:"on_disk_bytes"`  // Bytes occupied by blobs after compression
	Disk        *DiskUsage `json:"disk,omitempty"` // Nil when the platform cannot report it
}

// BlobStore defines the interface for the on-disk part of the byte cache
type BlobStore interface {
	// RootDir returns the cache root directory
	RootDir() string

	// BlobPath returns the local path a key is stored under
	BlobPath(key string) string

	// WriteBlob stores data for key, replacing any previous blob atomically.
	// Returns: blob path, bytes occupied on disk, error
	WriteBlob(key string, data []byte) (string, int64, error)

	// ReadBlob returns the original bytes stored at path
	ReadBlob(path string) ([]byte, error)

	// DeleteFile removes a blob; a missing file is not an error
	DeleteFile(path string) error

	// FileExists checks if a blob exists
	FileExists(path string) bool

	// GetCacheSize returns total bytes occupied by blobs on disk
	GetCacheSize() (int64, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
