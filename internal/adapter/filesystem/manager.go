package filesystem

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ambientflow/ambientmix/internal/port"
)

const (
	blobExt = ".blob"
	tempExt = ".writing"
)

// zstd frame magic number, little endian
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Manager stores cache blobs as files under a root directory. Blobs are
// zstd compressed when that makes them smaller and stored raw otherwise.
type Manager struct {
	rootDir string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Ensure Manager implements port.BlobStore
var _ port.BlobStore = (*Manager)(nil)

// NewManager creates a new filesystem manager with the default compression level
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithLevel(rootDir, int(zstd.SpeedFastest))
}

// NewManagerWithLevel creates a new filesystem manager. level maps onto
// zstd.EncoderLevel (1 fastest, 4 best compression).
func NewManagerWithLevel(rootDir string, level int) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		level = int(zstd.SpeedFastest)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Manager{
		rootDir: rootDir,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Close releases the codec resources
func (m *Manager) Close() error {
	m.decoder.Close()
	return m.encoder.Close()
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// BlobPath returns the local path for a key. Files are sharded by the first
// byte of the key hash.
func (m *Manager) BlobPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(m.rootDir, name[:2], name+blobExt)
}

// WriteBlob writes data to a temp file and renames it into place
func (m *Manager) WriteBlob(key string, data []byte) (string, int64, error) {
	blobPath := m.BlobPath(key)

	if err := os.MkdirAll(filepath.Dir(blobPath), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	payload := m.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(payload) >= len(data) {
		payload = data
	}

	tempPath := blobPath + tempExt
	if err := os.WriteFile(tempPath, payload, 0644); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, blobPath); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return blobPath, int64(len(payload)), nil
}

// ReadBlob reads and, when needed, decompresses a blob
func (m *Manager) ReadBlob(blobPath string) ([]byte, error) {
	payload, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(payload, zstdMagic) {
		return payload, nil
	}
	data, err := m.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", blobPath, err)
	}
	return data, nil
}

// DeleteFile removes a cached file
func (m *Manager) DeleteFile(blobPath string) error {
	if err := os.Remove(blobPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileExists checks if a cached file exists
func (m *Manager) FileExists(blobPath string) bool {
	_, err := os.Stat(blobPath)
	return err == nil
}

// GetCacheSize returns total size of stored blobs
func (m *Manager) GetCacheSize() (int64, error) {
	var size int64
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, blobExt) {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == tempExt && info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
