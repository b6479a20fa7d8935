package vo

import (
	"errors"

	"github.com/dustin/go-humanize"
)

// FileSize represents a byte size value object.
// It provides type-safe operations and human-readable formatting.
type FileSize struct {
	bytes int64
}

const (
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
)

var (
	ErrNegativeSize = errors.New("file size cannot be negative")
)

// NewFileSize creates a new FileSize value object.
func NewFileSize(bytes int64) (FileSize, error) {
	if bytes < 0 {
		return FileSize{}, ErrNegativeSize
	}
	return FileSize{bytes: bytes}, nil
}

// MustFileSize creates a new FileSize, panicking if invalid.
func MustFileSize(bytes int64) FileSize {
	fs, err := NewFileSize(bytes)
	if err != nil {
		panic(err)
	}
	return fs
}

// ZeroSize returns a zero FileSize.
func ZeroSize() FileSize {
	return FileSize{bytes: 0}
}

// FileSizeFromMB creates a FileSize from megabytes.
func FileSizeFromMB(mb float64) FileSize {
	return FileSize{bytes: int64(mb * float64(MB))}
}

// Bytes returns the size in bytes.
func (fs FileSize) Bytes() int64 {
	return fs.bytes
}

// MB returns the size in megabytes.
func (fs FileSize) MB() float64 {
	return float64(fs.bytes) / float64(MB)
}

// IsZero returns true if the size is zero.
func (fs FileSize) IsZero() bool {
	return fs.bytes == 0
}

// ExceedsLimit checks if this size exceeds the given limit.
func (fs FileSize) ExceedsLimit(limit FileSize) bool {
	return fs.bytes > limit.bytes
}

// Add returns a new FileSize with the given size added.
func (fs FileSize) Add(other FileSize) FileSize {
	return FileSize{bytes: fs.bytes + other.bytes}
}

// Subtract returns a new FileSize with the given size subtracted.
// Returns zero if result would be negative.
func (fs FileSize) Subtract(other FileSize) FileSize {
	result := fs.bytes - other.bytes
	if result < 0 {
		return ZeroSize()
	}
	return FileSize{bytes: result}
}

// String returns a human-readable IEC representation, e.g. "30 MiB".
func (fs FileSize) String() string {
	return humanize.IBytes(uint64(fs.bytes))
}

// WholeMB returns the size rounded up to whole megabytes, e.g. "3MB".
func (fs FileSize) WholeMB() string {
	mb := (fs.bytes + MB - 1) / MB
	return humanize.Comma(mb) + "MB"
}
