package service

import (
	"github.com/ambientflow/ambientmix/internal/domain/vo"
)

// CachePolicy is a domain service that decides cache admission. Admission is
// refused rather than making room: existing entries are never evicted to fit
// a new one.
type CachePolicy struct {
	maxCacheSize vo.FileSize
}

// NewCachePolicy creates a new CachePolicy
func NewCachePolicy(maxCacheSizeMB float64) *CachePolicy {
	return &CachePolicy{
		maxCacheSize: vo.FileSizeFromMB(maxCacheSizeMB),
	}
}

// NewCachePolicyFromBytes creates a CachePolicy from a byte budget
func NewCachePolicyFromBytes(maxCacheSize int64) *CachePolicy {
	return &CachePolicy{
		maxCacheSize: vo.MustFileSize(maxCacheSize),
	}
}

// SpaceCheckResult contains the result of an admission check
type SpaceCheckResult struct {
	HasSpace         bool
	AvailableSpace   vo.FileSize
	CurrentCacheSize vo.FileSize
	ProjectedSize    vo.FileSize
}

// CheckSpace checks whether an entry of fileSize fits next to currentCacheSize.
// An entry that lands exactly on the budget is admitted.
func (cp *CachePolicy) CheckSpace(fileSize, currentCacheSize vo.FileSize) SpaceCheckResult {
	result := SpaceCheckResult{
		CurrentCacheSize: currentCacheSize,
		ProjectedSize:    currentCacheSize.Add(fileSize),
		AvailableSpace:   cp.maxCacheSize.Subtract(currentCacheSize),
	}
	result.HasSpace = !result.ProjectedSize.ExceedsLimit(cp.maxCacheSize)
	return result
}

// GetMaxCacheSize returns the maximum cache size
func (cp *CachePolicy) GetMaxCacheSize() vo.FileSize {
	return cp.maxCacheSize
}
