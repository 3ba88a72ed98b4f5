package service

import (
	"time"
)

// CachePolicy is a domain service that decides when cached resources expire
// or must be evicted
type CachePolicy struct {
	maxCacheAge     time.Duration
	maxCacheSize    uint64
	maxDiskUsagePct float64
}

// NewCachePolicy creates a new CachePolicy.
// A zero maxCacheAge or maxCacheSize disables that limit.
func NewCachePolicy(maxCacheAge time.Duration, maxCacheSize uint64, maxDiskUsagePct float64) *CachePolicy {
	return &CachePolicy{
		maxCacheAge:     maxCacheAge,
		maxCacheSize:    maxCacheSize,
		maxDiskUsagePct: maxDiskUsagePct,
	}
}

// SpaceCheckResult contains the result of a space check
type SpaceCheckResult struct {
	LimitedByCacheSize bool
	LimitedByDiskUsage bool
	CurrentCacheSize   uint64
	CurrentDiskUsage   float64
	BytesOverLimit     uint64
}

// NeedsEviction returns true if either limit is exceeded
func (r SpaceCheckResult) NeedsEviction() bool {
	return r.LimitedByCacheSize || r.LimitedByDiskUsage
}

// IsExpired returns true if a resource last accessed at lastAccess is too old
func (cp *CachePolicy) IsExpired(lastAccess, now time.Time) bool {
	if cp.maxCacheAge <= 0 {
		return false
	}
	return now.Sub(lastAccess) > cp.maxCacheAge
}

// CheckSpace compares the current cache size and disk usage against the limits
func (cp *CachePolicy) CheckSpace(currentCacheSize uint64, currentDiskUsagePct float64) SpaceCheckResult {
	result := SpaceCheckResult{
		CurrentCacheSize: currentCacheSize,
		CurrentDiskUsage: currentDiskUsagePct,
	}

	if cp.maxCacheSize > 0 && currentCacheSize > cp.maxCacheSize {
		result.LimitedByCacheSize = true
		result.BytesOverLimit = currentCacheSize - cp.maxCacheSize
	}

	if cp.maxDiskUsagePct > 0 && currentDiskUsagePct >= cp.maxDiskUsagePct {
		result.LimitedByDiskUsage = true
	}

	return result
}

// GetMaxCacheAge returns the maximum cache age
func (cp *CachePolicy) GetMaxCacheAge() time.Duration {
	return cp.maxCacheAge
}

// GetMaxCacheSize returns the maximum cache size in bytes, 0 if unlimited
func (cp *CachePolicy) GetMaxCacheSize() uint64 {
	return cp.maxCacheSize
}

// GetMaxDiskUsagePct returns the maximum disk usage percentage
func (cp *CachePolicy) GetMaxDiskUsagePct() float64 {
	return cp.maxDiskUsagePct
}
