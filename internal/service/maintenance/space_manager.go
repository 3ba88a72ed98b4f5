package maintenance

import (
	"github.com/vertextoedge/media-cache/internal/domain/service"
	"github.com/vertextoedge/media-cache/internal/metrics"
	"github.com/vertextoedge/media-cache/internal/port"
)

// SpaceManager compares the cache directory against the configured limits
type SpaceManager struct {
	fs     port.CacheFileSystem
	policy *service.CachePolicy
}

// NewSpaceManager creates a new SpaceManager
func NewSpaceManager(fs port.CacheFileSystem, policy *service.CachePolicy) *SpaceManager {
	return &SpaceManager{
		fs:     fs,
		policy: policy,
	}
}

// CheckSpace reports the current cache size and disk usage against the limits
func (sm *SpaceManager) CheckSpace() (*port.SpaceCheckResult, error) {
	cacheSize, err := sm.fs.GetCacheSize()
	if err != nil {
		return nil, err
	}
	usage, err := sm.fs.GetDiskUsage()
	if err != nil {
		return nil, err
	}

	metrics.CacheSizeBytes.Set(float64(cacheSize))
	metrics.DiskUsagePercent.Set(usage.UsedPct)

	check := sm.policy.CheckSpace(cacheSize, usage.UsedPct)
	return &port.SpaceCheckResult{
		CacheSizeBytes:     cacheSize,
		MaxCacheSizeBytes:  sm.policy.GetMaxCacheSize(),
		DiskUsedPct:        usage.UsedPct,
		MaxDiskUsagePct:    sm.policy.GetMaxDiskUsagePct(),
		BytesOverLimit:     check.BytesOverLimit,
		LimitedByCacheSize: check.LimitedByCacheSize,
		LimitedByDiskUsage: check.LimitedByDiskUsage,
	}, nil
}

// Ensure SpaceManager implements port.SpaceManager
var _ port.SpaceManager = (*SpaceManager)(nil)
