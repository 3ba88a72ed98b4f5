package port

// SpaceCheckResult contains detailed space usage information
type SpaceCheckResult struct {
	CacheSizeBytes     uint64
	MaxCacheSizeBytes  uint64
	DiskUsedPct        float64
	MaxDiskUsagePct    float64
	BytesOverLimit     uint64
	LimitedByCacheSize bool
	LimitedByDiskUsage bool
}

// NeedsEviction returns true if either limit is exceeded
func (r *SpaceCheckResult) NeedsEviction() bool {
	return r.LimitedByCacheSize || r.LimitedByDiskUsage
}

// SpaceManager defines the interface for space management operations
type SpaceManager interface {
	// CheckSpace reports current cache size and disk usage against the limits
	CheckSpace() (*SpaceCheckResult, error)
}
