package maintenance

import (
	"errors"
	"testing"

	"github.com/vertextoedge/media-cache/internal/domain/service"
	"github.com/vertextoedge/media-cache/internal/port"
)

func TestSpaceManager_CheckSpace(t *testing.T) {
	tests := []struct {
		name             string
		maxCacheSize     uint64
		maxDiskUsagePct  float64
		cacheSize        uint64
		diskUsedPct      float64
		wantEvict        bool
		wantLimitedCache bool
		wantLimitedDisk  bool
		wantOverLimit    uint64
	}{
		{
			name:            "well under limits",
			maxCacheSize:    10 << 30,
			maxDiskUsagePct: 80,
			cacheSize:       1 << 30,
			diskUsedPct:     40,
		},
		{
			name:             "over cache size",
			maxCacheSize:     1 << 30,
			maxDiskUsagePct:  80,
			cacheSize:        (1 << 30) + 500,
			diskUsedPct:      40,
			wantEvict:        true,
			wantLimitedCache: true,
			wantOverLimit:    500,
		},
		{
			name:             "exactly at cache limit - still ok",
			maxCacheSize:     1 << 30,
			maxDiskUsagePct:  80,
			cacheSize:        1 << 30,
			diskUsedPct:      40,
			wantLimitedCache: false,
		},
		{
			name:            "disk at limit",
			maxCacheSize:    10 << 30,
			maxDiskUsagePct: 80,
			cacheSize:       1 << 30,
			diskUsedPct:     80,
			wantEvict:       true,
			wantLimitedDisk: true,
		},
		{
			name:            "unlimited cache size",
			maxCacheSize:    0,
			maxDiskUsagePct: 80,
			cacheSize:       1 << 40,
			diskUsedPct:     10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newMockFileSystem()
			fs.sizes["x"] = tt.cacheSize
			fs.diskUsage = &port.DiskUsage{Total: 100, Used: uint64(tt.diskUsedPct), UsedPct: tt.diskUsedPct}

			sm := NewSpaceManager(fs, service.NewCachePolicy(0, tt.maxCacheSize, tt.maxDiskUsagePct))
			result, err := sm.CheckSpace()
			if err != nil {
				t.Fatalf("CheckSpace() error = %v", err)
			}

			if result.NeedsEviction() != tt.wantEvict {
				t.Errorf("NeedsEviction() = %v, want %v", result.NeedsEviction(), tt.wantEvict)
			}
			if result.LimitedByCacheSize != tt.wantLimitedCache {
				t.Errorf("LimitedByCacheSize = %v, want %v", result.LimitedByCacheSize, tt.wantLimitedCache)
			}
			if result.LimitedByDiskUsage != tt.wantLimitedDisk {
				t.Errorf("LimitedByDiskUsage = %v, want %v", result.LimitedByDiskUsage, tt.wantLimitedDisk)
			}
			if result.BytesOverLimit != tt.wantOverLimit {
				t.Errorf("BytesOverLimit = %v, want %v", result.BytesOverLimit, tt.wantOverLimit)
			}
			if result.MaxCacheSizeBytes != tt.maxCacheSize {
				t.Errorf("MaxCacheSizeBytes = %v, want %v", result.MaxCacheSizeBytes, tt.maxCacheSize)
			}
			if result.CacheSizeBytes != tt.cacheSize {
				t.Errorf("CacheSizeBytes = %v, want %v", result.CacheSizeBytes, tt.cacheSize)
			}
		})
	}
}

func TestSpaceManager_Error(t *testing.T) {
	fs := newMockFileSystem()
	fs.err = errors.New("statfs failed")

	sm := NewSpaceManager(fs, service.NewCachePolicy(0, 100, 90))
	if _, err := sm.CheckSpace(); err == nil {
		t.Error("CheckSpace() expected error")
	}
}
