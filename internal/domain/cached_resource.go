package domain

import (
	"time"
)

// CachedResource is the catalog entry for one resource present in the cache directory
type CachedResource struct {
	URL           string
	DataPath      string
	MetaPath      string
	ContentLength int64
	ContentType   string
	CachedBytes   uint64
	CreatedAt     time.Time
	LastAccessAt  time.Time
	UpdatedAt     time.Time
}

// NewCachedResource creates a catalog entry from a metadata record
func NewCachedResource(meta *CacheMetadata, dataPath, metaPath string, now time.Time) *CachedResource {
	return &CachedResource{
		URL:           meta.URL,
		DataPath:      dataPath,
		MetaPath:      metaPath,
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		CachedBytes:   meta.CachedBytes(),
		CreatedAt:     now,
		LastAccessAt:  now,
		UpdatedAt:     now,
	}
}

// IsComplete returns true if every byte of a known-length resource is cached
func (r *CachedResource) IsComplete() bool {
	return r.ContentLength >= 0 && r.CachedBytes >= uint64(r.ContentLength)
}

// CacheStats represents cache statistics
type CacheStats struct {
	Resources         int64
	CompleteResources int64
	CachedSizeBytes   uint64
}
