package port

import (
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// SparseFile is the random-access backing store of one resource.
// Reads may run concurrently with writes; writes are serialized by the caller.
type SparseFile interface {
	// ReadAt reads len(p) bytes at off. It returns fewer bytes only at end of file.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes p at off
	WriteAt(p []byte, off int64) (int, error)

	// Truncate sets the file size to exactly size bytes and syncs it
	Truncate(size int64) error

	// Size returns the current file size
	Size() (int64, error)

	// Sync flushes written data to durable storage
	Sync() error

	// Close releases both file handles
	Close() error
}

// MetadataCodec serializes cache metadata records
type MetadataCodec interface {
	Encode(meta *domain.CacheMetadata) ([]byte, error)
	Decode(data []byte) (*domain.CacheMetadata, error)
}

// CacheFileSystem defines the interface for cache directory operations
type CacheFileSystem interface {
	// RootDir returns the cache root directory
	RootDir() string

	// DataPath returns the data file path for a canonical URL
	DataPath(url string) string

	// MetaPath returns the metadata sidecar path for a canonical URL
	MetaPath(url string) string

	// OpenData opens or creates the data file of a resource
	OpenData(url string) (SparseFile, error)

	// LoadMetadata reads the metadata record of a resource.
	// Returns domain.ErrNotFound if no record exists.
	LoadMetadata(url string) (*domain.CacheMetadata, error)

	// SaveMetadata durably replaces the metadata record of a resource
	SaveMetadata(meta *domain.CacheMetadata) error

	// ListMetadata returns every metadata record in the cache directory
	ListMetadata() ([]*domain.CacheMetadata, error)

	// Remove deletes the data file and metadata record of a resource.
	// Returns the number of bytes freed.
	Remove(url string) (uint64, error)

	// GetCacheSize returns the total on-disk size of cached data files
	GetCacheSize() (uint64, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanStaleFiles removes leftover temp files and data files without a
	// metadata record older than the specified duration.
	// Returns the number of files deleted
	CleanStaleFiles(olderThan time.Duration) (int, error)
}
