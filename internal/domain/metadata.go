package domain

import (
	"time"
)

// UnknownContentLength marks a resource whose total length has not been observed yet
const UnknownContentLength int64 = -1

// CacheMetadata is the durable record kept for one cached resource.
//
// It is exclusively owned by the MediaWorker of that resource. Observers
// only ever receive a Snapshot.
type CacheMetadata struct {
	URL                string
	ContentLength      int64
	ContentType        string
	ByteRangeSupported bool
	Segments           SegmentIndex

	// Transfer statistics, accumulated across transfers
	BytesWritten      uint64
	WriteDuration     time.Duration
	LastWriteDuration time.Duration
}

// NewCacheMetadata creates an empty record for a resource
func NewCacheMetadata(url string) *CacheMetadata {
	return &CacheMetadata{
		URL:           url,
		ContentLength: UnknownContentLength,
	}
}

// HasContentInfo returns true once response headers have populated the record
func (m *CacheMetadata) HasContentInfo() bool {
	return m.ContentLength >= 0
}

// SetContentInfo records what a response header revealed about the resource.
// A changed length invalidates cached bytes beyond the new end.
func (m *CacheMetadata) SetContentInfo(length int64, contentType string, rangeSupported bool) {
	if length >= 0 && m.ContentLength != length {
		m.Segments.Clip(uint64(length))
	}
	m.ContentLength = length
	m.ContentType = contentType
	m.ByteRangeSupported = rangeSupported
}

// AddCache marks r as cached
func (m *CacheMetadata) AddCache(r ByteRange) {
	m.Segments.AddCache(r)
}

// CachedBytes returns how many bytes of the resource are cached
func (m *CacheMetadata) CachedBytes() uint64 {
	return m.Segments.CachedBytes()
}

// Progress returns the cached fraction of the resource in [0, 1].
// It is 0 while the length is unknown.
func (m *CacheMetadata) Progress() float64 {
	if m.ContentLength <= 0 {
		return 0
	}
	p := float64(m.CachedBytes()) / float64(m.ContentLength)
	if p > 1 {
		return 1
	}
	return p
}

// IsComplete returns true when every byte of a known-length resource is cached
func (m *CacheMetadata) IsComplete() bool {
	if m.ContentLength < 0 {
		return false
	}
	return m.Segments.Contains(NewByteRange(0, uint64(m.ContentLength)))
}

// AddWriteStats accumulates the statistics of one finished transfer
func (m *CacheMetadata) AddWriteStats(bytes uint64, spent time.Duration) {
	m.BytesWritten += bytes
	m.WriteDuration += spent
	m.LastWriteDuration = spent
}

// DownloadSpeed returns the average transfer rate in bytes per second
func (m *CacheMetadata) DownloadSpeed() float64 {
	if m.WriteDuration <= 0 {
		return 0
	}
	return float64(m.BytesWritten) / m.WriteDuration.Seconds()
}

// Snapshot returns a deep copy that is safe to hand to other goroutines
func (m *CacheMetadata) Snapshot() *CacheMetadata {
	c := *m
	c.Segments = m.Segments.Clone()
	return &c
}
