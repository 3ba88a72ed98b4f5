package cacher

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/metrics"
	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/util/ratelimiter"
)

// rateSampleInterval is how often the recent transfer rate is sampled
const rateSampleInterval = 250 * time.Millisecond

// WorkerConfig contains media worker configuration
type WorkerConfig struct {
	// PersistInterval throttles metadata persistence during active writes
	PersistInterval time.Duration
}

// DefaultWorkerConfig returns default media worker configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PersistInterval: 2 * time.Second,
	}
}

// MediaWorker owns the cache store and metadata record of one resource.
//
// Writes, truncation and metadata mutation are serialized behind writeMu.
// Reads go through an independent file handle and never take writeMu.
// Observers receive snapshots of the metadata, never the live record.
type MediaWorker struct {
	url    string
	fs     port.CacheFileSystem
	file   port.SparseFile
	clock  port.Clock
	logger *zap.Logger

	persist *ratelimiter.Limiter

	writeMu sync.Mutex
	// lengthSet is true once the data file has been sized to the content length
	lengthSet bool
	closed    bool

	metaMu sync.RWMutex
	meta   *domain.CacheMetadata
	dirty  bool

	statsMu       sync.Mutex
	writing       bool
	writeStart    time.Time
	writeBytes    uint64
	rate          ewma.MovingAverage
	sampleStart   time.Time
	sampleBytes   uint64
	recentRateBps float64
}

// OpenMediaWorker loads or creates the cache record of url and opens its data file.
//
// Segments beyond the actual size of the data file are dropped, so a file
// truncated or removed behind the cache's back turns into cache misses.
func OpenMediaWorker(url string, fs port.CacheFileSystem, clock port.Clock, cfg WorkerConfig, logger *zap.Logger) (*MediaWorker, error) {
	if cfg.PersistInterval == 0 {
		cfg.PersistInterval = DefaultWorkerConfig().PersistInterval
	}
	if clock == nil {
		clock = port.SystemClock{}
	}

	meta, err := fs.LoadMetadata(url)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		meta = domain.NewCacheMetadata(url)
	case err != nil:
		logger.Warn("discarding unreadable metadata record",
			zap.String("url", url),
			zap.Error(err))
		meta = domain.NewCacheMetadata(url)
	case meta.URL != url:
		logger.Warn("metadata record belongs to another url, discarding",
			zap.String("url", url),
			zap.String("record_url", meta.URL))
		meta = domain.NewCacheMetadata(url)
	}

	file, err := fs.OpenData(url)
	if err != nil {
		return nil, domain.NewStoreError("open", domain.ByteRange{}, err)
	}

	size, err := file.Size()
	if err != nil {
		file.Close()
		return nil, domain.NewStoreError("stat", domain.ByteRange{}, err)
	}

	before := meta.CachedBytes()
	meta.Segments.Clip(uint64(size))
	if dropped := before - meta.CachedBytes(); dropped > 0 {
		logger.Info("cached segments missing from data file, treating as misses",
			zap.String("url", url),
			zap.Int64("file_size", size),
			zap.Uint64("dropped_bytes", dropped))
	}

	w := &MediaWorker{
		url:       url,
		fs:        fs,
		file:      file,
		clock:     clock,
		logger:    logger,
		persist:   ratelimiter.NewWithClock(cfg.PersistInterval, clock.Now),
		meta:      meta,
		dirty:     meta.CachedBytes() != before,
		lengthSet: meta.HasContentInfo() && size == meta.ContentLength,
		rate:      ewma.NewMovingAverage(10),
	}
	return w, nil
}

// URL returns the canonical URL of the resource
func (w *MediaWorker) URL() string {
	return w.url
}

// Snapshot returns a deep copy of the metadata record
func (w *MediaWorker) Snapshot() *domain.CacheMetadata {
	w.metaMu.RLock()
	defer w.metaMu.RUnlock()
	return w.meta.Snapshot()
}

// Segments returns a copy of the segment index
func (w *MediaWorker) Segments() domain.SegmentIndex {
	w.metaMu.RLock()
	defer w.metaMu.RUnlock()
	return w.meta.Segments.Clone()
}

// ContentLength returns the total resource length, or domain.UnknownContentLength
func (w *MediaWorker) ContentLength() int64 {
	w.metaMu.RLock()
	defer w.metaMu.RUnlock()
	return w.meta.ContentLength
}

// HasContentInfo returns true once a response header has populated the record
func (w *MediaWorker) HasContentInfo() bool {
	w.metaMu.RLock()
	defer w.metaMu.RUnlock()
	return w.meta.HasContentInfo()
}

// IsComplete returns true when the whole resource is cached
func (w *MediaWorker) IsComplete() bool {
	w.metaMu.RLock()
	defer w.metaMu.RUnlock()
	return w.meta.IsComplete()
}

// SetContentInfo records what a response header revealed about the resource
func (w *MediaWorker) SetContentInfo(length int64, contentType string, rangeSupported bool) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.metaMu.Lock()
	if length != w.meta.ContentLength && w.meta.HasContentInfo() && length >= 0 {
		w.lengthSet = false
	}
	w.meta.SetContentInfo(length, contentType, rangeSupported)
	w.dirty = true
	w.metaMu.Unlock()
}

// SetTotalLength sizes the data file to exactly n bytes and syncs it.
// It is a no-op once the file already has that length.
func (w *MediaWorker) SetTotalLength(n int64) error {
	if n < 0 {
		return nil
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.closed {
		return domain.ErrSessionClosed
	}
	if w.lengthSet {
		return nil
	}
	if err := w.file.Truncate(n); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("truncate").Inc()
		return domain.NewStoreError("truncate", domain.NewByteRange(0, uint64(n)), err)
	}
	w.lengthSet = true

	w.logger.Debug("data file sized",
		zap.String("url", w.url),
		zap.Int64("length", n))
	return nil
}

// Write stores data at r.Offset. It does not mark the range as cached.
func (w *MediaWorker) Write(r domain.ByteRange, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.closed {
		return domain.ErrSessionClosed
	}

	n, err := w.file.WriteAt(data, int64(r.Offset))
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("write").Inc()
		return domain.NewStoreError("write", r, err)
	}

	w.recordWrite(uint64(n))
	return nil
}

// AddCache marks r as cached and persists the record if the persist interval elapsed
func (w *MediaWorker) AddCache(r domain.ByteRange) error {
	w.metaMu.Lock()
	w.meta.AddCache(r)
	w.dirty = true
	w.metaMu.Unlock()

	if allowed, _ := w.persist.Allow(); allowed {
		return w.Flush()
	}
	return nil
}

// Read returns the bytes of r. Fewer bytes are returned only at end of file.
func (w *MediaWorker) Read(r domain.ByteRange) ([]byte, error) {
	buf := make([]byte, r.Length)
	n, err := w.file.ReadAt(buf, int64(r.Offset))
	if err != nil && !errors.Is(err, io.EOF) {
		metrics.StoreErrorsTotal.WithLabelValues("read").Inc()
		return nil, domain.NewStoreError("read", r, err)
	}
	return buf[:n], nil
}

// Revalidate drops cached segments beyond the current size of the data file
func (w *MediaWorker) Revalidate() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	size, err := w.file.Size()
	if err != nil {
		return domain.NewStoreError("stat", domain.ByteRange{}, err)
	}

	w.metaMu.Lock()
	w.meta.Segments.Clip(uint64(size))
	if w.meta.HasContentInfo() && size != w.meta.ContentLength {
		w.lengthSet = false
	}
	w.dirty = true
	w.metaMu.Unlock()
	return nil
}

// Flush syncs written data and persists the metadata record
func (w *MediaWorker) Flush() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.flushLocked()
}

func (w *MediaWorker) flushLocked() error {
	if w.closed {
		return nil
	}

	w.metaMu.RLock()
	dirty := w.dirty
	snapshot := w.meta.Snapshot()
	w.metaMu.RUnlock()

	if !dirty {
		return nil
	}

	if err := w.file.Sync(); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("sync").Inc()
		return domain.NewStoreError("sync", domain.ByteRange{}, err)
	}
	if err := w.fs.SaveMetadata(snapshot); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("persist").Inc()
		return domain.NewStoreError("persist", domain.ByteRange{}, err)
	}

	w.metaMu.Lock()
	w.dirty = false
	w.metaMu.Unlock()
	w.persist.Mark()
	metrics.MetadataFlushesTotal.Inc()
	return nil
}

// StartWriting begins accumulating statistics for one transfer
func (w *MediaWorker) StartWriting() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	now := w.clock.Now()
	w.writing = true
	w.writeStart = now
	w.writeBytes = 0
	w.sampleStart = now
	w.sampleBytes = 0
}

// FinishWriting folds the statistics of the current transfer into the record
func (w *MediaWorker) FinishWriting() {
	w.statsMu.Lock()
	if !w.writing {
		w.statsMu.Unlock()
		return
	}
	w.writing = false
	bytes := w.writeBytes
	spent := w.clock.Now().Sub(w.writeStart)
	w.statsMu.Unlock()

	w.metaMu.Lock()
	w.meta.AddWriteStats(bytes, spent)
	w.dirty = true
	w.metaMu.Unlock()
}

func (w *MediaWorker) recordWrite(n uint64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.writeBytes += n
	w.sampleBytes += n

	now := w.clock.Now()
	if elapsed := now.Sub(w.sampleStart); elapsed >= rateSampleInterval {
		w.rate.Add(float64(w.sampleBytes) / elapsed.Seconds())
		w.recentRateBps = w.rate.Value()
		w.sampleStart = now
		w.sampleBytes = 0
	}
}

// RecentRate returns the moving average transfer rate in bytes per second
func (w *MediaWorker) RecentRate() float64 {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.recentRateBps
}

// Close persists the record and releases the data file
func (w *MediaWorker) Close() error {
	w.FinishWriting()

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.closed {
		return nil
	}
	flushErr := w.flushLocked()
	w.closed = true

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close data file: %w", err)
	}
	return flushErr
}
