package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/domain/service"
	"github.com/vertextoedge/media-cache/internal/port"
)

// Eviction reasons
const (
	ReasonExpired = "expired"
	ReasonSpace   = "space"
	ReasonManual  = "manual"
)

// ErrNoCandidates is returned when the cache is over its limits but every
// cached resource is in use
var ErrNoCandidates = errors.New("no eviction candidates available")

// ActivityChecker reports whether a resource is in use
type ActivityChecker interface {
	IsActive(url string) bool
}

// Evictor removes expired and least recently accessed resources
type Evictor struct {
	catalog    port.ResourceRepository
	fs         port.CacheFileSystem
	space      port.SpaceManager
	policy     *service.CachePolicy
	active     ActivityChecker
	dispatcher event.EventDispatcher
	clock      port.Clock
	logger     *zap.Logger

	mu               sync.Mutex
	lastEviction     time.Time
	evictionInterval time.Duration
}

// NewEvictor creates a new Evictor
func NewEvictor(
	catalog port.ResourceRepository,
	fs port.CacheFileSystem,
	space port.SpaceManager,
	policy *service.CachePolicy,
	active ActivityChecker,
	dispatcher event.EventDispatcher,
	clock port.Clock,
	logger *zap.Logger,
	evictionInterval time.Duration,
) *Evictor {
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Evictor{
		catalog:          catalog,
		fs:               fs,
		space:            space,
		policy:           policy,
		active:           active,
		dispatcher:       dispatcher,
		clock:            clock,
		logger:           logger,
		evictionInterval: evictionInterval,
	}
}

// SweepExpired removes resources not accessed within the maximum cache age.
// Returns the number of resources removed.
func (e *Evictor) SweepExpired(ctx context.Context) (int, error) {
	maxAge := e.policy.GetMaxCacheAge()
	if maxAge <= 0 {
		return 0, nil
	}

	now := e.clock.Now()
	expired, err := e.catalog.ListExpired(now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list expired resources: %w", err)
	}

	removed := 0
	for _, res := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.policy.IsExpired(res.LastAccessAt, now) || e.isActive(res.URL) {
			continue
		}
		if _, err := e.remove(res.URL, ReasonExpired); err != nil {
			e.logger.Error("failed to remove expired resource",
				zap.String("url", res.URL),
				zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		e.logger.Info("removed expired resources",
			zap.Int("count", removed),
			zap.Duration("max_age", maxAge))
	}
	return removed, nil
}

// TryEvict evicts resources until the cache is within its limits, at most
// once per eviction interval
func (e *Evictor) TryEvict(ctx context.Context) error {
	e.mu.Lock()
	now := e.clock.Now()
	sinceLast := now.Sub(e.lastEviction)
	if !e.lastEviction.IsZero() && sinceLast < e.evictionInterval {
		e.mu.Unlock()
		return fmt.Errorf("eviction rate-limited: next eviction in %v", e.evictionInterval-sinceLast)
	}
	e.lastEviction = now
	e.mu.Unlock()

	return e.evictUntilSpace(ctx)
}

// evictUntilSpace evicts least recently accessed resources until neither limit is exceeded
func (e *Evictor) evictUntilSpace(ctx context.Context) error {
	check, err := e.space.CheckSpace()
	if err != nil {
		return err
	}
	if !check.NeedsEviction() {
		return nil
	}

	e.logger.Info("starting eviction",
		zap.Uint64("cache_size_bytes", check.CacheSizeBytes),
		zap.Uint64("bytes_over_limit", check.BytesOverLimit),
		zap.Float64("disk_used_pct", check.DiskUsedPct))

	candidates, err := e.catalog.GetEvictionCandidates(0)
	if err != nil {
		return fmt.Errorf("failed to get eviction candidates: %w", err)
	}

	evictedCount := 0
	evictedBytes := uint64(0)
	for _, res := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.isActive(res.URL) {
			continue
		}

		freed, err := e.remove(res.URL, ReasonSpace)
		if err != nil {
			e.logger.Error("failed to evict resource",
				zap.String("url", res.URL),
				zap.Error(err))
			continue
		}
		evictedCount++
		evictedBytes += freed

		check, err = e.space.CheckSpace()
		if err != nil {
			return err
		}
		if !check.NeedsEviction() {
			e.logger.Info("eviction completed",
				zap.Int("evicted_count", evictedCount),
				zap.Uint64("evicted_bytes", evictedBytes))
			return nil
		}
	}

	e.logger.Warn("cache still over its limits after eviction",
		zap.Int("evicted_count", evictedCount),
		zap.Uint64("cache_size_bytes", check.CacheSizeBytes),
		zap.Uint64("max_cache_size", check.MaxCacheSizeBytes),
		zap.Float64("disk_used_pct", check.DiskUsedPct),
		zap.Float64("max_disk_pct", check.MaxDiskUsagePct))
	return ErrNoCandidates
}

// Remove deletes one resource from disk and the catalog unless it is in use
func (e *Evictor) Remove(url string) (uint64, error) {
	if e.isActive(url) {
		return 0, fmt.Errorf("%s: %w", url, domain.ErrResourceActive)
	}
	return e.remove(url, ReasonManual)
}

// RemoveAll deletes every cached resource not in use.
// Returns the number of resources removed and the bytes freed.
func (e *Evictor) RemoveAll(ctx context.Context) (int, uint64, error) {
	metas, err := e.fs.ListMetadata()
	if err != nil {
		return 0, 0, err
	}

	removed := 0
	freed := uint64(0)
	for _, meta := range metas {
		if err := ctx.Err(); err != nil {
			return removed, freed, err
		}
		if e.isActive(meta.URL) {
			e.logger.Info("skipping active resource", zap.String("url", meta.URL))
			continue
		}
		n, err := e.remove(meta.URL, ReasonManual)
		if err != nil {
			return removed, freed, err
		}
		removed++
		freed += n
	}
	return removed, freed, nil
}

func (e *Evictor) remove(url, reason string) (uint64, error) {
	freed, err := e.fs.Remove(url)
	if err != nil {
		return 0, err
	}
	if e.catalog != nil {
		if err := e.catalog.Delete(url); err != nil {
			return freed, fmt.Errorf("failed to delete catalog entry: %w", err)
		}
	}

	e.dispatcher.Dispatch(event.NewResourceEvicted(url, freed, reason))
	e.logger.Debug("resource removed",
		zap.String("url", url),
		zap.Uint64("size", freed),
		zap.String("reason", reason))
	return freed, nil
}

func (e *Evictor) isActive(url string) bool {
	return e.active != nil && e.active.IsActive(url)
}
