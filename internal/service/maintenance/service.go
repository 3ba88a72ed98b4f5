package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

// SessionTracker is the part of the session registry the janitor drives
type SessionTracker interface {
	ActivityChecker
	FlushAll() error
	ReapIdle(idle time.Duration) int
}

// Config contains maintenance service configuration
type Config struct {
	// SweepInterval is how often expired resources are removed and limits enforced
	SweepInterval time.Duration

	// FlushInterval is how often live sessions persist their metadata
	FlushInterval time.Duration

	// IdleTimeout is how long a session may stay unused before it is closed
	IdleTimeout time.Duration

	// CleanupInterval is how often stale files are removed and the catalog reconciled
	CleanupInterval time.Duration

	// StaleFileMaxAge is the minimum age of leftover temp and orphan files before cleanup
	StaleFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		SweepInterval:   5 * time.Minute,
		FlushInterval:   30 * time.Second,
		IdleTimeout:     5 * time.Minute,
		CleanupInterval: time.Hour,
		StaleFileMaxAge: 24 * time.Hour,
	}
}

// Service handles periodic maintenance of the cache directory
type Service struct {
	config   *Config
	sessions SessionTracker
	catalog  port.ResourceRepository
	fs       port.CacheFileSystem
	evictor  *Evictor
	clock    port.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(
	cfg *Config,
	sessions SessionTracker,
	catalog port.ResourceRepository,
	fs port.CacheFileSystem,
	evictor *Evictor,
	clock port.Clock,
	logger *zap.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if cfg.StaleFileMaxAge == 0 {
		cfg.StaleFileMaxAge = defaults.StaleFileMaxAge
	}
	if clock == nil {
		clock = port.SystemClock{}
	}

	return &Service{
		config:   cfg,
		sessions: sessions,
		catalog:  catalog,
		fs:       fs,
		evictor:  evictor,
		clock:    clock,
		logger:   logger,
	}
}

// Start starts the maintenance service
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("flush_interval", s.config.FlushInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))

	if _, _, err := s.Reconcile(); err != nil {
		s.logger.Warn("failed to reconcile catalog on startup", zap.Error(err))
	}

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	flushTicker := time.NewTicker(s.config.FlushInterval)
	defer flushTicker.Stop()

	sweepTicker := time.NewTicker(s.config.SweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			s.flushSessions()
		case <-sweepTicker.C:
			s.reapIdleSessions()
			if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("cache sweep incomplete", zap.Error(err))
			}
		case <-cleanupTicker.C:
			s.cleanupStaleFiles()
			if _, _, err := s.Reconcile(); err != nil {
				s.logger.Error("failed to reconcile catalog", zap.Error(err))
			}
		}
	}
}

// Sweep removes expired resources, then evicts until the cache is within its limits
func (s *Service) Sweep(ctx context.Context) error {
	if _, err := s.evictor.SweepExpired(ctx); err != nil {
		return err
	}
	err := s.evictor.TryEvict(ctx)
	if errors.Is(err, ErrNoCandidates) {
		return err
	}
	if err != nil {
		s.logger.Debug("eviction skipped", zap.Error(err))
	}
	return nil
}

// Reconcile brings the catalog in line with the metadata records on disk.
// Returns the number of entries added and removed.
func (s *Service) Reconcile() (int, int, error) {
	if s.catalog == nil {
		return 0, 0, nil
	}

	metas, err := s.fs.ListMetadata()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list metadata: %w", err)
	}
	entries, err := s.catalog.List()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list catalog: %w", err)
	}

	known := make(map[string]*domain.CachedResource, len(entries))
	for _, res := range entries {
		known[res.URL] = res
	}

	now := s.clock.Now()
	added := 0
	onDisk := make(map[string]struct{}, len(metas))
	for _, meta := range metas {
		onDisk[meta.URL] = struct{}{}
		res, ok := known[meta.URL]
		if ok && res.CachedBytes == meta.CachedBytes() && res.ContentLength == meta.ContentLength {
			continue
		}
		entry := domain.NewCachedResource(meta, s.fs.DataPath(meta.URL), s.fs.MetaPath(meta.URL), now)
		if ok {
			entry.LastAccessAt = res.LastAccessAt
		}
		if err := s.catalog.Upsert(entry); err != nil {
			return added, 0, err
		}
		if !ok {
			added++
		}
	}

	removed := 0
	for url := range known {
		if _, ok := onDisk[url]; ok || s.sessions.IsActive(url) {
			continue
		}
		if err := s.catalog.Delete(url); err != nil {
			return added, removed, err
		}
		removed++
	}

	if added > 0 || removed > 0 {
		s.logger.Info("catalog reconciled",
			zap.Int("added", added),
			zap.Int("removed", removed))
	}
	return added, removed, nil
}

func (s *Service) flushSessions() {
	if err := s.sessions.FlushAll(); err != nil {
		s.logger.Warn("failed to flush sessions", zap.Error(err))
	}
}

func (s *Service) reapIdleSessions() {
	if n := s.sessions.ReapIdle(s.config.IdleTimeout); n > 0 {
		s.logger.Info("closed idle sessions", zap.Int("count", n))
	}
}

// cleanupStaleFiles removes leftover temp files and orphaned data files
func (s *Service) cleanupStaleFiles() {
	fileCount, err := s.fs.CleanStaleFiles(s.config.StaleFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup stale files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up stale files from cache directory", zap.Int("count", fileCount))
	}
}
