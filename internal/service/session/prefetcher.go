package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

// ErrQueueFull is returned when the prefetch queue cannot take another URL
var ErrQueueFull = errors.New("prefetch queue full")

// PrefetcherConfig contains prefetcher configuration
type PrefetcherConfig struct {
	Workers   int
	QueueSize int
}

// DefaultPrefetcherConfig returns default prefetcher configuration
func DefaultPrefetcherConfig() *PrefetcherConfig {
	return &PrefetcherConfig{
		Workers:   2,
		QueueSize: 64,
	}
}

// Prefetcher downloads whole resources in the background with a fixed pool of workers
type Prefetcher struct {
	config   *PrefetcherConfig
	registry *Registry
	space    port.SpaceManager
	logger   *zap.Logger
	queue    chan string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPrefetcher creates a new Prefetcher. space may be nil to skip the space check.
func NewPrefetcher(cfg *PrefetcherConfig, registry *Registry, space port.SpaceManager, logger *zap.Logger) *Prefetcher {
	if cfg == nil {
		cfg = DefaultPrefetcherConfig()
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}

	return &Prefetcher{
		config:   cfg,
		registry: registry,
		space:    space,
		logger:   logger,
		queue:    make(chan string, cfg.QueueSize),
	}
}

// Enqueue schedules rawURL for prefetching without blocking
func (p *Prefetcher) Enqueue(rawURL string) error {
	url, err := domain.CanonicalURL(rawURL)
	if err != nil {
		return err
	}
	select {
	case p.queue <- url:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued URLs
func (p *Prefetcher) Pending() int {
	return len(p.queue)
}

// Start runs the worker pool until ctx is cancelled or Stop is called
func (p *Prefetcher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("prefetcher already running")
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.logger.Info("prefetcher started", zap.Int("workers", p.config.Workers))

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.wg.Wait()
	p.logger.Info("prefetcher stopped")
	return nil
}

// Stop stops the prefetcher
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.running = false
}

func (p *Prefetcher) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("prefetch-%d", workerID)
	p.logger.Debug("prefetch worker started", zap.String("worker", workerName))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("prefetch worker stopped", zap.String("worker", workerName))
			return
		case url := <-p.queue:
			if err := p.process(ctx, url); err != nil {
				p.logger.Warn("prefetch failed",
					zap.String("worker", workerName),
					zap.String("url", url),
					zap.String("kind", domain.ErrorKind(err)),
					zap.Error(err))
			}
		}
	}
}

func (p *Prefetcher) process(ctx context.Context, url string) error {
	if s, ok := p.registry.Get(url); ok && s.Snapshot().IsComplete() {
		p.logger.Debug("resource already cached, skipping", zap.String("url", url))
		return nil
	}

	if p.space != nil {
		res, err := p.space.CheckSpace()
		if err != nil {
			return fmt.Errorf("space check failed: %w", err)
		}
		if res.NeedsEviction() {
			p.logger.Info("cache over its limits, skipping prefetch",
				zap.String("url", url),
				zap.Uint64("cache_size_bytes", res.CacheSizeBytes),
				zap.Float64("disk_used_pct", res.DiskUsedPct))
			return nil
		}
	}

	p.logger.Info("prefetching resource", zap.String("url", url))
	err := p.registry.Prefetch(ctx, url)
	if domain.IsCancelled(err) {
		return nil
	}
	return err
}
