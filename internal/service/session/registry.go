package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/service/cacher"
)

// Session close reasons
const (
	ReasonReleased = "released"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// Config contains session registry configuration
type Config struct {
	Coordinator cacher.CoordinatorConfig
	Worker      cacher.WorkerConfig
}

// DefaultConfig returns default session registry configuration
func DefaultConfig() Config {
	return Config{
		Coordinator: cacher.DefaultCoordinatorConfig(),
		Worker:      cacher.DefaultWorkerConfig(),
	}
}

// Registry owns every live ResourceSession, the in-flight registry shared by
// their coordinators and the event dispatcher they report to.
type Registry struct {
	config     Config
	fs         port.CacheFileSystem
	transport  port.Transport
	catalog    port.ResourceRepository
	inflight   *cacher.InFlightRegistry
	dispatcher *event.InMemoryDispatcher
	clock      port.Clock
	logger     *zap.Logger

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*ResourceSession
	closed   bool
}

// NewRegistry creates a session registry. catalog may be nil.
func NewRegistry(
	cfg Config,
	fs port.CacheFileSystem,
	transport port.Transport,
	catalog port.ResourceRepository,
	clock port.Clock,
	logger *zap.Logger,
) *Registry {
	if clock == nil {
		clock = port.SystemClock{}
	}

	r := &Registry{
		config:    cfg,
		fs:        fs,
		transport: transport,
		catalog:   catalog,
		inflight:  cacher.NewInFlightRegistry(),
		clock:     clock,
		logger:    logger,
		sessions:  make(map[string]*ResourceSession),
	}
	r.dispatcher = event.NewInMemoryDispatcher(func(e event.DomainEvent, err error) {
		logger.Warn("event handler failed",
			zap.String("event", e.EventName()),
			zap.Error(err))
	})
	r.dispatcher.Subscribe(event.NewLoggingHandler(logger))
	r.dispatcher.Subscribe(event.NewMetricsHandler())
	if catalog != nil {
		r.dispatcher.Subscribe(event.NewFuncHandler(r.recordProgress, event.NameCacheProgress, event.NameCacheFinished))
	}
	return r
}

// Dispatcher returns the dispatcher sessions report events to
func (r *Registry) Dispatcher() event.EventDispatcher {
	return r.dispatcher
}

// InFlight returns the registry of running coordinators
func (r *Registry) InFlight() *cacher.InFlightRegistry {
	return r.inflight
}

// Open returns the session of rawURL, creating it if needed.
// Concurrent opens of the same resource share one session.
func (r *Registry) Open(rawURL string) (*ResourceSession, error) {
	url, err := domain.CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}

	if s, ok, err := r.lookup(url); ok || err != nil {
		return s, err
	}

	v, err, _ := r.group.Do(url, func() (interface{}, error) {
		if s, ok, err := r.lookup(url); ok || err != nil {
			return s, err
		}

		worker, err := cacher.OpenMediaWorker(url, r.fs, r.clock, r.config.Worker, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open resource: %w", err)
		}

		s := &ResourceSession{
			id:         uuid.NewString(),
			url:        url,
			worker:     worker,
			transport:  r.transport,
			inflight:   r.inflight,
			dispatcher: r.dispatcher,
			clock:      r.clock,
			config:     r.config.Coordinator,
			logger:     r.logger,
			lastActive: r.clock.Now(),
		}
		s.logger = r.logger.With(zap.String("session_id", s.id))

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			worker.Close()
			return nil, domain.ErrRegistryClosed
		}
		r.sessions[url] = s
		r.mu.Unlock()

		r.touch(url, worker.Snapshot())
		r.dispatcher.Dispatch(event.NewSessionOpened(url, s.id))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ResourceSession), nil
}

func (r *Registry) lookup(url string) (*ResourceSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, domain.ErrRegistryClosed
	}
	s, ok := r.sessions[url]
	return s, ok, nil
}

// Serve opens the session of rawURL and serves req on it
func (r *Registry) Serve(ctx context.Context, rawURL string, req domain.ReadRequest, deliver cacher.DeliverFunc) error {
	s, err := r.Open(rawURL)
	if err != nil {
		return err
	}
	err = s.Serve(ctx, req, deliver)
	r.touch(s.URL(), nil)
	return err
}

// Prefetch downloads the whole resource of rawURL in the background of any
// consumer. Consumer requests for it fail with a ResourceBusyError meanwhile.
func (r *Registry) Prefetch(ctx context.Context, rawURL string) error {
	s, err := r.Open(rawURL)
	if err != nil {
		return err
	}
	return s.prefetch(ctx)
}

// Get returns the live session of rawURL
func (r *Registry) Get(rawURL string) (*ResourceSession, bool) {
	url, err := domain.CanonicalURL(rawURL)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[url]
	return s, ok
}

// Sessions returns the live sessions ordered by URL
func (r *Registry) Sessions() []*ResourceSession {
	r.mu.Lock()
	out := make([]*ResourceSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URL() < out[j].URL() })
	return out
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IsActive returns true if the canonical url has a live session or a running download
func (r *Registry) IsActive(url string) bool {
	r.mu.Lock()
	_, ok := r.sessions[url]
	r.mu.Unlock()
	return ok || r.inflight.IsActive(url)
}

// Cancel cancels the pending request of rawURL, keeping the session open
func (r *Registry) Cancel(rawURL string) bool {
	s, ok := r.Get(rawURL)
	if !ok {
		return false
	}
	s.Cancel()
	return true
}

// Release closes the session of rawURL. It is a no-op if there is none.
func (r *Registry) Release(rawURL string) error {
	url, err := domain.CanonicalURL(rawURL)
	if err != nil {
		return err
	}
	return r.release(url, ReasonReleased)
}

func (r *Registry) release(url, reason string) error {
	r.mu.Lock()
	s, ok := r.sessions[url]
	delete(r.sessions, url)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.closeSession(s, reason)
}

func (r *Registry) closeSession(s *ResourceSession, reason string) error {
	err := s.Close()
	r.touch(s.URL(), s.Snapshot())
	r.dispatcher.Dispatch(event.NewSessionClosed(s.URL(), s.ID(), reason))
	if err != nil {
		return fmt.Errorf("failed to close session for %s: %w", s.URL(), err)
	}
	return nil
}

// FlushAll persists the metadata record of every live session
func (r *Registry) FlushAll() error {
	var errs []error
	for _, s := range r.Sessions() {
		if err := s.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.URL(), err))
		}
	}
	return errors.Join(errs...)
}

// ReapIdle closes sessions with no running request that have been inactive
// for at least idle. Returns the number of sessions closed.
func (r *Registry) ReapIdle(idle time.Duration) int {
	now := r.clock.Now()
	reaped := 0
	for _, s := range r.Sessions() {
		if s.IsBusy() || now.Sub(s.LastActive()) < idle {
			continue
		}
		if err := r.release(s.URL(), ReasonIdle); err != nil {
			r.logger.Warn("failed to close idle session",
				zap.String("url", s.URL()),
				zap.Error(err))
		}
		reaped++
	}
	return reaped
}

// Close tears down every session. Further opens fail with domain.ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*ResourceSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*ResourceSession)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := r.closeSession(s, ReasonShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Info("session registry closed", zap.Int("sessions", len(sessions)))
	return errors.Join(errs...)
}

// touch records an access to url in the catalog. A nil snapshot only
// updates the access time of an existing entry.
func (r *Registry) touch(url string, snapshot *domain.CacheMetadata) {
	if r.catalog == nil {
		return
	}

	now := r.clock.Now()
	existing, err := r.catalog.GetByURL(url)
	if err != nil {
		r.logger.Warn("failed to read catalog entry", zap.String("url", url), zap.Error(err))
		return
	}

	if existing != nil && snapshot == nil {
		if err := r.catalog.Touch(url, now); err != nil {
			r.logger.Warn("failed to touch catalog entry", zap.String("url", url), zap.Error(err))
		}
		return
	}
	if snapshot == nil {
		if s, ok := r.Get(url); ok {
			snapshot = s.Snapshot()
		} else {
			return
		}
	}
	r.upsert(snapshot, now)
}

func (r *Registry) upsert(meta *domain.CacheMetadata, now time.Time) {
	res := domain.NewCachedResource(meta, r.fs.DataPath(meta.URL), r.fs.MetaPath(meta.URL), now)
	if err := r.catalog.Upsert(res); err != nil {
		r.logger.Warn("failed to update catalog entry", zap.String("url", meta.URL), zap.Error(err))
	}
}

// recordProgress keeps the catalog in step with finished plans and downloads
func (r *Registry) recordProgress(e event.DomainEvent) {
	switch ev := e.(type) {
	case event.CacheProgressUpdated:
		if ev.Final && ev.Metadata != nil {
			r.upsert(ev.Metadata, r.clock.Now())
		}
	case event.CacheFinished:
		if ev.Metadata != nil {
			r.upsert(ev.Metadata, r.clock.Now())
		}
	}
}
