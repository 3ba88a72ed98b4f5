package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/service/cacher"
)

// pendingRequest is the request a session is currently serving
type pendingRequest struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ResourceSession binds one resource to its MediaWorker.
//
// A session serves one consumer request at a time. A new request replaces
// the pending one: the older request is cancelled and finishes with an error
// matching domain.ErrCancelled before the new one starts.
type ResourceSession struct {
	id         string
	url        string
	worker     *cacher.MediaWorker
	transport  port.Transport
	inflight   *cacher.InFlightRegistry
	dispatcher event.EventDispatcher
	clock      port.Clock
	config     cacher.CoordinatorConfig
	logger     *zap.Logger

	mu         sync.Mutex
	pending    *pendingRequest
	background *pendingRequest
	closed     bool
	lastActive time.Time
	served     uint64
}

// ID returns the session identifier
func (s *ResourceSession) ID() string {
	return s.id
}

// URL returns the canonical URL of the resource
func (s *ResourceSession) URL() string {
	return s.url
}

// Snapshot returns a copy of the resource's metadata record
func (s *ResourceSession) Snapshot() *domain.CacheMetadata {
	return s.worker.Snapshot()
}

// RecentRate returns the moving average transfer rate in bytes per second
func (s *ResourceSession) RecentRate() float64 {
	return s.worker.RecentRate()
}

// LastActive returns when the session last started or finished a request
func (s *ResourceSession) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IsBusy returns true while a request or a prefetch is running
func (s *ResourceSession) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil || s.background != nil
}

// Served returns the number of requests the session has started
func (s *ResourceSession) Served() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

// Serve runs req against the cache and the network, passing bytes to deliver
// in ascending offset order. Any request still pending on the session is
// cancelled first.
func (s *ResourceSession) Serve(ctx context.Context, req domain.ReadRequest, deliver cacher.DeliverFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	prev := s.pending
	reqCtx, cancel := context.WithCancel(ctx)
	p := &pendingRequest{cancel: cancel, done: make(chan struct{})}
	s.pending = p
	s.served++
	s.lastActive = s.clock.Now()
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.lastActive = s.clock.Now()
		s.mu.Unlock()
		close(p.done)
	}()

	if prev != nil {
		s.logger.Debug("superseding pending request", zap.Stringer("request", req))
		prev.cancel()
		<-prev.done
	}
	if reqCtx.Err() != nil {
		return fmt.Errorf("request %s: %w", req, domain.ErrCancelled)
	}

	coord := cacher.NewCoordinator(s.config, s.worker, s.transport, s.inflight, s.dispatcher, s.clock, s.logger)
	err := coord.Run(reqCtx, req, deliver)
	if err != nil && !domain.IsCancelled(err) {
		s.dispatcher.Dispatch(event.NewRequestFailed(s.url, s.id, domain.NewByteRange(req.Offset, req.Length), err))
	}
	return err
}

// prefetch downloads the whole resource without a consumer. It does not
// replace the pending request; a consumer request arriving meanwhile fails
// with a ResourceBusyError.
func (s *ResourceSession) prefetch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.background != nil {
		s.mu.Unlock()
		return domain.NewResourceBusyError(s.url)
	}
	bgCtx, cancel := context.WithCancel(ctx)
	b := &pendingRequest{cancel: cancel, done: make(chan struct{})}
	s.background = b
	s.lastActive = s.clock.Now()
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.background = nil
		s.lastActive = s.clock.Now()
		s.mu.Unlock()
		close(b.done)
	}()

	coord := cacher.NewCoordinator(s.config, s.worker, s.transport, s.inflight, s.dispatcher, s.clock, s.logger)
	return coord.Run(bgCtx, domain.NewToEndRequest(0), nil)
}

// Cancel cancels the pending request, if any, and waits for it to finish
func (s *ResourceSession) Cancel() {
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()

	if p != nil {
		p.cancel()
		<-p.done
	}
}

// Flush persists the metadata record
func (s *ResourceSession) Flush() error {
	return s.worker.Flush()
}

// Close cancels the pending request and any prefetch, persists the metadata record and
// releases the data file. Further requests fail with domain.ErrSessionClosed.
func (s *ResourceSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := []*pendingRequest{s.pending, s.background}
	s.mu.Unlock()

	for _, p := range running {
		if p != nil {
			p.cancel()
			<-p.done
		}
	}
	return s.worker.Close()
}
