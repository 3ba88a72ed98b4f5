package cacher

import (
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/util/ratelimiter"
)

// ProgressNotifier emits metadata snapshots of one resource to a dispatcher,
// at most once per interval. A plan completion always emits a final snapshot,
// and reaching 100% additionally emits a single CacheFinished event.
type ProgressNotifier struct {
	url        string
	dispatcher event.EventDispatcher
	limiter    *ratelimiter.Limiter
	finished   bool
}

// NewProgressNotifier creates a notifier for url
func NewProgressNotifier(url string, dispatcher event.EventDispatcher, interval time.Duration, clock port.Clock) *ProgressNotifier {
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &ProgressNotifier{
		url:        url,
		dispatcher: dispatcher,
		limiter:    ratelimiter.NewWithClock(interval, clock.Now),
	}
}

// Progress emits snapshot unless the last emission is more recent than the interval.
// snapshot is only evaluated when an event is emitted.
func (n *ProgressNotifier) Progress(snapshot func() *domain.CacheMetadata) bool {
	if allowed, _ := n.limiter.Allow(); !allowed {
		return false
	}
	meta := snapshot()
	n.dispatcher.Dispatch(event.NewCacheProgressUpdated(n.url, meta, false))
	n.checkFinished(meta)
	return true
}

// Complete emits a final snapshot regardless of the interval
func (n *ProgressNotifier) Complete(meta *domain.CacheMetadata) {
	n.limiter.Mark()
	n.dispatcher.Dispatch(event.NewCacheProgressUpdated(n.url, meta, true))
	n.checkFinished(meta)
}

// Fail emits a CacheFinished event carrying err
func (n *ProgressNotifier) Fail(meta *domain.CacheMetadata, err error) {
	n.dispatcher.Dispatch(event.NewCacheFinished(n.url, meta, err))
}

func (n *ProgressNotifier) checkFinished(meta *domain.CacheMetadata) {
	if n.finished || !meta.IsComplete() {
		return
	}
	n.finished = true
	n.dispatcher.Dispatch(event.NewCacheFinished(n.url, meta, nil))
}
