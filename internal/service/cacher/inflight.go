package cacher

import (
	"sort"
	"sync"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/metrics"
)

// InFlightRegistry tracks which resources have a running download coordinator.
// A second acquisition for the same resource fails instead of queueing.
type InFlightRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInFlightRegistry creates an empty registry
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		active: make(map[string]struct{}),
	}
}

// Acquire claims url. It returns a release func, or a ResourceBusyError if
// another coordinator holds the claim. The release func is idempotent.
func (r *InFlightRegistry) Acquire(url string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.active[url]; busy {
		return nil, domain.NewResourceBusyError(url)
	}
	r.active[url] = struct{}{}
	metrics.InFlightDownloads.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, url)
			r.mu.Unlock()
			metrics.InFlightDownloads.Dec()
		})
	}, nil
}

// IsActive returns true if url has a running coordinator
func (r *InFlightRegistry) IsActive(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[url]
	return ok
}

// Active returns the sorted list of resources with a running coordinator
func (r *InFlightRegistry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.active))
	for url := range r.active {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}
