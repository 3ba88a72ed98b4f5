package session

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/media-cache/internal/adapter/httpfetch"
	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/util/httprange"
)

// origin is a test media server. Requests starting at stallFrom or later
// receive ten bytes and then hang until the client goes away.
type origin struct {
	payload     []byte
	contentType string
	stallFrom   atomic.Int64
	hits        atomic.Int32
}

func newOrigin(n int) *origin {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	o := &origin{payload: payload, contentType: "video/mp4"}
	o.stallFrom.Store(-1)
	return o
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.hits.Add(1)
	w.Header().Set("Content-Type", o.contentType)

	total := int64(len(o.payload))
	if stallFrom := o.stallFrom.Load(); stallFrom >= 0 {
		rng, err := httprange.ParseRange(r.Header.Get("Range"))
		if err == nil {
			start, end, err := rng.Resolve(total)
			if err == nil && start >= stallFrom {
				w.Header().Set("Accept-Ranges", "bytes")
				w.Header().Set("Content-Range", httprange.FormatContentRange(start, end-1, total))
				w.Header().Set("Content-Length", strconv.FormatInt(end-start, 10))
				w.WriteHeader(http.StatusPartialContent)
				w.Write(o.payload[start:min(start+10, end)])
				w.(http.Flusher).Flush()
				<-r.Context().Done()
				return
			}
		}
	}
	http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(o.payload))
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memCatalog is an in-memory port.ResourceRepository
type memCatalog struct {
	mu        sync.Mutex
	resources map[string]*domain.CachedResource
}

var _ port.ResourceRepository = (*memCatalog)(nil)

func newMemCatalog() *memCatalog {
	return &memCatalog{resources: make(map[string]*domain.CachedResource)}
}

func (c *memCatalog) GetByURL(url string) (*domain.CachedResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.resources[url]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (c *memCatalog) Upsert(res *domain.CachedResource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *res
	if old, ok := c.resources[res.URL]; ok {
		cp.CreatedAt = old.CreatedAt
	}
	c.resources[res.URL] = &cp
	return nil
}

func (c *memCatalog) Touch(url string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.resources[url]; ok {
		res.LastAccessAt = at
	}
	return nil
}

func (c *memCatalog) Delete(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resources, url)
	return nil
}

func (c *memCatalog) List() ([]*domain.CachedResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.CachedResource, 0, len(c.resources))
	for _, res := range c.resources {
		cp := *res
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessAt.After(out[j].LastAccessAt) })
	return out, nil
}

func (c *memCatalog) ListExpired(before time.Time) ([]*domain.CachedResource, error) {
	all, _ := c.List()
	var out []*domain.CachedResource
	for _, res := range all {
		if res.LastAccessAt.Before(before) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (c *memCatalog) GetEvictionCandidates(limit int) ([]*domain.CachedResource, error) {
	all, _ := c.List()
	sort.Slice(all, func(i, j int) bool { return all[i].LastAccessAt.Before(all[j].LastAccessAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// eventLog records dispatched events
type eventLog struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (l *eventLog) add(e event.DomainEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) named(name string) []event.DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []event.DomainEvent
	for _, e := range l.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	origin   *origin
	server   *httptest.Server
	fs       *filesystem.Manager
	catalog  *memCatalog
	clock    *fakeClock
	registry *Registry
	events   *eventLog
}

func newTestEnv(t *testing.T, o *origin) *testEnv {
	t.Helper()

	server := httptest.NewServer(o)
	t.Cleanup(server.Close)

	fs, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		origin:  o,
		server:  server,
		fs:      fs,
		catalog: newMemCatalog(),
		clock:   newFakeClock(),
		events:  &eventLog{},
	}

	cfg := DefaultConfig()
	cfg.Coordinator.ChunkSize = 1024
	transport := httpfetch.New(httpfetch.DefaultConfig(), zap.NewNop())
	env.registry = NewRegistry(cfg, fs, transport, env.catalog, env.clock, zap.NewNop())
	env.registry.Dispatcher().Subscribe(event.NewFuncHandler(env.events.add))
	t.Cleanup(func() { env.registry.Close() })
	return env
}

func (e *testEnv) url(name string) string {
	return e.server.URL + "/media/" + name
}

// sink collects delivered bytes
type sink struct {
	mu      sync.Mutex
	data    []byte
	sources []domain.SourceKind
	first   chan struct{}
	once    sync.Once
}

func newSink() *sink {
	return &sink{first: make(chan struct{})}
}

func (s *sink) deliver(data []byte, source domain.SourceKind) error {
	s.mu.Lock()
	s.data = append(s.data, data...)
	s.sources = append(s.sources, source)
	s.mu.Unlock()
	s.once.Do(func() { close(s.first) })
	return nil
}

func (s *sink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func (s *sink) allFrom(kind domain.SourceKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.sources {
		if k != kind {
			return false
		}
	}
	return true
}
