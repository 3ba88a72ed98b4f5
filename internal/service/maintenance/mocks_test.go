package maintenance

import (
	"sort"
	"sync"
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

// mockFileSystem implements port.CacheFileSystem for testing.
// Resource sizes count toward the cache size until removed.
type mockFileSystem struct {
	mu               sync.Mutex
	metas            map[string]*domain.CacheMetadata
	sizes            map[string]uint64
	diskUsage        *port.DiskUsage
	err              error
	cleanStaleCount  int
	cleanStaleCalled int
	removeErr        error
}

func newMockFileSystem() *mockFileSystem {
	return &mockFileSystem{
		metas:     make(map[string]*domain.CacheMetadata),
		sizes:     make(map[string]uint64),
		diskUsage: &port.DiskUsage{Total: 1000, Used: 100, Free: 900, UsedPct: 10},
	}
}

func (m *mockFileSystem) add(url string, size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := domain.NewCacheMetadata(url)
	meta.SetContentInfo(int64(size), "video/mp4", true)
	meta.AddCache(domain.NewByteRange(0, size))
	m.metas[url] = meta
	m.sizes[url] = size
}

func (m *mockFileSystem) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sizes[url]
	return ok
}

func (m *mockFileSystem) RootDir() string                              { return "/cache" }
func (m *mockFileSystem) DataPath(url string) string                   { return "/cache/" + domain.ResourceKey(url) }
func (m *mockFileSystem) MetaPath(url string) string                   { return m.DataPath(url) + ".meta" }
func (m *mockFileSystem) OpenData(url string) (port.SparseFile, error) { return nil, nil }

func (m *mockFileSystem) LoadMetadata(url string) (*domain.CacheMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return meta.Snapshot(), nil
}

func (m *mockFileSystem) SaveMetadata(meta *domain.CacheMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[meta.URL] = meta.Snapshot()
	return nil
}

func (m *mockFileSystem) ListMetadata() ([]*domain.CacheMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.CacheMetadata, 0, len(m.metas))
	for _, meta := range m.metas {
		out = append(out, meta.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *mockFileSystem) Remove(url string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return 0, m.removeErr
	}
	size := m.sizes[url]
	delete(m.sizes, url)
	delete(m.metas, url)
	return size, nil
}

func (m *mockFileSystem) GetCacheSize() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, size := range m.sizes {
		total += size
	}
	return total, m.err
}

func (m *mockFileSystem) GetDiskUsage() (*port.DiskUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diskUsage, m.err
}

func (m *mockFileSystem) CleanStaleFiles(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanStaleCalled++
	return m.cleanStaleCount, nil
}

// mockCatalog implements port.ResourceRepository for testing
type mockCatalog struct {
	mu        sync.Mutex
	resources map[string]*domain.CachedResource
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{resources: make(map[string]*domain.CachedResource)}
}

func (m *mockCatalog) add(url string, size uint64, lastAccess time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[url] = &domain.CachedResource{
		URL:           url,
		ContentLength: int64(size),
		CachedBytes:   size,
		CreatedAt:     lastAccess,
		LastAccessAt:  lastAccess,
		UpdatedAt:     lastAccess,
	}
}

func (m *mockCatalog) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.resources[url]
	return ok
}

func (m *mockCatalog) GetByURL(url string) (*domain.CachedResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[url]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (m *mockCatalog) Upsert(res *domain.CachedResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	m.resources[res.URL] = &cp
	return nil
}

func (m *mockCatalog) Touch(url string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.resources[url]; ok {
		res.LastAccessAt = at
	}
	return nil
}

func (m *mockCatalog) Delete(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, url)
	return nil
}

func (m *mockCatalog) sorted() []*domain.CachedResource {
	out := make([]*domain.CachedResource, 0, len(m.resources))
	for _, res := range m.resources {
		cp := *res
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessAt.Before(out[j].LastAccessAt) })
	return out
}

func (m *mockCatalog) List() ([]*domain.CachedResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *mockCatalog) ListExpired(before time.Time) ([]*domain.CachedResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CachedResource
	for _, res := range m.sorted() {
		if res.LastAccessAt.Before(before) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (m *mockCatalog) GetEvictionCandidates(limit int) ([]*domain.CachedResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockSessions implements SessionTracker for testing
type mockSessions struct {
	mu          sync.Mutex
	active      map[string]bool
	flushCalled int
	reapCalled  int
}

func newMockSessions(active ...string) *mockSessions {
	m := &mockSessions{active: make(map[string]bool)}
	for _, url := range active {
		m.active[url] = true
	}
	return m
}

func (m *mockSessions) IsActive(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[url]
}

func (m *mockSessions) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCalled++
	return nil
}

func (m *mockSessions) ReapIdle(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapCalled++
	return 0
}

// fixedClock always returns the same instant
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }
