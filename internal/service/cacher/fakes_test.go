package cacher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

// memFile is an in-memory port.SparseFile
type memFile struct {
	mu        sync.Mutex
	data      []byte
	failWrite error
	failFrom  int64 // writes at or beyond this offset fail with failWrite
	closed    bool
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil && off+int64(len(p)) > f.failFrom {
		return 0, f.failWrite
	}
	if end := off + int64(len(p)); end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	return copy(f.data[off:], p), nil
}

func (f *memFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	f.data = append(f.data, make([]byte, size-int64(len(f.data)))...)
	return nil
}

func (f *memFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *memFile) Sync() error { return nil }
func (f *memFile) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *memFile) setFailWrite(from int64, err error) {
	f.mu.Lock()
	f.failFrom = from
	f.failWrite = err
	f.mu.Unlock()
}

// memFS is an in-memory port.CacheFileSystem
type memFS struct {
	mu    sync.Mutex
	files map[string]*memFile
	metas map[string]*domain.CacheMetadata
	saves int
}

var _ port.CacheFileSystem = (*memFS)(nil)

func newMemFS() *memFS {
	return &memFS{
		files: make(map[string]*memFile),
		metas: make(map[string]*domain.CacheMetadata),
	}
}

func (m *memFS) RootDir() string               { return "/mem" }
func (m *memFS) DataPath(url string) string    { return "/mem/" + domain.ResourceKey(url) }
func (m *memFS) MetaPath(url string) string    { return m.DataPath(url) + ".meta" }
func (m *memFS) GetCacheSize() (uint64, error) { return 0, nil }

func (m *memFS) OpenData(url string) (port.SparseFile, error) {
	return m.file(url), nil
}

func (m *memFS) file(url string) *memFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[url]
	if !ok {
		f = &memFile{}
		m.files[url] = f
	}
	return f
}

func (m *memFS) LoadMetadata(url string) (*domain.CacheMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return meta.Snapshot(), nil
}

func (m *memFS) SaveMetadata(meta *domain.CacheMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[meta.URL] = meta.Snapshot()
	m.saves++
	return nil
}

func (m *memFS) ListMetadata() ([]*domain.CacheMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CacheMetadata
	for _, meta := range m.metas {
		out = append(out, meta.Snapshot())
	}
	return out, nil
}

func (m *memFS) Remove(url string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size uint64
	if f, ok := m.files[url]; ok {
		size = uint64(len(f.data))
	}
	delete(m.files, url)
	delete(m.metas, url)
	return size, nil
}

func (m *memFS) GetDiskUsage() (*port.DiskUsage, error) {
	return &port.DiskUsage{Total: 100, Used: 10, Free: 90, UsedPct: 10}, nil
}

func (m *memFS) CleanStaleFiles(time.Duration) (int, error) { return 0, nil }

// fakeTransport serves a fixed payload
type fakeTransport struct {
	mu          sync.Mutex
	payload     []byte
	contentType string
	ignoreRange bool
	hideLength  bool
	block       chan struct{} // if set, Fetch waits for it to close
	started     chan struct{} // if set, closed on the first Fetch
	stallBody   bool          // body blocks until ctx is done
	calls       []domain.ByteRange
}

func newFakeTransport(payload []byte) *fakeTransport {
	return &fakeTransport{payload: payload, contentType: "video/mp4"}
}

func (t *fakeTransport) Fetch(ctx context.Context, url string, r domain.ByteRange) (*port.Response, error) {
	t.mu.Lock()
	t.calls = append(t.calls, r)
	if t.started != nil {
		close(t.started)
		t.started = nil
	}
	block := t.block
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.NewNetworkError(url, r, ctx.Err())
		}
	}

	total := int64(len(t.payload))
	resp := &port.Response{
		ContentLength:      total,
		ContentType:        t.contentType,
		ByteRangeSupported: !t.ignoreRange,
	}
	if t.hideLength {
		resp.ContentLength = domain.UnknownContentLength
	}

	if r.Offset >= uint64(total) && !t.ignoreRange {
		reported := total
		if t.hideLength {
			reported = domain.UnknownContentLength
		}
		return nil, domain.NewNetworkError(url, r, domain.NewUnsatisfiableRangeError(r, reported))
	}

	start, end := r.Offset, uint64(total)
	if r.Length > 0 && r.End() < end {
		end = r.End()
	}
	if t.ignoreRange {
		start, end = 0, uint64(total)
	}
	resp.Offset = start

	if t.stallBody {
		resp.Body = io.NopCloser(&stallReader{ctx: ctx, first: t.payload[start:min(start+10, end)]})
		return resp, nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(t.payload[start:end]))
	return resp, nil
}

func (t *fakeTransport) Calls() []domain.ByteRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.ByteRange, len(t.calls))
	copy(out, t.calls)
	return out
}

// stallReader returns first, then blocks until ctx is done
type stallReader struct {
	ctx   context.Context
	first []byte
}

func (r *stallReader) Read(p []byte) (int, error) {
	if len(r.first) > 0 {
		n := copy(p, r.first)
		r.first = r.first[n:]
		return n, nil
	}
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
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

// collector records delivered bytes
type collector struct {
	mu      sync.Mutex
	data    []byte
	sources []domain.SourceKind
	sizes   []int
}

func (c *collector) deliver(data []byte, source domain.SourceKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, data...)
	c.sources = append(c.sources, source)
	c.sizes = append(c.sizes, len(data))
	return nil
}

// recorder records dispatched events
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) add(e any) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func testPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 253)
	}
	return b
}

var errDiskFull = errors.New("no space left on device")
