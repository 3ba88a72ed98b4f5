package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/domain/service"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type evictorFixture struct {
	fs       *mockFileSystem
	catalog  *mockCatalog
	sessions *mockSessions
	evicted  []event.ResourceEvicted
	evictor  *Evictor
}

func newEvictorFixture(maxAge time.Duration, maxSize uint64, active ...string) *evictorFixture {
	f := &evictorFixture{
		fs:       newMockFileSystem(),
		catalog:  newMockCatalog(),
		sessions: newMockSessions(active...),
	}
	dispatcher := event.NewInMemoryDispatcher(nil)
	dispatcher.Subscribe(event.NewFuncHandler(func(e event.DomainEvent) {
		f.evicted = append(f.evicted, e.(event.ResourceEvicted))
	}, event.NameResourceEvicted))

	policy := service.NewCachePolicy(maxAge, maxSize, 90)
	f.evictor = NewEvictor(f.catalog, f.fs, NewSpaceManager(f.fs, policy), policy, f.sessions,
		dispatcher, fixedClock{now: testNow}, zap.NewNop(), time.Minute)
	return f
}

func (f *evictorFixture) add(url string, size uint64, lastAccess time.Time) {
	f.fs.add(url, size)
	f.catalog.add(url, size, lastAccess)
}

func TestEvictor_SweepExpired(t *testing.T) {
	f := newEvictorFixture(7*24*time.Hour, 0, "https://a.test/busy.mp4")
	f.add("https://a.test/old.mp4", 100, testNow.Add(-8*24*time.Hour))
	f.add("https://a.test/busy.mp4", 100, testNow.Add(-30*24*time.Hour))
	f.add("https://a.test/fresh.mp4", 100, testNow.Add(-time.Hour))

	removed, err := f.evictor.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if f.fs.has("https://a.test/old.mp4") || f.catalog.has("https://a.test/old.mp4") {
		t.Error("expired resource should be removed from disk and catalog")
	}
	if !f.fs.has("https://a.test/busy.mp4") {
		t.Error("active resource should survive the sweep")
	}
	if !f.fs.has("https://a.test/fresh.mp4") {
		t.Error("fresh resource should survive the sweep")
	}
	if len(f.evicted) != 1 || f.evicted[0].Reason != ReasonExpired || f.evicted[0].Size != 100 {
		t.Errorf("evicted events = %+v", f.evicted)
	}
}

func TestEvictor_SweepExpiredDisabled(t *testing.T) {
	f := newEvictorFixture(0, 0)
	f.add("https://a.test/ancient.mp4", 100, testNow.Add(-365*24*time.Hour))

	removed, err := f.evictor.SweepExpired(context.Background())
	if err != nil || removed != 0 {
		t.Errorf("SweepExpired() = %d, %v, want 0, nil", removed, err)
	}
}

func TestEvictor_TryEvictLeastRecentlyAccessed(t *testing.T) {
	tests := []struct {
		name        string
		active      []string
		wantRemoved []string
	}{
		{
			name:        "oldest goes first",
			wantRemoved: []string{"https://a.test/1.mp4"},
		},
		{
			name:        "active resources are skipped",
			active:      []string{"https://a.test/1.mp4"},
			wantRemoved: []string{"https://a.test/2.mp4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEvictorFixture(0, 1000, tt.active...)
			f.add("https://a.test/1.mp4", 400, testNow.Add(-3*time.Hour))
			f.add("https://a.test/2.mp4", 400, testNow.Add(-2*time.Hour))
			f.add("https://a.test/3.mp4", 400, testNow.Add(-time.Hour))

			if err := f.evictor.TryEvict(context.Background()); err != nil {
				t.Fatalf("TryEvict() error = %v", err)
			}
			for _, url := range tt.wantRemoved {
				if f.fs.has(url) {
					t.Errorf("%s should have been evicted", url)
				}
			}
			if len(f.evicted) != len(tt.wantRemoved) {
				t.Errorf("evicted %d resources, want %d", len(f.evicted), len(tt.wantRemoved))
			}
			if !f.fs.has("https://a.test/3.mp4") {
				t.Error("most recent resource should survive")
			}
		})
	}
}

func TestEvictor_TryEvictRateLimited(t *testing.T) {
	f := newEvictorFixture(0, 1000)

	if err := f.evictor.TryEvict(context.Background()); err != nil {
		t.Fatalf("first TryEvict() error = %v", err)
	}
	if err := f.evictor.TryEvict(context.Background()); err == nil {
		t.Error("second TryEvict() within the interval should be rate-limited")
	}
}

func TestEvictor_NoCandidates(t *testing.T) {
	f := newEvictorFixture(0, 100, "https://a.test/1.mp4")
	f.add("https://a.test/1.mp4", 400, testNow.Add(-time.Hour))

	err := f.evictor.TryEvict(context.Background())
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("TryEvict() error = %v, want ErrNoCandidates", err)
	}
}

func TestEvictor_Remove(t *testing.T) {
	f := newEvictorFixture(0, 0, "https://a.test/busy.mp4")
	f.add("https://a.test/busy.mp4", 10, testNow)
	f.add("https://a.test/idle.mp4", 20, testNow)

	if _, err := f.evictor.Remove("https://a.test/busy.mp4"); !errors.Is(err, domain.ErrResourceActive) {
		t.Errorf("Remove(active) error = %v, want ErrResourceActive", err)
	}

	freed, err := f.evictor.Remove("https://a.test/idle.mp4")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if freed != 20 {
		t.Errorf("freed = %d, want 20", freed)
	}
	if f.evicted[0].Reason != ReasonManual {
		t.Errorf("reason = %q, want %q", f.evicted[0].Reason, ReasonManual)
	}
}

func TestEvictor_RemoveAll(t *testing.T) {
	f := newEvictorFixture(0, 0, "https://a.test/busy.mp4")
	f.add("https://a.test/busy.mp4", 10, testNow)
	f.add("https://a.test/a.mp4", 20, testNow)
	f.add("https://a.test/b.mp4", 30, testNow)

	removed, freed, err := f.evictor.RemoveAll(context.Background())
	if err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if removed != 2 || freed != 50 {
		t.Errorf("RemoveAll() = %d, %d, want 2, 50", removed, freed)
	}
	if !f.fs.has("https://a.test/busy.mp4") {
		t.Error("active resource should be kept")
	}
}

func TestEvictor_RemoveFailure(t *testing.T) {
	f := newEvictorFixture(7*24*time.Hour, 0)
	f.add("https://a.test/old.mp4", 100, testNow.Add(-30*24*time.Hour))
	f.fs.removeErr = errors.New("permission denied")

	removed, err := f.evictor.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if !f.catalog.has("https://a.test/old.mp4") {
		t.Error("catalog entry should stay when the files could not be removed")
	}
}
