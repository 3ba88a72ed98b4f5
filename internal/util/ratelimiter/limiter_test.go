package ratelimiter

import (
	"sync"
	"testing"
	"time"
)

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

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		delays   []time.Duration // clock advance before each Allow() call
		want     []bool          // expected Allow() results
	}{
		{
			name:     "first call always allowed",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0},
			want:     []bool{true},
		},
		{
			name:     "second call immediately after is blocked",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0, 0},
			want:     []bool{true, false},
		},
		{
			name:     "call after interval is allowed",
			interval: 50 * time.Millisecond,
			delays:   []time.Duration{0, 60 * time.Millisecond},
			want:     []bool{true, true},
		},
		{
			name:     "call exactly at interval is allowed",
			interval: time.Second,
			delays:   []time.Duration{0, time.Second},
			want:     []bool{true, true},
		},
		{
			name:     "multiple rapid calls",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond, 90 * time.Millisecond},
			want:     []bool{true, false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			limiter := NewWithClock(tt.interval, clock.Now)

			for i, delay := range tt.delays {
				clock.Advance(delay)

				allowed, waitTime := limiter.Allow()
				if allowed != tt.want[i] {
					t.Errorf("call %d: Allow() = %v, want %v", i, allowed, tt.want[i])
				}

				if !allowed && waitTime <= 0 {
					t.Errorf("call %d: blocked but waitTime = %v, want > 0", i, waitTime)
				}

				if allowed && waitTime != 0 {
					t.Errorf("call %d: allowed but waitTime = %v, want 0", i, waitTime)
				}
			}
		})
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := NewWithClock(time.Second, newFakeClock().Now)

	// First call - should be allowed
	allowed, _ := limiter.Allow()
	if !allowed {
		t.Fatal("first call should be allowed")
	}

	// Second call immediately - should be blocked
	allowed, _ = limiter.Allow()
	if allowed {
		t.Fatal("second call should be blocked")
	}

	limiter.Reset()

	// Call after reset - should be allowed immediately
	allowed, _ = limiter.Allow()
	if !allowed {
		t.Fatal("call after reset should be allowed")
	}
}

func TestLimiter_Mark(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(time.Second, clock.Now)

	limiter.Allow()
	clock.Advance(900 * time.Millisecond)
	limiter.Mark()
	clock.Advance(200 * time.Millisecond)

	if allowed, wait := limiter.Allow(); allowed || wait != 800*time.Millisecond {
		t.Errorf("Allow() after Mark() = %v, %v, want false, 800ms", allowed, wait)
	}
}

func TestLimiter_TimeSinceLastAllowed(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(100*time.Millisecond, clock.Now)

	// Before any allowed call, should return max duration
	if d := limiter.TimeSinceLastAllowed(); d < time.Hour {
		t.Errorf("before any call, TimeSinceLastAllowed() = %v, want very large", d)
	}

	limiter.Allow()
	clock.Advance(50 * time.Millisecond)

	if d := limiter.TimeSinceLastAllowed(); d != 50*time.Millisecond {
		t.Errorf("TimeSinceLastAllowed() = %v, want 50ms", d)
	}
}

func TestLimiter_Interval(t *testing.T) {
	interval := 42 * time.Second
	limiter := New(interval)

	if got := limiter.Interval(); got != interval {
		t.Errorf("Interval() = %v, want %v", got, interval)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := New(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	// Launch 100 goroutines simultaneously
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _ := limiter.Allow()
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	// Only one should be allowed
	if allowedCount != 1 {
		t.Errorf("concurrent calls: %d allowed, want exactly 1", allowedCount)
	}
}
