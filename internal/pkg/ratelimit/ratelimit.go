// Package ratelimit caps how often a key (an application user) may request an OTP.
//
// Both implementations use a fixed window: the counter resets wholesale when
// the window elapses, so up to 2×limit requests can land around a boundary.
// That is acceptable for abuse deterrence.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more request for key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is a process-local fixed-window counter. In a multi-instance
// deployment every process enforces its own limit; use RedisFixedWindow for a
// shared one.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewFixedWindow allows limit requests per key per period and sweeps stale
// counters every sweepEvery (0 disables the sweeper).
func NewFixedWindow(limit int, period, sweepEvery time.Duration) *FixedWindow {
	fw := &FixedWindow{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go fw.sweep(sweepEvery)
	}
	return fw
}

func (fw *FixedWindow) Allow(_ context.Context, key string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	w, ok := fw.windows[key]
	if !ok {
		fw.windows[key] = &window{count: 1, resetAt: now.Add(fw.period)}
		return fw.limit > 0
	}
	if now.After(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(fw.period)
		return fw.limit > 0
	}
	if w.count < fw.limit {
		w.count++
		return true
	}
	return false
}

// sweep removes counters whose window has closed.
func (fw *FixedWindow) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-fw.stop:
			return
		case <-t.C:
			fw.mu.Lock()
			now := fw.now()
			for k, w := range fw.windows {
				if now.After(w.resetAt) {
					delete(fw.windows, k)
				}
			}
			fw.mu.Unlock()
		}
	}
}

// Close stops the sweeper.
func (fw *FixedWindow) Close() {
	fw.once.Do(func() { close(fw.stop) })
}
