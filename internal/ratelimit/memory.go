package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps fixed-window counters in process memory. Counters are per instance.
type MemoryLimiter struct {
	limit Limit
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-process limiter.
func NewMemoryLimiter(limit Limit) *MemoryLimiter {
	return &MemoryLimiter{limit: limit.normalized(), now: time.Now, windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.limit.Window {
		l.sweep(now)
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.limit.Max, nil
}

// sweep drops elapsed windows so idle keys do not accumulate.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.limit.Window {
			delete(l.windows, k)
		}
	}
}
