package limiter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	hits  int
}

// Memory is a single-process limiter. Multi-instance deployments need PG.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	limit   int
	now     func() time.Time
}

var (
	_ Limiter = (*Memory)(nil)
	_ Pruner  = (*Memory)(nil)
)

// NewMemory constructs an in-process limiter.
func NewMemory(size time.Duration, limit int) *Memory {
	return NewMemoryWithClock(size, limit, time.Now)
}

// NewMemoryWithClock constructs an in-process limiter with an injected clock.
func NewMemoryWithClock(size time.Duration, limit int, now func() time.Time) *Memory {
	if size <= 0 {
		size = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{windows: make(map[string]*window), size: size, limit: limit, now: now}
}

// Allow counts one attempt in the current window for key.
func (l *Memory) Allow(_ context.Context, key []byte) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[string(key)]
	if !ok || !now.Before(w.start.Add(l.size)) {
		l.windows[string(key)] = &window{start: now, hits: 1}
		return true, 0, nil
	}
	if w.hits >= l.limit {
		return false, w.start.Add(l.size).Sub(now), nil
	}
	w.hits++
	return true, 0, nil
}

// Prune drops windows that have already reset.
func (l *Memory) Prune(context.Context) (int64, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.size)) {
			delete(l.windows, k)
			n++
		}
	}
	return n, nil
}
