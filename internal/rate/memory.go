package rate

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is the in-process limiter for deployments without Redis.
// Windows reset lazily on the next hit after expiry; there is no background
// sweeper, so long-idle keys linger until touched or the process restarts.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	limit   int64
	window  time.Duration

	now func() time.Time
}

// NewMemory creates a limiter allowing limit hits per window per key.
func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*memoryWindow),
		limit:   int64(limit),
		window:  window,
		now:     time.Now,
	}
}

// Allow charges one unit against the key's current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &memoryWindow{count: 1, resetAt: now.Add(l.window)}
		return nil
	}

	w.count++
	if w.count > l.limit {
		return &LimitError{RetryAfter: w.resetAt.Sub(now)}
	}
	return nil
}

// Reset clears the key's window.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}
