package limiter

import (
	"context"
	"sync"
	"time"
)

// AttemptLimiter caps how many attempts a key may make inside a window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a per-process sliding window limiter.
type Memory struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries map[string][]time.Time
}

func NewMemory(max int, window time.Duration) *Memory {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{max: max, window: window, now: time.Now, entries: make(map[string][]time.Time)}
}

func (l *Memory) Allow(_ context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false, nil
	}
	l.entries[key] = append(kept, now)
	return true, nil
}
