package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a per-process sliding window log.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

// NewMemoryLimiter admits at most limit requests per key within window.
func NewMemoryLimiter(limit int, window time.Duration, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		limit:  max(limit, 1),
		window: window,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a hit for key when the window still has room.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	key = HashKey(key)
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hits[key]
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.limit {
		l.hits[key] = kept
		return Decision{
			Limit:      l.limit,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}, nil
	}

	kept = append(kept, now)
	l.hits[key] = kept
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - len(kept)}, nil
}

// Prune drops keys whose hits have all left the window.
func (l *MemoryLimiter) Prune() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}
