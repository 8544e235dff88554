package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates requests per client key. A nil RateLimiter admits everything.
type RateLimiter interface {
	Allow(key string) bool
}

// NewRateLimiter returns an in-memory token-bucket limiter allowing limit
// requests per window for each key. Returns nil when limit or window is
// non-positive, which disables limiting.
func NewRateLimiter(limit int, window time.Duration) RateLimiter {
	return newSimpleRateLimiter(limit, window, nil)
}

type simpleRateLimiter struct {
	rate   rate.Limit
	burst  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]*rateEntry
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		rate:   rate.Limit(float64(limit) / window.Seconds()),
		burst:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]*rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.store[key] = entry
		l.pruneIdleLocked(now)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// An entry idle for a full window has refilled its burst and is
// indistinguishable from a fresh one, so it can be dropped.
func (l *simpleRateLimiter) pruneIdleLocked(now time.Time) {
	for key, entry := range l.store {
		if entry.lastSeen.IsZero() {
			continue
		}
		if now.Sub(entry.lastSeen) >= l.window {
			delete(l.store, key)
		}
	}
}
