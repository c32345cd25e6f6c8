package syncer

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by an arbitrary identifier
// (the sync endpoint uses "userID:clientIP"). It is constructor-injected
// rather than package-global so tests can create and discard instances
// deterministically. Expired windows are pruned lazily on access.
type RateLimiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	max     int
	window  time.Duration
	nowFunc func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per key within the
// sliding window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:    make(map[string][]time.Time),
		max:     max,
		window:  window,
		nowFunc: time.Now,
	}
}

// Allow records a request for the key and reports whether it is within the
// limit. Denied requests are not recorded, so a throttled client does not
// extend its own penalty.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	recent := r.prune(key, now)
	if len(recent) >= r.max {
		r.hits[key] = recent
		return false
	}

	r.hits[key] = append(recent, now)
	return true
}

// RetryAfter returns how long the key must wait before the oldest hit in the
// window expires. Zero when the key is not currently limited.
func (r *RateLimiter) RetryAfter(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	recent := r.prune(key, now)
	r.hits[key] = recent
	if len(recent) < r.max {
		return 0
	}
	return recent[0].Add(r.window).Sub(now)
}

// Reset clears all recorded hits.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	r.hits = make(map[string][]time.Time)
	r.mu.Unlock()
}

func (r *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	recorded := r.hits[key]
	i := 0
	for i < len(recorded) && !recorded[i].After(cutoff) {
		i++
	}
	if i == len(recorded) {
		delete(r.hits, key)
		return nil
	}
	return recorded[i:]
}
