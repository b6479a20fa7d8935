package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval for each key. It is safe for
// concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// New creates a limiter that allows at most one action per interval per key
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, time.Now)
}

// NewWithClock creates a limiter that reads time from now
func NewWithClock(interval time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      now,
	}
}

// Allow reports whether an action for key may run now. When it may, the
// attempt is recorded; otherwise the remaining wait is returned.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	last, seen := l.last[key]
	if !seen || now.Sub(last) >= l.interval {
		l.last[key] = now
		return true, 0
	}
	return false, l.interval - now.Sub(last)
}

// Forget clears the state of one key
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.last, key)
	l.mu.Unlock()
}

// Reset clears every key
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.last = make(map[string]time.Time)
	l.mu.Unlock()
}

// LastAllowed returns when key was last allowed, and false if never
func (l *Limiter) LastAllowed(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.last[key]
	return t, ok
}

// Interval returns the configured interval
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
