package realtime

import (
	"sync"
	"time"
)

// IPRateLimiter tracks a sliding window of connection attempts per source
// address. It is process-global shared state; all access goes through the
// mutex. Entries are pruned opportunistically on each check and when a
// connection closes.
type IPRateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	byAddr map[string][]time.Time
}

// NewIPRateLimiter allows max connections per address within window.
func NewIPRateLimiter(max int, window time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		max:    max,
		window: window,
		now:    time.Now,
		byAddr: make(map[string][]time.Time),
	}
}

// Allow records a connection attempt from addr and reports whether it is
// within the window limit.
func (l *IPRateLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	recent := l.byAddr[addr][:0]
	for _, t := range l.byAddr[addr] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.byAddr[addr] = recent
		return false
	}

	l.byAddr[addr] = append(recent, l.now())
	return true
}

// Forget prunes expired entries for addr, dropping the bucket entirely when
// nothing recent remains. Called on disconnect.
func (l *IPRateLimiter) Forget(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	recent := l.byAddr[addr][:0]
	for _, t := range l.byAddr[addr] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(l.byAddr, addr)
		return
	}
	l.byAddr[addr] = recent
}
