package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// windowLimiter allows limit hits per key in each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	hits   map[string]windowHits
}

type windowHits struct {
	count int
	reset time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		hits:   make(map[string]windowHits),
	}
}

// allow records a hit for key. When the key is over its limit it returns false and the
// time left until the window resets.
func (l *windowLimiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.hits[key]
	if !ok || !now.Before(entry.reset) {
		l.hits[key] = windowHits{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if entry.count >= l.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	l.hits[key] = entry
	return true, 0
}

func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.hits {
		if !now.Before(entry.reset) {
			delete(l.hits, key)
		}
	}
}

// clientKey identifies the caller by address; RealIP has already resolved proxies.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
