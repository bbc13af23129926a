package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/platform/requestctx"
)

type rateLimiter interface {
	Allow(key string) bool
}

// simpleRateLimiter keeps a rolling window of request timestamps per key.
// It is sized for a single process; the Firestore-backed session store is
// not involved.
type simpleRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	entries map[string][]time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration) *simpleRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &simpleRateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string][]time.Time),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key == "" {
		key = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneExpiredLocked(key, now)

	entries := l.entries[key]
	if len(entries) >= l.limit {
		return false
	}
	l.entries[key] = append(entries, now)
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(key string, now time.Time) {
	entries := l.entries[key]
	if len(entries) == 0 {
		return
	}
	cutoff := now.Add(-l.window)
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.entries, key)
		return
	}
	l.entries[key] = kept
}

// rateLimitMiddleware rejects requests over the per-session budget with a
// 429 envelope. A nil limiter disables the check.
func rateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !limiter.Allow(requestctx.SessionID(ctx)) {
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests, slow down", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
