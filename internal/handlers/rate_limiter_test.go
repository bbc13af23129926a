package handlers

import (
	"testing"
	"time"
)

func TestSimpleRateLimiterEnforcesLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("sess-1") || !limiter.Allow("sess-1") {
		t.Fatal("expected the first two requests to pass")
	}
	if limiter.Allow("sess-1") {
		t.Fatal("expected the third request to be limited")
	}
	if !limiter.Allow("sess-2") {
		t.Fatal("expected an independent budget per key")
	}
}

func TestSimpleRateLimiterWindowExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("sess-1") {
		t.Fatal("expected the first request to pass")
	}
	if limiter.Allow("sess-1") {
		t.Fatal("expected the second request to be limited")
	}

	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow("sess-1") {
		t.Fatal("expected the budget to reset after the window")
	}
}

func TestSimpleRateLimiterEmptyKey(t *testing.T) {
	limiter := newSimpleRateLimiter(1, time.Minute)

	if !limiter.Allow("") {
		t.Fatal("expected the empty key to share the anonymous budget")
	}
	if limiter.Allow("anonymous") {
		t.Fatal("expected anonymous budget to be shared with the empty key")
	}
}

func TestNilRateLimiterAllows(t *testing.T) {
	var limiter *simpleRateLimiter
	if !limiter.Allow("sess-1") {
		t.Fatal("expected a nil limiter to allow requests")
	}
}
