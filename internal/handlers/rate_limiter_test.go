package handlers

import (
	"testing"
	"time"
)

func TestRateLimiterIsolatesKeys(t *testing.T) {
	now := time.Date(2026, 5, 12, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return now })

	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected first request for key to pass")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected other key unaffected")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected second request for key to be rejected")
	}
}

func TestRateLimiterRefillsAfterWindow(t *testing.T) {
	now := time.Date(2026, 5, 12, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return now })

	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected first request to pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected request inside window to be rejected")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected request after window to pass")
	}
}

func TestNewRateLimiterDisabledWhenNonPositive(t *testing.T) {
	if NewRateLimiter(0, time.Minute) != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
	if NewRateLimiter(5, 0) != nil {
		t.Fatalf("expected nil limiter for zero window")
	}
}
