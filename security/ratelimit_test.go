package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Rate: 1, Burst: 3}, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("203.0.113.7") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if rl.Allow("203.0.113.7") {
		t.Error("request beyond burst should be rejected")
	}

	// other identifiers have their own bucket
	if !rl.Allow("198.51.100.1") {
		t.Error("different identifier should be allowed")
	}
}

func TestRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Rate: 1, Burst: 1, MaxEntries: 3}, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("client-%d", i))
	}

	if got := rl.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}

	// client-0 was evicted, so it gets a fresh bucket
	if !rl.Allow("client-0") {
		t.Error("evicted identifier should start with a full bucket")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Rate: 1, Burst: 1}, nil)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	time.Sleep(20 * time.Millisecond)
	rl.Allow("c")

	rl.Cleanup(10 * time.Millisecond)

	if got := rl.Len(); got != 1 {
		t.Errorf("Len() after cleanup = %d, want 1", got)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Rate: 1, Burst: 1}, nil)
	rl.Stop()
	rl.Stop()
}
