package channels

import "testing"

func TestInboundRateLimiter_AllowsWithinLimit(t *testing.T) {
	r := NewInboundRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		if !r.Allow("sender1") {
			t.Fatalf("expected hit %d to be allowed", i)
		}
	}
}

func TestInboundRateLimiter_BlocksOverLimit(t *testing.T) {
	r := NewInboundRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		r.Allow("sender1")
	}
	if r.Allow("sender1") {
		t.Fatal("expected the hit beyond rateLimitMaxHits to be blocked")
	}
}

func TestInboundRateLimiter_TracksKeysIndependently(t *testing.T) {
	r := NewInboundRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		r.Allow("sender1")
	}
	if !r.Allow("sender2") {
		t.Fatal("expected a distinct key to be unaffected by sender1's count")
	}
}

func TestInboundRateLimiter_EvictsWhenTrackedKeysExceedCap(t *testing.T) {
	r := NewInboundRateLimiter()
	for i := 0; i < maxTrackedKeys+10; i++ {
		r.Allow(string(rune('a')) + string(rune(i)))
	}
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	if n > maxTrackedKeys {
		t.Fatalf("expected tracked key count to stay at or under %d, got %d", maxTrackedKeys, n)
	}
}
