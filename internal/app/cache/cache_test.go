package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "stats:missing"); ok {
		t.Fatal("unexpected hit")
	}

	c.Set(ctx, "stats:weekly", []byte("payload"), time.Minute)
	val, ok := c.Get(ctx, "stats:weekly")
	if !ok || string(val) != "payload" {
		t.Fatalf("get = %q, %v", val, ok)
	}

	c.Set(ctx, "stats:stale", []byte("old"), -time.Second)
	if _, ok := c.Get(ctx, "stats:stale"); ok {
		t.Fatal("expired entry served")
	}

	// Zero TTL means no expiry.
	c.Set(ctx, "stats:pinned", []byte("keep"), 0)
	if _, ok := c.Get(ctx, "stats:pinned"); !ok {
		t.Fatal("zero-ttl entry evicted")
	}
}

func TestMemoryInvalidateByScope(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "stats:weekly", []byte("a"), 0)
	c.Set(ctx, "stats:totals", []byte("b"), 0)
	c.Set(ctx, "leaderboard:current", []byte("c"), 0)
	c.Set(ctx, "admin:pending", []byte("d"), 0)

	result := c.Invalidate(ctx, ScopeAnalytics)
	if !result.OK() {
		t.Fatalf("warnings: %v", result.Warnings)
	}
	if result.KeysRemoved != 2 {
		t.Fatalf("removed = %d, want 2", result.KeysRemoved)
	}
	if _, ok := c.Get(ctx, "leaderboard:current"); !ok {
		t.Fatal("unrelated scope invalidated")
	}

	// Raw prefixes work alongside named scopes.
	result = c.Invalidate(ctx, ScopeLeaderboard, "admin:")
	if result.KeysRemoved != 2 {
		t.Fatalf("removed = %d, want 2", result.KeysRemoved)
	}
	if _, ok := c.Get(ctx, "admin:pending"); ok {
		t.Fatal("admin prefix survived")
	}
}
