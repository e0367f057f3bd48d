package oauth

import (
	"context"
	"testing"
	"time"
)

// Memory-backed guard; the Redis path is exercised through the engine suite.
func newMemoryGuard(ttl time.Duration) *Guard {
	return NewGuard(nil, "wp", ttl)
}

func TestStartProducesMatchingMaterial(t *testing.T) {
	g := newMemoryGuard(10 * time.Minute)

	hs, err := g.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if hs.State == "" || hs.Verifier == "" || hs.Challenge == "" {
		t.Fatalf("incomplete material: %+v", hs)
	}
	if !VerifierMatches(hs.Verifier, hs.Challenge) {
		t.Fatal("verifier does not hash to the challenge")
	}
	if VerifierMatches("some-other-verifier-value-here-xx", hs.Challenge) {
		t.Fatal("foreign verifier matched the challenge")
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	g := newMemoryGuard(10 * time.Minute)
	ctx := context.Background()

	hs, err := g.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	challenge, ok, err := g.Redeem(ctx, hs.State)
	if err != nil || !ok {
		t.Fatalf("redeem = %v, %v; want true, nil", ok, err)
	}
	if challenge != hs.Challenge {
		t.Fatalf("challenge = %q, want the stored one", challenge)
	}

	if _, ok, _ := g.Redeem(ctx, hs.State); ok {
		t.Fatal("state redeemed twice")
	}
}

func TestRedeemUnknownOrEmptyState(t *testing.T) {
	g := newMemoryGuard(10 * time.Minute)
	ctx := context.Background()

	if _, ok, err := g.Redeem(ctx, "never-issued"); ok || err != nil {
		t.Fatalf("unknown state = %v, %v; want false, nil", ok, err)
	}
	if _, ok, err := g.Redeem(ctx, ""); ok || err != nil {
		t.Fatalf("empty state = %v, %v; want false, nil", ok, err)
	}
}

func TestMemoryStateExpires(t *testing.T) {
	store := newMemoryStateStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	g := &Guard{states: store, ttl: 10 * time.Minute}
	ctx := context.Background()

	hs, err := g.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	now = now.Add(11 * time.Minute)

	if _, ok, _ := g.Redeem(ctx, hs.State); ok {
		t.Fatal("expired state redeemed")
	}
}

func TestExpiredStatesSweptOnPut(t *testing.T) {
	store := newMemoryStateStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	g := &Guard{states: store, ttl: time.Minute}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.Start(ctx); err != nil {
			t.Fatalf("start %d failed: %v", i, err)
		}
	}

	now = now.Add(2 * time.Minute)
	if _, err := g.Start(ctx); err != nil {
		t.Fatalf("start after expiry failed: %v", err)
	}

	store.mu.Lock()
	n := len(store.states)
	store.mu.Unlock()
	if n != 1 {
		t.Fatalf("state map holds %d entries after sweep, want 1", n)
	}
}
