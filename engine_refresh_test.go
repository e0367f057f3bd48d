package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotatesSession(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.SessionID == pair.SessionID {
		t.Fatal("refresh kept the old session id")
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh returned the same refresh token")
	}
	if !mr.Exists("wp:s:" + rotated.SessionID) {
		t.Fatal("successor session not persisted")
	}

	if _, err := engine.Authenticate(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

func TestRefreshConsumedTokenRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	_, err = engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second use: err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshGarbageTokenRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())

	_, err := engine.Refresh(context.Background(), "not.a.jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Wrong class: signed with the access secret and audience.
	if _, err := engine.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

// Access tokens minted before a rotation stay valid until their own expiry;
// the superseded record holds the door open exactly that long.
func TestPreRotationAccessTokenStillValid(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if _, err := engine.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("pre-rotation access token rejected: %v", err)
	}

	// Once the grace TTL lapses the superseded record disappears and the
	// old token dies with its session.
	mr.FastForward(16 * time.Minute)
	if _, err := engine.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) && !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("err = %v, want expiry or revocation", err)
	}
}

func TestSupersededSessionNotListed(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	sessions, err := engine.ListSessions(ctx, "u-alice")
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("listed %d sessions, want 1", len(sessions))
	}
	if sessions[0].SessionID != rotated.SessionID {
		t.Fatalf("listed %s, want successor %s", sessions[0].SessionID, rotated.SessionID)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, fail := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrTokenInvalid):
			fail++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RefreshLimit = 2
	cfg.RateLimit.RefreshWindow = time.Minute
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// The limiter keys by session id, so repeated presentations of the same
	// (already consumed) token burn the same window.
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second use: err = %v, want ErrTokenInvalid", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third use: err = %v, want ErrRateLimited", err)
	}
}
