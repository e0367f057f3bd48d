package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockoutAfterThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.Threshold = 5
	cfg.Lockout.Cooldown = 30 * time.Minute
	cfg.RateLimit.LoginLimit = 100 // keep the throttle out of the way
	engine, _, users := newTestEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := engine.Login(ctx, "alice@wellport.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i, err)
		}
	}

	locked := users.get("u-alice")
	if locked.LockedUntil.IsZero() {
		t.Fatal("lock window not persisted after threshold")
	}

	// The right password is irrelevant while the window is open.
	_, err := engine.Login(ctx, "alice@wellport.test", testPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

func TestLockoutBelowThresholdDoesNotLock(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.LoginLimit = 100
	engine, _, users := newTestEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = engine.Login(ctx, "alice@wellport.test", "wrong")
	}
	if !users.get("u-alice").LockedUntil.IsZero() {
		t.Fatal("account locked below threshold")
	}
	if _, err := engine.Login(ctx, "alice@wellport.test", testPassword); err != nil {
		t.Fatalf("login failed below threshold: %v", err)
	}
}

func TestLockoutExpiresAfterCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.LoginLimit = 100
	engine, _, users := newTestEngine(t, cfg)
	ctx := context.Background()

	u := users.get("u-alice")
	u.FailedAttempts = 5
	u.LockedUntil = time.Now().Add(-time.Minute) // window already over
	users.set(u)

	if _, err := engine.Login(ctx, "alice@wellport.test", testPassword); err != nil {
		t.Fatalf("login after cooldown failed: %v", err)
	}

	after := users.get("u-alice")
	if after.FailedAttempts != 0 || !after.LockedUntil.IsZero() {
		t.Fatalf("counters not reset after successful login: %+v", after)
	}
}

func TestLockoutCheckedBeforePassword(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.LoginLimit = 100
	engine, _, users := newTestEngine(t, cfg)
	ctx := context.Background()

	u := users.get("u-alice")
	u.LockedUntil = time.Now().Add(10 * time.Minute)
	users.set(u)

	// Wrong and right passwords answer identically while locked.
	_, errWrong := engine.Login(ctx, "alice@wellport.test", "wrong")
	_, errRight := engine.Login(ctx, "alice@wellport.test", testPassword)
	if !errors.Is(errWrong, ErrAccountLocked) || !errors.Is(errRight, ErrAccountLocked) {
		t.Fatalf("errs = %v / %v, want ErrAccountLocked for both", errWrong, errRight)
	}

	// And the counter must not have moved.
	if got := users.get("u-alice").FailedAttempts; got != 0 {
		t.Fatalf("failed attempts = %d, want 0", got)
	}
}
