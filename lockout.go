package authkit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// lockoutTracker enforces the failed-login lockout on the persisted user
// record. Keeping the counter on the user document rather than in Redis
// means a lock survives process restarts and session-store outages, which a
// best-effort rate limiter cannot promise.
type lockoutTracker struct {
	users     UserProvider
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
}

func newLockoutTracker(users UserProvider, cfg LockoutConfig, logger *zap.Logger) *lockoutTracker {
	return &lockoutTracker{
		users:     users,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		logger:    logger,
	}
}

// isLocked reports whether the account's lock window is still open. Called
// before password verification so a locked account reveals nothing about
// the password's correctness.
func (t *lockoutTracker) isLocked(user UserRecord, now time.Time) bool {
	return !user.LockedUntil.IsZero() && now.Before(user.LockedUntil)
}

// recordFailure charges one failed attempt and opens the lock window when
// the threshold is reached. Persistence errors are logged, not returned:
// the login already failed and the caller's error must stay
// ErrInvalidCredentials.
func (t *lockoutTracker) recordFailure(ctx context.Context, user UserRecord, now time.Time) {
	attempts, err := t.users.IncrementFailedAttempts(ctx, user.UserID)
	if err != nil {
		t.logger.Warn("failed to persist login attempt counter",
			zap.String("user_id", user.UserID), zap.Error(err))
		return
	}

	if attempts >= t.threshold {
		until := now.Add(t.cooldown)
		if err := t.users.LockAccount(ctx, user.UserID, until); err != nil {
			t.logger.Warn("failed to persist account lock",
				zap.String("user_id", user.UserID), zap.Error(err))
			return
		}
		t.logger.Info("account locked after repeated failures",
			zap.String("user_id", user.UserID),
			zap.Int("attempts", attempts),
			zap.Time("until", until))
	}
}

// recordSuccess clears the counter and any expired lock window after a
// successful login.
func (t *lockoutTracker) recordSuccess(ctx context.Context, user UserRecord) {
	if user.FailedAttempts == 0 && user.LockedUntil.IsZero() {
		return
	}
	if err := t.users.ResetFailedAttempts(ctx, user.UserID); err != nil {
		t.logger.Warn("failed to reset login attempt counter",
			zap.String("user_id", user.UserID), zap.Error(err))
	}
}
