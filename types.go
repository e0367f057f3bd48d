package authkit

import (
	"context"
	"time"
)

// AccountStatus is the sign-in eligibility of a user record as stored by the
// host platform.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
)

// UserRecord is the engine's view of a user document. The host platform owns
// the document store; the engine only reads the fields it needs and asks the
// provider to persist lockout bookkeeping.
type UserRecord struct {
	UserID         string
	Email          string
	PasswordHash   string
	Role           string
	Status         AccountStatus
	FailedAttempts int
	// LockedUntil is the end of the current lock window. Zero means the
	// account is not locked.
	LockedUntil time.Time
}

// UserProvider is implemented by the host application on top of its user
// document store. All methods must be safe for concurrent use.
//
// GetUserByEmail returns the record for a registered email. Any error is
// treated by the engine as "no such account"; do not distinguish not-found
// from lookup failure in ways that leak through timing.
//
// The lockout methods persist failed-attempt counters on the user document so
// a lock survives process restarts and session-store outages.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)

	// IncrementFailedAttempts adds one to the stored counter and returns the
	// new value.
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	// ResetFailedAttempts zeroes the counter and clears any lock window.
	ResetFailedAttempts(ctx context.Context, userID string) error
	// LockAccount sets the lock window end. The counter is left as is; it is
	// cleared on the next successful login.
	LockAccount(ctx context.Context, userID string, until time.Time) error
}

// TokenPair is the result of Login and Refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	// ExpiresIn is the access-token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Identity is the authenticated caller attached to a request after
// Authenticate succeeds.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// SessionInfo is one active session as reported by ListSessions. Sessions
// superseded by a refresh rotation are not listed.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IP           string    `json:"ip,omitempty"`
	Device       string    `json:"device,omitempty"`
}
