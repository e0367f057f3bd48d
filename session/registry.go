package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps any Redis transport or server failure.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrNotFound means the requested record or grant does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrNotTracked is returned by the Noop registry: the deployment does not
	// persist sessions, so liveness and revocation cannot be answered.
	ErrNotTracked = errors.New("sessions not tracked")
)

// Registry is the persistence capability the engine programs against. The
// engine branches only on the sentinel errors above, never on the concrete
// implementation.
type Registry interface {
	// Save writes the session record and adds it to the owner's index.
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	// Get returns the record, including superseded ones still inside their
	// grace window. ErrNotFound when absent.
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Touch updates last-activity metadata without changing the TTL.
	Touch(ctx context.Context, sessionID, ip, device string, at time.Time) error
	// Supersede marks the record as rotated away and shortens its TTL to the
	// given grace period. The record stays in the owner's index so logout-all
	// still reaches it.
	Supersede(ctx context.Context, sessionID, rotatedTo string, grace time.Duration) error
	// Delete removes the record, its index entry, and its current grant.
	// Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// DeleteAllForUser removes every record, grant, and the index itself.
	DeleteAllForUser(ctx context.Context, userID string) error
	// ListForUser returns all live records in the owner's index, superseded
	// ones included; callers filter.
	ListForUser(ctx context.Context, userID string) ([]*Session, error)

	// PutGrant registers an unconsumed refresh token by hash.
	PutGrant(ctx context.Context, tokenHash string, grant Grant, ttl time.Duration) error
	// ConsumeGrant atomically reads and deletes a grant. Exactly one of any
	// number of concurrent callers receives the grant; the rest get
	// ErrNotFound.
	ConsumeGrant(ctx context.Context, tokenHash string) (*Grant, error)

	// Ping reports point-in-time availability.
	Ping(ctx context.Context) error
}
