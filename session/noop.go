package session

import (
	"context"
	"time"
)

// Noop is the Registry for deployments without Redis. Writes succeed without
// persisting anything; reads answer ErrNotTracked so the engine can apply
// its fail-open posture explicitly instead of mistaking "not stored" for
// "revoked".
//
// Under Noop there is no refresh reuse detection, no remote logout, and no
// session listing. Tokens remain bounded by their own expiry.
type Noop struct{}

var _ Registry = Noop{}

func (Noop) Save(context.Context, *Session, time.Duration) error { return nil }

func (Noop) Get(context.Context, string) (*Session, error) { return nil, ErrNotTracked }

func (Noop) Touch(context.Context, string, string, string, time.Time) error { return nil }

func (Noop) Supersede(context.Context, string, string, time.Duration) error { return nil }

func (Noop) Delete(context.Context, string) error { return nil }

func (Noop) DeleteAllForUser(context.Context, string) error { return nil }

func (Noop) ListForUser(context.Context, string) ([]*Session, error) {
	return nil, ErrNotTracked
}

func (Noop) PutGrant(context.Context, string, Grant, time.Duration) error { return nil }

func (Noop) ConsumeGrant(context.Context, string) (*Grant, error) {
	return nil, ErrNotTracked
}

func (Noop) Ping(context.Context) error { return nil }
