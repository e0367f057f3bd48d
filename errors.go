package authkit

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied email/password pair
	// does not match an active account. Unknown emails produce the same error
	// as wrong passwords so callers cannot probe for registered accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while the account's lock window is still
	// open. The check runs before password verification.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountInactive is returned for accounts that exist and have the
	// right password but are not permitted to sign in.
	ErrAccountInactive = errors.New("account inactive")

	// ErrTokenExpired is returned for a structurally valid token whose expiry
	// has passed. For access tokens the caller should refresh; for refresh
	// tokens the user must sign in again.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned for tokens failing signature, issuer, or
	// audience checks, and for refresh tokens that were already consumed.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrSessionRevoked is returned when an access token verifies
	// cryptographically but its session record no longer exists.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRateLimited is returned when the caller exhausted the fixed-window
	// budget for the operation. Unwrap to *rate.LimitError for retry-after.
	ErrRateLimited = errors.New("rate limited")

	// ErrHandshakeStateInvalid is returned for unknown, already consumed, or
	// expired third-party login state tokens.
	ErrHandshakeStateInvalid = errors.New("handshake state invalid")

	// ErrStoreUnavailable signals a transient session-store failure on an
	// operation that must fail closed. The call is safe to retry.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrEngineNotReady is returned when the Engine was constructed without
	// the Builder or Build reported an error that was ignored.
	ErrEngineNotReady = errors.New("engine not initialized")
)
