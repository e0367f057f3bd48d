// Package authkit is the authentication and session-lifecycle engine of the
// Wellport record platform: JWT access/refresh pairs with rotation and reuse
// detection, a Redis-backed session registry, durable failed-login lockout,
// fixed-window throttling, and a single-use state guard for third-party
// login handshakes.
//
// The host application owns HTTP routing and the user document store and
// plugs both in through [Builder]: routing calls [Engine] methods, the user
// store implements [UserProvider]. Engine methods are safe for concurrent
// use after [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface: [Engine], [Builder], [Config], and value
// types. Token signing lives in jwt/, persistence in session/, the
// handshake guard in oauth/, password hashing in password/; throttles and
// background plumbing stay under internal/.
//
// # Availability posture
//
// Login and Refresh fail closed when the session store is unreachable: no
// token is issued without a registered session. Authenticate fails open by
// default (a signed, unexpired token is accepted, revocation resumes when
// the store returns); set Availability.FailOpenLiveness to false to invert
// that trade.
package authkit
