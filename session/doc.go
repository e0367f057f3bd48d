// Package session owns session persistence: JSON records with a per-user
// index, and refresh grants whose presence in the store is what makes a
// refresh token redeemable.
//
// # Architecture boundaries
//
// This package stores and retrieves; it does not interpret tokens or make
// policy decisions. The [Registry] interface is the seam the engine programs
// against, with [Store] (Redis) and [Noop] (untracked deployments) behind it.
//
// # Consistency
//
// Record deletion and index removal happen in one Lua script. Grant
// consumption is a single GETDEL, which is how concurrent refreshes of the
// same token resolve to exactly one winner.
package session
