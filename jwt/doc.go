// Package jwt issues and verifies the two token classes of the engine:
// short-lived access tokens and longer-lived refresh tokens, signed with
// separate HMAC secrets and separate audiences so neither verifier accepts
// the other class.
package jwt
