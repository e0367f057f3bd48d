// Package oauth guards the browser-mediated third-party login handshake:
// single-use CSRF state tokens plus PKCE verifier/challenge generation.
package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/wellport-health/authkit/internal"
)

// ErrUnavailable wraps a state-store failure during the handshake.
var ErrUnavailable = errors.New("handshake store unavailable")

// Handshake is the material for one third-party login attempt. State travels
// through the browser and is verified on return; Verifier stays with the
// initiating client and is presented to the identity provider's token
// endpoint; Challenge is what the provider saw at authorization time.
type Handshake struct {
	State     string
	Verifier  string
	Challenge string
}

// Guard issues and redeems handshake state. Each state token is accepted at
// most once and expires after the configured TTL, so a replayed or forged
// callback is rejected.
type Guard struct {
	states stateStore
	ttl    time.Duration
}

// NewGuard creates a Guard. With a nil client the state lives in process
// memory, which is sufficient for single-instance deployments only.
func NewGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *Guard {
	var states stateStore
	if client != nil {
		states = &redisStateStore{redis: client, prefix: prefix}
	} else {
		states = newMemoryStateStore()
	}
	return &Guard{states: states, ttl: ttl}
}

// Start mints a state token and a PKCE pair, and registers the state. The
// challenge is stored alongside the state; the verifier is returned to the
// caller and never persisted.
func (g *Guard) Start(ctx context.Context) (*Handshake, error) {
	state, err := internal.NewStateToken()
	if err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	if err := g.states.put(ctx, state, challenge, g.ttl); err != nil {
		return nil, err
	}

	return &Handshake{State: state, Verifier: verifier, Challenge: challenge}, nil
}

// Redeem consumes a state token. It returns the stored challenge and true
// exactly once per token; unknown, expired, or already consumed states
// return false.
func (g *Guard) Redeem(ctx context.Context, state string) (string, bool, error) {
	if state == "" {
		return "", false, nil
	}
	return g.states.take(ctx, state)
}

// VerifierMatches reports whether a presented verifier hashes to the stored
// challenge, in constant time.
func VerifierMatches(verifier, challenge string) bool {
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

type stateStore interface {
	put(ctx context.Context, state, challenge string, ttl time.Duration) error
	take(ctx context.Context, state string) (string, bool, error)
}

type redisStateStore struct {
	redis  redis.UniversalClient
	prefix string
}

func (s *redisStateStore) key(state string) string {
	return s.prefix + ":o:" + state
}

func (s *redisStateStore) put(ctx context.Context, state, challenge string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(state), challenge, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisStateStore) take(ctx context.Context, state string) (string, bool, error) {
	challenge, err := s.redis.GetDel(ctx, s.key(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return challenge, true, nil
}
