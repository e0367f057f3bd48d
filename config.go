package authkit

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wellport-health/authkit/password"
)

// TokenConfig controls the credential signer. Access and refresh tokens use
// separate HMAC secrets and separate audiences so a leaked verifier for one
// class can never validate the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	Issuer          string
	AccessAudience  string
	RefreshAudience string
	// Leeway tolerates clock skew between the issuing and verifying hosts.
	Leeway time.Duration
}

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	// RedisPrefix namespaces every key the engine writes.
	RedisPrefix string
	// TouchBuffer bounds the queue of detached last-activity updates.
	TouchBuffer int
}

// LockoutConfig controls the failed-login lockout tracker. Counters live on
// the user record, not in Redis, so locks hold across store outages.
type LockoutConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// RateLimitConfig controls the fixed-window request throttles. Login is keyed
// by normalized email; refresh by session id. Throttling is best effort and
// layered under the lockout tracker, which is the durable control.
type RateLimitConfig struct {
	LoginLimit  int
	LoginWindow time.Duration
	// PerIP additionally throttles login by caller IP when one is attached
	// to the context.
	PerIP         bool
	PerIPLimit    int
	RefreshLimit  int
	RefreshWindow time.Duration
}

// HandshakeConfig controls the third-party login state guard.
type HandshakeConfig struct {
	StateTTL time.Duration
}

// AvailabilityConfig sets the engine's posture when the session store is
// unreachable. Login and Refresh always fail closed; only the Authenticate
// liveness check is configurable.
type AvailabilityConfig struct {
	// FailOpenLiveness lets Authenticate accept a cryptographically valid
	// access token when the store cannot be reached, trading revocation
	// latency for availability. Tokens still expire on their own clock.
	FailOpenLiveness bool
	// StoreTimeout bounds every registry round trip.
	StoreTimeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events instead of blocking the request path when
	// the buffer is saturated.
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config aggregates all engine settings. Obtain a baseline from the Builder
// and override fields before Build; Validate runs during Build.
type Config struct {
	Token        TokenConfig
	Session      SessionConfig
	Lockout      LockoutConfig
	RateLimit    RateLimitConfig
	Handshake    HandshakeConfig
	Availability AvailabilityConfig
	Password     password.Config
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// DefaultConfig returns the baseline configuration. Secrets are not set;
// the host must supply them before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      14 * 24 * time.Hour,
			Issuer:          "wellport-auth",
			AccessAudience:  "wellport-api",
			RefreshAudience: "wellport-refresh",
			Leeway:          30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "wp",
			TouchBuffer: 256,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Cooldown:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			LoginLimit:    20,
			LoginWindow:   15 * time.Minute,
			PerIP:         false,
			PerIPLimit:    100,
			RefreshLimit:  30,
			RefreshWindow: time.Minute,
		},
		Handshake: HandshakeConfig{
			StateTTL: 10 * time.Minute,
		},
		Availability: AvailabilityConfig{
			FailOpenLiveness: true,
			StoreTimeout:     3 * time.Second,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate reports the first configuration problem found. Build calls it;
// hosts that assemble Config by hand should call it too.
func (c Config) Validate() error {
	if len(c.Token.AccessSecret) < 32 {
		return errors.New("token access secret must be at least 32 bytes")
	}
	if len(c.Token.RefreshSecret) < 32 {
		return errors.New("token refresh secret must be at least 32 bytes")
	}
	if bytes.Equal(c.Token.AccessSecret, c.Token.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("access TTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Token.Issuer == "" {
		return errors.New("token issuer is required")
	}
	if c.Token.AccessAudience == "" || c.Token.RefreshAudience == "" {
		return errors.New("token audiences are required")
	}
	if c.Token.AccessAudience == c.Token.RefreshAudience {
		return errors.New("access and refresh audiences must differ")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 5*time.Minute {
		return errors.New("token leeway must be between 0 and 5 minutes")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix is required")
	}
	if c.Session.TouchBuffer < 1 {
		return errors.New("session touch buffer must be >= 1")
	}
	if c.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if c.Lockout.Cooldown <= 0 {
		return errors.New("lockout cooldown must be positive")
	}
	if c.RateLimit.LoginLimit < 1 || c.RateLimit.RefreshLimit < 1 {
		return errors.New("rate limits must be >= 1")
	}
	if c.RateLimit.LoginWindow <= 0 || c.RateLimit.RefreshWindow <= 0 {
		return errors.New("rate limit windows must be positive")
	}
	if c.RateLimit.PerIP && c.RateLimit.PerIPLimit < 1 {
		return errors.New("per-IP login limit must be >= 1")
	}
	if c.Handshake.StateTTL <= 0 {
		return errors.New("handshake state TTL must be positive")
	}
	if c.Availability.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit buffer size must be >= 1, got %d", c.Audit.BufferSize)
	}
	return nil
}
