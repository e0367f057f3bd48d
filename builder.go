package authkit

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wellport-health/authkit/internal/rate"
	"github.com/wellport-health/authkit/internal/tasks"
	"github.com/wellport-health/authkit/jwt"
	"github.com/wellport-health/authkit/oauth"
	"github.com/wellport-health/authkit/password"
	"github.com/wellport-health/authkit/session"
)

// Handshake is the material for one third-party login attempt.
type Handshake = oauth.Handshake

// Builder assembles an Engine. Without a Redis client the engine runs in
// untracked mode: tokens verify on signature alone, refresh reuse cannot be
// detected, and throttles live in process memory.
type Builder struct {
	config Config
	redis  *redis.Client
	logger *zap.Logger

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New starts a Builder with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. A Builder is
// single use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:    cloneBytes(cfg.Token.AccessSecret),
		RefreshSecret:   cloneBytes(cfg.Token.RefreshSecret),
		AccessTTL:       cfg.Token.AccessTTL,
		RefreshTTL:      cfg.Token.RefreshTTL,
		Issuer:          cfg.Token.Issuer,
		AccessAudience:  cfg.Token.AccessAudience,
		RefreshAudience: cfg.Token.RefreshAudience,
		Leeway:          cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		tokens:    tokens,
		users:     b.userProvider,
		passwords: hasher,
	}

	if b.redis != nil {
		engine.registry = session.NewStore(b.redis, cfg.Session.RedisPrefix)
		engine.loginLimiter = rate.NewRedis(b.redis, cfg.Session.RedisPrefix, cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
		engine.refreshLimiter = rate.NewRedis(b.redis, cfg.Session.RedisPrefix, cfg.RateLimit.RefreshLimit, cfg.RateLimit.RefreshWindow)
		if cfg.RateLimit.PerIP {
			engine.ipLimiter = rate.NewRedis(b.redis, cfg.Session.RedisPrefix, cfg.RateLimit.PerIPLimit, cfg.RateLimit.LoginWindow)
		}
	} else {
		engine.registry = session.Noop{}
		engine.loginLimiter = rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
		engine.refreshLimiter = rate.NewMemory(cfg.RateLimit.RefreshLimit, cfg.RateLimit.RefreshWindow)
		if cfg.RateLimit.PerIP {
			engine.ipLimiter = rate.NewMemory(cfg.RateLimit.PerIPLimit, cfg.RateLimit.LoginWindow)
		}
	}

	var guardClient redis.UniversalClient
	if b.redis != nil {
		guardClient = b.redis
	}
	engine.guard = oauth.NewGuard(guardClient, cfg.Session.RedisPrefix, cfg.Handshake.StateTTL)

	engine.lockout = newLockoutTracker(b.userProvider, cfg.Lockout, logger)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.touches = tasks.NewRunner(cfg.Session.TouchBuffer, cfg.Availability.StoreTimeout, logger)

	b.built = true
	return engine, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
