package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired means the token verified but its expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other verification failure: bad signature,
	// wrong issuer or audience, malformed input, wrong algorithm.
	ErrInvalid = errors.New("token invalid")
)

// Config carries the signing material and claim policy for both token
// classes. Secrets must be distinct so neither class can forge the other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	Issuer          string
	AccessAudience  string
	RefreshAudience string
	Leeway          time.Duration
}

// AccessClaims is the payload of an access token. It carries enough identity
// to authorize a request without a user-store round trip.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. Deliberately minimal: the
// session registry, not the token, decides whether a refresh is still valid.
type RefreshClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and verifies both token classes with HMAC-SHA256.
type Manager struct {
	config        Config
	accessParser  *jwt.Parser
	refreshParser *jwt.Parser
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("jwt secrets must be at least 32 bytes")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("jwt access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt TTLs must be positive")
	}
	if cfg.Issuer == "" || cfg.AccessAudience == "" || cfg.RefreshAudience == "" {
		return nil, errors.New("jwt issuer and audiences are required")
	}

	return &Manager{
		config:        cfg,
		accessParser:  newParser(cfg, cfg.AccessAudience),
		refreshParser: newParser(cfg, cfg.RefreshAudience),
	}, nil
}

func newParser(cfg Config, audience string) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	)
}

// CreateAccess signs an access token for the given identity and session.
func (m *Manager) CreateAccess(uid, email, role, sid string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID:   uid,
		Email: email,
		Role:  role,
		SID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.AccessAudience},
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
}

// CreateRefresh signs a refresh token bound to the same session lineage.
func (m *Manager) CreateRefresh(uid, sid string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UID: uid,
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.RefreshAudience},
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
}

// ParseAccess verifies an access token and returns its claims. Expired
// tokens return ErrExpired; everything else returns ErrInvalid.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := m.accessParser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.config.AccessSecret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !parsed.Valid || claims.UID == "" || claims.SID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	parsed, err := m.refreshParser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.config.RefreshSecret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !parsed.Valid || claims.UID == "" || claims.SID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func mapParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpired
	}
	return ErrInvalid
}
