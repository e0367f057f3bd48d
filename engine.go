package authkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wellport-health/authkit/internal"
	"github.com/wellport-health/authkit/internal/rate"
	"github.com/wellport-health/authkit/internal/tasks"
	"github.com/wellport-health/authkit/jwt"
	"github.com/wellport-health/authkit/oauth"
	"github.com/wellport-health/authkit/password"
	"github.com/wellport-health/authkit/session"
)

// Engine is the session orchestrator. Build one with the Builder and share
// it across goroutines; all methods are safe for concurrent use.
type Engine struct {
	config    Config
	logger    *zap.Logger
	tokens    *jwt.Manager
	registry  session.Registry
	users     UserProvider
	passwords *password.Hasher
	lockout   *lockoutTracker

	loginLimiter   rate.Limiter
	ipLimiter      rate.Limiter
	refreshLimiter rate.Limiter

	guard   *oauth.Guard
	audit   *auditDispatcher
	metrics *Metrics
	touches *tasks.Runner
}

func (e *Engine) ready() bool {
	return e != nil && e.tokens != nil && e.registry != nil && e.users != nil
}

// storeCtx bounds a registry round trip with the configured timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Availability.StoreTimeout)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and opens a session. On success it returns a
// fresh access/refresh pair bound to a new session id.
//
// Failure order: rate limit, account existence, lock window, password,
// account status. Unknown emails and wrong passwords both come back as
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if err := e.allowLogin(ctx, email, ip); err != nil {
		e.metrics.Inc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err)
		return nil, err
	}

	if email == "" || pass == "" {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if e.lockout.isLocked(user, now) {
		e.metrics.Inc(MetricAccountLockout)
		e.emitAudit(ctx, auditEventAccountLocked, false, user.UserID, "", ErrAccountLocked)
		return nil, ErrAccountLocked
	}

	ok, err := e.passwords.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.lockout.recordFailure(ctx, user, now)
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if user.Status != StatusActive {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrAccountInactive)
		return nil, ErrAccountInactive
	}

	pair, err := e.openSession(ctx, user, now)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", err)
		return nil, err
	}

	e.lockout.recordSuccess(ctx, user)
	e.resetLogin(ctx, email, ip)

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, pair.SessionID, nil)
	return pair, nil
}

// openSession mints a token pair and registers the session record and its
// refresh grant. Both writes fail closed: no tokens leave without a
// registered session.
func (e *Engine) openSession(ctx context.Context, user UserRecord, now time.Time) (*TokenPair, error) {
	sid := internal.NewSessionID()

	access, err := e.tokens.CreateAccess(user.UserID, user.Email, user.Role, sid)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.CreateRefresh(user.UserID, sid)
	if err != nil {
		return nil, err
	}
	grantHash := internal.HashToken(refresh)

	sess := &session.Session{
		SessionID:    sid,
		UserID:       user.UserID,
		Email:        user.Email,
		Role:         user.Role,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		IP:           clientIPFromContext(ctx),
		Device:       deviceFromContext(ctx),
		GrantHash:    grantHash,
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.registry.Save(sctx, sess, e.config.Token.RefreshTTL); err != nil {
		e.logger.Warn("session save failed", zap.String("session_id", sid), zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	grant := session.Grant{UserID: user.UserID, SessionID: sid, Email: user.Email, Role: user.Role}
	if err := e.registry.PutGrant(sctx, grantHash, grant, e.config.Token.RefreshTTL); err != nil {
		// Roll the record back so a half-opened session cannot linger.
		if delErr := e.registry.Delete(sctx, sid); delErr != nil {
			e.logger.Warn("rollback of half-opened session failed",
				zap.String("session_id", sid), zap.Error(delErr))
		}
		return nil, ErrStoreUnavailable
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sid,
		ExpiresIn:    int64(e.config.Token.AccessTTL.Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed
// atomically, a new session lineage is opened, and the old record is kept
// briefly as superseded so access tokens minted before the rotation run out
// their natural lifetime.
//
// A structurally valid refresh token whose grant is gone means the token was
// already used; the whole lineage is revoked and the caller gets
// ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		mapped := ErrTokenInvalid
		if errors.Is(err, jwt.ErrExpired) {
			mapped = ErrTokenExpired
		}
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapped)
		return nil, mapped
	}

	if err := e.refreshLimiter.Allow(ctx, claims.SID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.Inc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, claims.UID, claims.SID, err)
			return nil, errors.Join(ErrRateLimited, err)
		}
		e.logger.Warn("refresh throttle check failed, allowing", zap.Error(err))
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	grant, err := e.registry.ConsumeGrant(sctx, internal.HashToken(refreshToken))
	switch {
	case err == nil:
		// Sole winner for this token; proceed.
	case errors.Is(err, session.ErrNotTracked):
		return e.refreshUntracked(ctx, claims)
	case errors.Is(err, session.ErrNotFound):
		e.revokeLineage(ctx, claims.SID)
		e.metrics.Inc(MetricRefreshReuseDetected)
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.UID, claims.SID, ErrTokenInvalid)
		e.logger.Warn("refresh token reuse detected, lineage revoked",
			zap.String("user_id", claims.UID), zap.String("session_id", claims.SID))
		return nil, ErrTokenInvalid
	default:
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}

	if grant.UserID != claims.UID || grant.SessionID != claims.SID {
		e.revokeLineage(ctx, claims.SID)
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, claims.SID, ErrTokenInvalid)
		return nil, ErrTokenInvalid
	}

	pair, err := e.rotateSession(ctx, sctx, grant, time.Now())
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, claims.SID, err)
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.UID, pair.SessionID, nil)
	return pair, nil
}

// rotateSession opens the successor session and supersedes the previous
// record. The superseded record keeps a grace TTL of one access lifetime so
// tokens minted before the rotation stay live until they expire on their
// own.
func (e *Engine) rotateSession(ctx, sctx context.Context, prev *session.Grant, now time.Time) (*TokenPair, error) {
	sid := internal.NewSessionID()

	access, err := e.tokens.CreateAccess(prev.UserID, prev.Email, prev.Role, sid)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.CreateRefresh(prev.UserID, sid)
	if err != nil {
		return nil, err
	}
	grantHash := internal.HashToken(refresh)

	next := &session.Session{
		SessionID:    sid,
		UserID:       prev.UserID,
		Email:        prev.Email,
		Role:         prev.Role,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		IP:           clientIPFromContext(ctx),
		Device:       deviceFromContext(ctx),
		GrantHash:    grantHash,
	}

	if err := e.registry.Save(sctx, next, e.config.Token.RefreshTTL); err != nil {
		return nil, ErrStoreUnavailable
	}
	grant := session.Grant{UserID: prev.UserID, SessionID: sid, Email: prev.Email, Role: prev.Role}
	if err := e.registry.PutGrant(sctx, grantHash, grant, e.config.Token.RefreshTTL); err != nil {
		if delErr := e.registry.Delete(sctx, sid); delErr != nil {
			e.logger.Warn("rollback of half-rotated session failed",
				zap.String("session_id", sid), zap.Error(delErr))
		}
		return nil, ErrStoreUnavailable
	}

	if err := e.registry.Supersede(sctx, prev.SessionID, sid, e.config.Token.AccessTTL); err != nil {
		// The new lineage is live and the old grant is consumed; a failed
		// supersede only delays the old record's shortened TTL.
		e.logger.Warn("supersede of rotated session failed",
			zap.String("session_id", prev.SessionID), zap.Error(err))
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sid,
		ExpiresIn:    int64(e.config.Token.AccessTTL.Seconds()),
	}, nil
}

// refreshUntracked handles rotation when sessions are not persisted: no
// reuse detection is possible, so a valid signature plus an active account
// is the whole check.
func (e *Engine) refreshUntracked(ctx context.Context, claims *jwt.RefreshClaims) (*TokenPair, error) {
	user, err := e.users.GetUserByID(ctx, claims.UID)
	if err != nil || user.Status != StatusActive {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, claims.SID, ErrTokenInvalid)
		return nil, ErrTokenInvalid
	}

	pair, err := e.openSession(ctx, user, time.Now())
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, pair.SessionID, nil)
	return pair, nil
}

// revokeLineage removes a session after a reuse or binding mismatch. Best
// effort: the grant is already gone, so the lineage cannot mint new tokens
// either way.
func (e *Engine) revokeLineage(ctx context.Context, sessionID string) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.registry.Delete(sctx, sessionID); err != nil {
		e.logger.Warn("lineage revocation failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	e.metrics.Inc(MetricSessionRevoked)
}

// Authenticate verifies an access token and confirms its session is still
// live. Superseded sessions pass: their access tokens run out on their own
// expiry. Store outages follow the configured liveness posture.
//
// A successful call queues a detached last-activity update; it never blocks
// or fails the request.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		mapped := ErrTokenInvalid
		if errors.Is(err, jwt.ErrExpired) {
			mapped = ErrTokenExpired
		}
		e.metrics.Inc(MetricAuthenticateRejected)
		return nil, mapped
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	sess, err := e.registry.Get(sctx, claims.SID)
	switch {
	case err == nil:
		if !sess.Superseded() {
			e.queueTouch(ctx, claims.SID)
		}
	case errors.Is(err, session.ErrNotTracked):
		// Liveness cannot be answered in this deployment; token expiry is
		// the only bound.
	case errors.Is(err, session.ErrNotFound):
		e.metrics.Inc(MetricAuthenticateRejected)
		e.emitAudit(ctx, auditEventAuthenticateRejected, false, claims.UID, claims.SID, ErrSessionRevoked)
		return nil, ErrSessionRevoked
	default:
		if !e.config.Availability.FailOpenLiveness {
			e.metrics.Inc(MetricAuthenticateRejected)
			return nil, ErrStoreUnavailable
		}
		e.metrics.Inc(MetricLivenessFailOpen)
		e.logger.Warn("session store unreachable, accepting token on signature alone",
			zap.String("session_id", claims.SID), zap.Error(err))
	}

	e.metrics.Inc(MetricAuthenticateSuccess)
	return &Identity{
		UserID:    claims.UID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SID,
	}, nil
}

// queueTouch records request activity off the hot path.
func (e *Engine) queueTouch(ctx context.Context, sessionID string) {
	ip := clientIPFromContext(ctx)
	device := deviceFromContext(ctx)
	e.touches.Submit(func(taskCtx context.Context) error {
		err := e.registry.Touch(taskCtx, sessionID, ip, device, time.Now())
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrNotTracked) {
			return nil
		}
		return err
	})
}

// Logout revokes one session. Revoking an already absent session succeeds:
// the state the caller asked for is the state the store is in.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.registry.Delete(sctx, sessionID); err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			return ErrStoreUnavailable
		}
		return err
	}

	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil)
	return nil
}

// LogoutAll revokes every session of a user, grants included. Index entries
// whose record already expired count as logged out.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.registry.DeleteAllForUser(sctx, userID); err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			return ErrStoreUnavailable
		}
		return err
	}

	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil)
	return nil
}

// ListSessions returns the user's active sessions for a "manage devices"
// view. Superseded records are filtered; deployments without session
// tracking report none.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	sessions, err := e.registry.ListForUser(sctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotTracked) {
			return []SessionInfo{}, nil
		}
		if errors.Is(err, session.ErrUnavailable) {
			return nil, ErrStoreUnavailable
		}
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Superseded() {
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID:    sess.SessionID,
			CreatedAt:    time.Unix(sess.CreatedAt, 0),
			LastActivity: time.Unix(sess.LastActivity, 0),
			IP:           sess.IP,
			Device:       sess.Device,
		})
	}
	return infos, nil
}

// StartHandshake begins a third-party login: a single-use state token plus a
// PKCE verifier/challenge pair.
func (e *Engine) StartHandshake(ctx context.Context) (*Handshake, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	hs, err := e.guard.Start(ctx)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metrics.Inc(MetricHandshakeStarted)
	e.emitAudit(ctx, auditEventHandshakeStarted, true, "", "", nil)
	return hs, nil
}

// CompleteHandshake redeems a state token from the provider callback. It
// returns true exactly once per state; replays, forgeries, and expired
// states return false with ErrHandshakeStateInvalid.
func (e *Engine) CompleteHandshake(ctx context.Context, state string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	_, ok, err := e.guard.Redeem(ctx, state)
	if err != nil {
		return false, ErrStoreUnavailable
	}
	if !ok {
		e.metrics.Inc(MetricHandshakeRejected)
		e.emitAudit(ctx, auditEventHandshakeRejected, false, "", "", ErrHandshakeStateInvalid)
		return false, ErrHandshakeStateInvalid
	}

	e.metrics.Inc(MetricHandshakeCompleted)
	e.emitAudit(ctx, auditEventHandshakeCompleted, true, "", "", nil)
	return true, nil
}

// Metrics exposes the engine's counters for export.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies the current counters and histograms; exporters
// read through this.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// Close drains the audit dispatcher and the background touch queue. The
// engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.touches.Close()
	e.audit.close()
}

func (e *Engine) allowLogin(ctx context.Context, email, ip string) error {
	if email != "" {
		if err := e.loginLimiter.Allow(ctx, "login:"+email); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return errors.Join(ErrRateLimited, err)
			}
			e.logger.Warn("login throttle check failed, allowing", zap.Error(err))
		}
	}
	if e.ipLimiter != nil && ip != "" {
		if err := e.ipLimiter.Allow(ctx, "login_ip:"+ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return errors.Join(ErrRateLimited, err)
			}
			e.logger.Warn("login IP throttle check failed, allowing", zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) resetLogin(ctx context.Context, email, ip string) {
	if err := e.loginLimiter.Reset(ctx, "login:"+email); err != nil {
		e.logger.Warn("login throttle reset failed", zap.Error(err))
	}
	if e.ipLimiter != nil && ip != "" {
		if err := e.ipLimiter.Reset(ctx, "login_ip:"+ip); err != nil {
			e.logger.Warn("login IP throttle reset failed", zap.Error(err))
		}
	}
}
