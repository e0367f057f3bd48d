package authkit

import (
	"context"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventAccountLocked        = "account_locked"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventAuthenticateRejected = "authenticate_rejected"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventHandshakeStarted     = "handshake_started"
	auditEventHandshakeCompleted   = "handshake_completed"
	auditEventHandshakeRejected    = "handshake_rejected"
)

// emitAudit builds an event from the call context and hands it to the
// dispatcher. A nil dispatcher (auditing disabled) makes this a no-op.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, sessionID string, callErr error) {
	if e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Device:    deviceFromContext(ctx),
		Success:   success,
	}
	if callErr != nil {
		event.Error = callErr.Error()
	}

	e.audit.emit(ctx, event)
}
