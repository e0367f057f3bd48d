package session

import "time"

// Session is one authenticated device/browser binding for a user. Stored as
// JSON under a per-session key with a TTL equal to the refresh lifetime.
type Session struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	Role      string `json:"role"`

	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
	IP           string `json:"ip,omitempty"`
	Device       string `json:"device,omitempty"`

	// GrantHash is the SHA-256 of the session's current refresh token. It
	// lets Delete and DeleteAllForUser remove the matching grant without
	// seeing the token itself.
	GrantHash string `json:"grant_hash,omitempty"`

	// RotatedTo is set when a refresh rotation superseded this session. A
	// superseded record keeps access tokens minted before the rotation alive
	// until they expire, but is excluded from session listings.
	RotatedTo string `json:"rotated_to,omitempty"`
}

// Superseded reports whether this record was replaced by a rotation.
func (s *Session) Superseded() bool {
	return s.RotatedTo != ""
}

// Grant marks an unconsumed refresh token. Keyed by token hash; presence in
// the store is what makes the refresh token redeemable. It carries the
// claims needed to mint the successor pair so rotation does not depend on
// the session record still being readable.
type Grant struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Touch updates the activity fields, keeping the previous IP or device when
// the caller did not supply one.
func (s *Session) Touch(ip, device string, at time.Time) {
	s.LastActivity = at.Unix()
	if ip != "" {
		s.IP = ip
	}
	if device != "" {
		s.Device = device
	}
}
