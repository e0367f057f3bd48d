// Package internaldefs holds the metric name/help tables shared by the
// Prometheus and OTel exporters so both expose identical series.
package internaldefs

import (
	authkit "github.com/wellport-health/authkit"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed logins."},
	{ID: authkit.MetricLoginRateLimited, Name: "authkit_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authkit.MetricAccountLockout, Name: "authkit_account_lockout_total", Help: "Logins rejected inside a lock window."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authkit.MetricRefreshRateLimited, Name: "authkit_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authkit.MetricRefreshReuseDetected, Name: "authkit_refresh_reuse_detected_total", Help: "Refresh tokens presented after consumption."},
	{ID: authkit.MetricAuthenticateSuccess, Name: "authkit_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: authkit.MetricAuthenticateRejected, Name: "authkit_authenticate_rejected_total", Help: "Rejected access tokens."},
	{ID: authkit.MetricSessionCreated, Name: "authkit_session_created_total", Help: "Created sessions."},
	{ID: authkit.MetricSessionRevoked, Name: "authkit_session_revoked_total", Help: "Revoked sessions."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Single-session logouts."},
	{ID: authkit.MetricLogoutAll, Name: "authkit_logout_all_total", Help: "Logout-all operations."},
	{ID: authkit.MetricLivenessFailOpen, Name: "authkit_liveness_fail_open_total", Help: "Tokens accepted on signature alone during store outages."},
	{ID: authkit.MetricHandshakeStarted, Name: "authkit_handshake_started_total", Help: "Third-party login handshakes started."},
	{ID: authkit.MetricHandshakeCompleted, Name: "authkit_handshake_completed_total", Help: "Handshake states redeemed."},
	{ID: authkit.MetricHandshakeRejected, Name: "authkit_handshake_rejected_total", Help: "Handshake states rejected as unknown, expired, or replayed."},
}

var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricAuthenticateLatency, Name: "authkit_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus "le"
// label form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bounds as instrument-name-safe suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms use.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
