package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goGuard.MetricIssue, Name: "goguard_issue_total", Help: "Tokens issued."},
	{ID: goGuard.MetricVerifySuccess, Name: "goguard_verify_success_total", Help: "Tokens that passed verification."},
	{ID: goGuard.MetricVerifyFailure, Name: "goguard_verify_failure_total", Help: "Tokens rejected by verification."},
	{ID: goGuard.MetricRefreshSuccess, Name: "goguard_refresh_success_total", Help: "Successful refreshes."},
	{ID: goGuard.MetricRefreshFailure, Name: "goguard_refresh_failure_total", Help: "Failed refreshes."},
	{ID: goGuard.MetricRefreshReplay, Name: "goguard_refresh_replay_total", Help: "Refreshes of an already rotated persistent token."},
	{ID: goGuard.MetricRevoke, Name: "goguard_revoke_total", Help: "Single-token revocations."},
	{ID: goGuard.MetricRevokeAll, Name: "goguard_revoke_all_total", Help: "Revoke-all operations."},
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful logins."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed logins."},
	{ID: goGuard.MetricSignup, Name: "goguard_signup_total", Help: "Accounts created."},
	{ID: goGuard.MetricSignupConfirmed, Name: "goguard_signup_confirmed_total", Help: "Accounts confirmed."},
	{ID: goGuard.MetricPasswordChange, Name: "goguard_password_change_total", Help: "Password changes."},
	{ID: goGuard.MetricAccountDisabled, Name: "goguard_account_disabled_total", Help: "Accounts disabled."},
	{ID: goGuard.MetricIDSRejected, Name: "goguard_ids_rejected_total", Help: "Requests rejected by intrusion detection."},
	{ID: goGuard.MetricIDSBanned, Name: "goguard_ids_banned_total", Help: "Requests from banned IPs."},
	{ID: goGuard.MetricRateLimited, Name: "goguard_rate_limited_total", Help: "Requests denied by the rate limiter."},
	{ID: goGuard.MetricXSSDetected, Name: "goguard_xss_detected_total", Help: "Requests carrying an XSS signature."},
	{ID: goGuard.MetricSQLiDetected, Name: "goguard_sqli_detected_total", Help: "Requests carrying an SQL injection signature."},
	{ID: goGuard.MetricStrikeSuspicious, Name: "goguard_strike_suspicious_total", Help: "Suspicious strikes recorded."},
	{ID: goGuard.MetricStrikeMalicious, Name: "goguard_strike_malicious_total", Help: "Malicious strikes recorded."},
	{ID: goGuard.MetricAuthzDenied, Name: "goguard_authz_denied_total", Help: "Authorization denials."},
	{ID: goGuard.MetricGuardPassed, Name: "goguard_guard_passed_total", Help: "Requests that passed the full guard."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricVerifyLatency, Name: "goguard_verify_latency_seconds", Help: "Verify latency."},
}

// HistogramBounds are the upper bounds in seconds of all but the last
// bucket; the last engine bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, len(raw))
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
