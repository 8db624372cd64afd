package internaldefs

import (
	authclient "github.com/MrEthical07/authclient"
)

// CounterDef names one authclient counter for exporters.
type CounterDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// HistogramDef names one authclient histogram for exporters.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in snapshot order.
var CounterDefs = []CounterDef{
	{ID: authclient.MetricLoginAttempt, Name: "authclient_login_attempt_total", Help: "Login requests sent."},
	{ID: authclient.MetricLoginPending, Name: "authclient_login_pending_total", Help: "Logins that require a verification code."},
	{ID: authclient.MetricLoginTrustedDevice, Name: "authclient_login_trusted_device_total", Help: "Logins completed by a trusted device."},
	{ID: authclient.MetricLoginRejected, Name: "authclient_login_rejected_total", Help: "Logins rejected by the backend."},
	{ID: authclient.MetricLoginFailure, Name: "authclient_login_failure_total", Help: "Logins that failed in transport or returned a malformed body."},
	{ID: authclient.MetricOTPSuccess, Name: "authclient_otp_success_total", Help: "Accepted verification codes."},
	{ID: authclient.MetricOTPInvalid, Name: "authclient_otp_invalid_total", Help: "Rejected verification codes."},
	{ID: authclient.MetricOTPResent, Name: "authclient_otp_resent_total", Help: "Verification codes re-sent."},
	{ID: authclient.MetricOTPResendThrottled, Name: "authclient_otp_resend_throttled_total", Help: "Resend requests refused by the client throttle."},
	{ID: authclient.MetricMFARequired, Name: "authclient_mfa_required_total", Help: "Verifications that asked for an authenticator code."},
	{ID: authclient.MetricMFASuccess, Name: "authclient_mfa_success_total", Help: "Accepted authenticator codes."},
	{ID: authclient.MetricMFAFailure, Name: "authclient_mfa_failure_total", Help: "Rejected authenticator codes."},
	{ID: authclient.MetricStaleResponseDropped, Name: "authclient_stale_response_dropped_total", Help: "Responses ignored because a newer operation started."},
	{ID: authclient.MetricRefreshSuccess, Name: "authclient_refresh_success_total", Help: "Successful access token refreshes."},
	{ID: authclient.MetricRefreshFailure, Name: "authclient_refresh_failure_total", Help: "Failed access token refreshes."},
	{ID: authclient.MetricSessionExpired, Name: "authclient_session_expired_total", Help: "Sessions cleared after a failed refresh."},
	{ID: authclient.MetricSessionHydrated, Name: "authclient_session_hydrated_total", Help: "Sessions hydrated into a user."},
	{ID: authclient.MetricHydrationFallback, Name: "authclient_hydration_fallback_total", Help: "Hydrations that used token claims after a profile failure."},
	{ID: authclient.MetricHydrationFailure, Name: "authclient_hydration_failure_total", Help: "Hydrations that ended anonymous."},
	{ID: authclient.MetricLogout, Name: "authclient_logout_total", Help: "Logouts."},
	{ID: authclient.MetricLogoutNotifyFailure, Name: "authclient_logout_notify_failure_total", Help: "Logouts whose backend notification failed."},
	{ID: authclient.MetricSyncEvent, Name: "authclient_sync_event_total", Help: "Storage changes handled by the synchronizer."},
	{ID: authclient.MetricTransportFailure, Name: "authclient_transport_failure_total", Help: "Requests that did not reach the backend."},
	{ID: authclient.MetricQRLoginSuccess, Name: "authclient_qr_login_success_total", Help: "Completed QR logins."},
	{ID: authclient.MetricQRLoginExpired, Name: "authclient_qr_login_expired_total", Help: "QR login sessions that expired."},
	{ID: authclient.MetricRegisterSuccess, Name: "authclient_register_success_total", Help: "Accounts registered."},
	{ID: authclient.MetricRegisterFailure, Name: "authclient_register_failure_total", Help: "Failed registrations."},
}

var HistogramDefs = []HistogramDef{
	{ID: authclient.MetricAuthLatency, Name: "authclient_auth_latency_seconds", Help: "Latency of login and verification requests."},
}

// HistogramBounds are the upper bounds in seconds of the finite buckets.
// The eighth bucket is +Inf.
var HistogramBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
