package authclient

import (
	"errors"

	"github.com/MrEthical07/authclient/internal/api"
)

var (
	// ErrInvalidCredentials is the rejection reason of a refused login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOTPInvalid is the rejection reason of a refused verification code.
	ErrOTPInvalid = errors.New("invalid or expired verification code")
	// ErrMFARequired is the reason attached to a verification that needs an
	// authenticator code next.
	ErrMFARequired = errors.New("multi-factor verification required")
	// ErrTokenExpired marks a stored access token past its exp claim.
	ErrTokenExpired = errors.New("access token expired")
	// ErrRefreshFailed is reported when the session could not be refreshed
	// and local credentials were cleared.
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrTransport wraps failures where the backend could not be reached.
	// State is left unchanged.
	ErrTransport = api.ErrTransport
	// ErrMalformedResponse wraps 2xx answers with an unexpected body.
	ErrMalformedResponse = api.ErrMalformedResponse
	// ErrNoPendingVerification is returned by verification calls made
	// outside the pending state or for another email.
	ErrNoPendingVerification = errors.New("no pending verification for this email")
	// ErrSuperseded is the reason of a response that arrived after a newer
	// operation started; it was not applied.
	ErrSuperseded = errors.New("superseded by a newer operation")
	// ErrOTPResendThrottled is returned by ResendOTP when called again
	// before OTP.ResendInterval elapsed.
	ErrOTPResendThrottled = errors.New("verification code resend throttled")
	// ErrQRExpired is returned by WaitForQRLogin once the backend reports
	// the QR session expired.
	ErrQRExpired = errors.New("qr login session expired")
	// ErrServiceUnavailable is the rejection reason of a 5xx answer.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrClientNotReady is returned by Builder.Build for incomplete wiring.
	ErrClientNotReady = errors.New("client not ready")
	// ErrClientClosed is returned by operations after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrInvalidRegistration wraps validation failures of RegisterRequest.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// APIError is a non-2xx answer from the storefront backend. Business
// outcomes of Login and verification are reported through result Reasons;
// other operations return *APIError directly.
type APIError = api.APIError
