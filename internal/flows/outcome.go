package flows

import (
	"errors"
	"strings"

	"github.com/MrEthical07/authclient/internal/api"
)

// OutcomeKind classifies a login or verification answer.
type OutcomeKind uint8

const (
	// OutcomeFailed: no response received. State must not change.
	OutcomeFailed OutcomeKind = iota
	// OutcomeMalformed: 2xx with an undecodable body.
	OutcomeMalformed
	// OutcomeRejected: the backend refused; Reason says why.
	OutcomeRejected
	// OutcomePending: a (further) verification step is required.
	OutcomePending
	// OutcomeComplete: an access token was issued.
	OutcomeComplete
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFailed:
		return "failed"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeRejected:
		return "rejected"
	case OutcomePending:
		return "pending"
	case OutcomeComplete:
		return "complete"
	}
	return "unknown"
}

// Outcome is the normalized answer of a login or verify call.
type Outcome struct {
	Kind         OutcomeKind
	AccessToken  string
	RefreshToken string
	Role         string
	MFARequired  bool
	Message      string
	// Reason is the sentinel for OutcomeRejected; Err carries the
	// underlying failure for every non-success kind.
	Reason error
	Err    error
}

// OutcomeErrors carries the root sentinels used as rejection reasons.
type OutcomeErrors struct {
	InvalidCredentials error
	OTPInvalid         error
	ServiceUnavailable error
}

// Default user-facing messages.
const (
	MessageOTPSent        = "A verification code was sent to your email."
	MessageMFARequired    = "Enter the code from your authenticator app to continue."
	MessageOTPInvalid     = "Invalid or expired verification code."
	MessageInvalidLogin   = "Invalid email or password."
	MessageUnavailable    = "The service is temporarily unavailable. Please try again."
	MessageMalformed      = "Unexpected response from the server."
	MessageNetworkFailure = "Could not reach the server."
)

// ClassifyLogin normalizes a login answer. Tokens are kept on the outcome so
// the caller can hold them until verification completes; only a trusted
// device answer with an access token and no MFA flag is Complete.
func ClassifyLogin(resp *api.AuthResponse, err error, errs OutcomeErrors) Outcome {
	if err != nil {
		return classifyError(err, errs.InvalidCredentials, MessageInvalidLogin, errs)
	}
	if resp == nil {
		return Outcome{Kind: OutcomeMalformed, Message: MessageMalformed, Err: api.ErrMalformedResponse}
	}

	out := Outcome{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Role:         resp.Role,
		MFARequired:  resp.MFARequired,
	}
	if resp.TrustedDevice && !resp.MFARequired && strings.TrimSpace(resp.AccessToken) != "" {
		out.Kind = OutcomeComplete
		out.Message = resp.Message
		return out
	}

	out.Kind = OutcomePending
	out.Message = firstNonEmpty(resp.Message, MessageOTPSent)
	if resp.MFARequired {
		out.Message = firstNonEmpty(resp.Message, MessageMFARequired)
	}
	return out
}

// ClassifyVerify normalizes an OTP or MFA verification answer. An MFA flag,
// on a success or an error body, wins over everything else.
func ClassifyVerify(resp *api.AuthResponse, err error, errs OutcomeErrors) Outcome {
	if err != nil {
		if apiErr, ok := api.AsAPIError(err); ok && apiErr.MFARequired {
			return Outcome{
				Kind:        OutcomePending,
				MFARequired: true,
				Message:     MessageMFARequired,
				Err:         err,
			}
		}
		return classifyError(err, errs.OTPInvalid, MessageOTPInvalid, errs)
	}
	if resp == nil {
		return Outcome{Kind: OutcomeMalformed, Message: MessageMalformed, Err: api.ErrMalformedResponse}
	}

	switch {
	case resp.MFARequired:
		return Outcome{
			Kind:         OutcomePending,
			MFARequired:  true,
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			Message:      MessageMFARequired,
		}
	case strings.TrimSpace(resp.AccessToken) != "":
		return Outcome{
			Kind:         OutcomeComplete,
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			Role:         resp.Role,
			Message:      resp.Message,
		}
	default:
		return Outcome{
			Kind:    OutcomeRejected,
			Reason:  errs.OTPInvalid,
			Message: firstNonEmpty(resp.Message, MessageOTPInvalid),
		}
	}
}

func classifyError(err, rejectReason error, rejectMessage string, errs OutcomeErrors) Outcome {
	if errors.Is(err, api.ErrTransport) {
		return Outcome{Kind: OutcomeFailed, Message: MessageNetworkFailure, Err: err}
	}
	if errors.Is(err, api.ErrMalformedResponse) {
		return Outcome{Kind: OutcomeMalformed, Message: MessageMalformed, Err: err}
	}
	apiErr, ok := api.AsAPIError(err)
	if !ok {
		return Outcome{Kind: OutcomeFailed, Message: MessageNetworkFailure, Err: err}
	}
	if !apiErr.IsClientError() {
		return Outcome{
			Kind:    OutcomeRejected,
			Reason:  errs.ServiceUnavailable,
			Message: MessageUnavailable,
			Err:     err,
		}
	}
	return Outcome{
		Kind:    OutcomeRejected,
		Reason:  rejectReason,
		Message: firstNonEmpty(apiErr.Message, rejectMessage),
		Err:     err,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
