package flows

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrEthical07/authclient/internal/api"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errOTPInvalid         = errors.New("otp invalid")
	errUnavailable        = errors.New("unavailable")
	testErrs              = OutcomeErrors{
		InvalidCredentials: errInvalidCredentials,
		OTPInvalid:         errOTPInvalid,
		ServiceUnavailable: errUnavailable,
	}
)

func TestClassifyLoginNeverCompletesWithoutTrustedDevice(t *testing.T) {
	out := ClassifyLogin(&api.AuthResponse{AccessToken: "a1", RefreshToken: "r1"}, nil, testErrs)
	if out.Kind != OutcomePending {
		t.Fatalf("expected pending, got %s", out.Kind)
	}
	if out.AccessToken != "a1" || out.RefreshToken != "r1" {
		t.Fatalf("tokens must travel with the outcome: %+v", out)
	}
	if out.Message != MessageOTPSent {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestClassifyLoginTrustedDevice(t *testing.T) {
	out := ClassifyLogin(&api.AuthResponse{AccessToken: "a1", TrustedDevice: true}, nil, testErrs)
	if out.Kind != OutcomeComplete {
		t.Fatalf("expected complete, got %s", out.Kind)
	}

	out = ClassifyLogin(&api.AuthResponse{AccessToken: "a1", TrustedDevice: true, MFARequired: true}, nil, testErrs)
	if out.Kind != OutcomePending || !out.MFARequired {
		t.Fatalf("mfa flag must keep trusted login pending: %+v", out)
	}

	out = ClassifyLogin(&api.AuthResponse{TrustedDevice: true}, nil, testErrs)
	if out.Kind != OutcomePending {
		t.Fatalf("trusted device without token must stay pending: %+v", out)
	}
}

func TestClassifyLoginErrors(t *testing.T) {
	rejected := ClassifyLogin(nil, &api.APIError{Status: 401, Message: "Invalid credentials"}, testErrs)
	if rejected.Kind != OutcomeRejected || rejected.Reason != errInvalidCredentials || rejected.Message != "Invalid credentials" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}

	server := ClassifyLogin(nil, &api.APIError{Status: 503, Message: "down"}, testErrs)
	if server.Kind != OutcomeRejected || server.Reason != errUnavailable {
		t.Fatalf("unexpected server failure %+v", server)
	}

	transport := ClassifyLogin(nil, fmt.Errorf("%w: dial", api.ErrTransport), testErrs)
	if transport.Kind != OutcomeFailed {
		t.Fatalf("expected failed, got %s", transport.Kind)
	}

	malformed := ClassifyLogin(nil, fmt.Errorf("%w: body", api.ErrMalformedResponse), testErrs)
	if malformed.Kind != OutcomeMalformed {
		t.Fatalf("expected malformed, got %s", malformed.Kind)
	}
}

func TestClassifyVerifyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		resp *api.AuthResponse
		err  error
		kind OutcomeKind
		mfa  bool
	}{
		{"mfa on success wins over token", &api.AuthResponse{AccessToken: "a2", MFARequired: true}, nil, OutcomePending, true},
		{"mfa on error body", nil, &api.APIError{Status: 403, Message: "mfa", MFARequired: true}, OutcomePending, true},
		{"token completes", &api.AuthResponse{AccessToken: "a2", RefreshToken: "r2"}, nil, OutcomeComplete, false},
		{"empty success is invalid", &api.AuthResponse{}, nil, OutcomeRejected, false},
		{"4xx is invalid", nil, &api.APIError{Status: 400, Message: "Invalid OTP"}, OutcomeRejected, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := ClassifyVerify(tc.resp, tc.err, testErrs)
			if out.Kind != tc.kind || out.MFARequired != tc.mfa {
				t.Fatalf("got kind=%s mfa=%v, want kind=%s mfa=%v", out.Kind, out.MFARequired, tc.kind, tc.mfa)
			}
			if out.Kind == OutcomeRejected && out.Reason != errOTPInvalid {
				t.Fatalf("expected OTP invalid reason, got %v", out.Reason)
			}
			if out.Kind != OutcomeComplete && out.Message == "" {
				t.Fatalf("negative outcome without message")
			}
		})
	}
}

func TestOutcomeKindString(t *testing.T) {
	if OutcomeComplete.String() != "complete" || OutcomeKind(99).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
}
