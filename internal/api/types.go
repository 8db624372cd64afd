package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Endpoint paths relative to the API base URL.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathSendOTP        = "/auth/send-otp"
	PathVerifyOTP      = "/auth/verify-otp"
	PathVerifyMFA      = "/auth/mfa/verify"
	PathRefresh        = "/auth/refresh"
	PathLogout         = "/auth/logout"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
	PathQRGenerate     = "/auth/qr/generate"
	PathQRStatus       = "/auth/qr/status/"
	PathQRConfirm      = "/auth/qr/confirm"
	PathProfileByEmail = "/users/by-email"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId,omitempty"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type VerifyMFARequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type SendOTPRequest struct {
	Email string `json:"email"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type QRGenerateRequest struct {
	DeviceID string `json:"deviceId"`
}

// QRConfirmRequest carries the confirming device's access token in the
// body. The endpoint is public, so no Authorization header is sent.
type QRConfirmRequest struct {
	SessionID   string `json:"sessionId"`
	AccessToken string `json:"accessToken"`
}

// AuthResponse is the body of login and verify responses. Every field is
// optional on the wire.
type AuthResponse struct {
	AccessToken   string `json:"accessToken"`
	RefreshToken  string `json:"refreshToken"`
	Role          string `json:"role"`
	MFARequired   bool   `json:"mfaRequired"`
	TrustedDevice bool   `json:"trustedDevice"`
	Message       string `json:"message"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// QR login session states.
const (
	QRPending   = "pending"
	QRConfirmed = "confirmed"
	QRExpired   = "expired"
)

type QRSession struct {
	SessionID string `json:"sessionId"`
	QRPayload string `json:"qrPayload"`
	ExpiresAt int64  `json:"expiresAt"`
}

type QRStatus struct {
	Status       string `json:"status"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Profile is the user record returned by the profile and register
// endpoints. Field names vary across backend versions; UnmarshalJSON accepts
// the known aliases.
type Profile struct {
	ID       string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Role     string `json:"role,omitempty"`
}

// DisplayName picks username, then full name, then email.
func (p Profile) DisplayName() string {
	for _, s := range []string{p.Username, p.FullName, p.Email} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// some handlers wrap the record in {"data": {...}} or {"user": {...}}
	for _, k := range []string{"data", "user"} {
		if inner, ok := raw[k]; ok && bytes.HasPrefix(bytes.TrimSpace(inner), []byte("{")) {
			return p.UnmarshalJSON(inner)
		}
	}

	*p = Profile{
		ID:       firstScalar(raw, "user_id", "userId", "id"),
		Username: firstScalar(raw, "username"),
		FullName: firstScalar(raw, "fullName", "full_name", "name"),
		Email:    firstScalar(raw, "email"),
		Phone:    firstScalar(raw, "phone"),
		Address:  firstScalar(raw, "address"),
		Role:     firstScalar(raw, "role"),
	}
	return nil
}

func firstScalar(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
