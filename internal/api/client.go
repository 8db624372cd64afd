// Package api is the typed client for the storefront's authentication and
// profile endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBody = 1 << 20

// Client issues JSON requests against BaseURL through HTTP. HTTP is usually
// the intercepted client so auth headers are handled there.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, PathLogin, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, PathVerifyOTP, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyMFA(ctx context.Context, req VerifyMFARequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, PathVerifyMFA, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, PathSendOTP, nil, SendOTPRequest{Email: email}, nil)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodPost, PathRegister, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout notifies the backend. The response body is ignored.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, PathLogout, nil, struct{}{}, nil)
}

// Refresh exchanges refreshToken for a new access token. The refresh token
// travels as the bearer credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+refreshToken)
	var out RefreshResponse
	if err := c.do(ctx, http.MethodPost, PathRefresh, h, struct{}{}, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, fmt.Errorf("%w: refresh response without access token", ErrMalformedResponse)
	}
	return &out, nil
}

// ProfileByEmail fetches the user record for email.
func (c *Client) ProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	var out Profile
	path := PathProfileByEmail + "?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, PathForgotPassword, nil, ForgotPasswordRequest{Email: email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPost, PathResetPassword, nil, ResetPasswordRequest{Token: token, NewPassword: newPassword}, nil)
}

func (c *Client) QRGenerate(ctx context.Context, deviceID string) (*QRSession, error) {
	var out QRSession
	if err := c.do(ctx, http.MethodPost, PathQRGenerate, nil, QRGenerateRequest{DeviceID: deviceID}, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("%w: qr session without id", ErrMalformedResponse)
	}
	return &out, nil
}

func (c *Client) QRStatus(ctx context.Context, sessionID string) (*QRStatus, error) {
	var out QRStatus
	if err := c.do(ctx, http.MethodGet, PathQRStatus+url.PathEscape(sessionID), nil, nil, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case QRPending, QRConfirmed, QRExpired:
	default:
		return nil, fmt.Errorf("%w: unknown qr status %q", ErrMalformedResponse, out.Status)
	}
	return &out, nil
}

func (c *Client) QRConfirm(ctx context.Context, sessionID, accessToken string) error {
	req := QRConfirmRequest{SessionID: sessionID, AccessToken: accessToken}
	return c.do(ctx, http.MethodPost, PathQRConfirm, nil, req, nil)
}

// do sends a JSON request. Transport failures wrap ErrTransport, non-2xx
// answers are *APIError, and an undecodable 2xx body wraps
// ErrMalformedResponse. A nil out skips decoding.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseResponseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", ErrTransport, path, err)
	}
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: %s returned a non-object body", ErrMalformedResponse, path)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrMalformedResponse, path, err)
	}
	return nil
}
