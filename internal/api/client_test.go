package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", srv.Client())
}

func TestLoginSendsCredentialsAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathLogin, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, LoginRequest{Email: "a@b.c", Password: "pw", DeviceID: "fp_1"}, req)

		_, _ = io.WriteString(w, `{"accessToken":"a1","refreshToken":"r1","role":"user","mfaRequired":false}`)
	})

	resp, err := c.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "pw", DeviceID: "fp_1"})
	require.NoError(t, err)
	assert.Equal(t, "a1", resp.AccessToken)
	assert.Equal(t, "r1", resp.RefreshToken)
	assert.False(t, resp.TrustedDevice)
}

func TestErrorBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   APIError
	}{
		{"message envelope", 401, `{"message":"Invalid credentials"}`, APIError{Status: 401, Message: "Invalid credentials"}},
		{"mfa flag", 403, `{"message":"MFA required","mfaRequired":true}`, APIError{Status: 403, Message: "MFA required", MFARequired: true}},
		{"error envelope", 400, `{"error":{"code":"INVALID_INPUT","message":"bad email"}}`, APIError{Status: 400, Code: "INVALID_INPUT", Message: "bad email"}},
		{"string error", 429, `{"error":"slow down"}`, APIError{Status: 429, Message: "slow down"}},
		{"plain text", 502, `upstream down`, APIError{Status: 502, Message: "upstream down"}},
		{"empty", 500, ``, APIError{Status: 500, Message: "Internal Server Error"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.VerifyOTP(context.Background(), VerifyOTPRequest{Email: "a@b.c", OTP: "1"})
			apiErr, ok := AsAPIError(err)
			require.True(t, ok, "expected *APIError, got %v", err)
			assert.Equal(t, tc.want, *apiErr)
		})
	}
}

func TestMalformedSuccessBody(t *testing.T) {
	for _, body := range []string{"", "null", "[1,2]", "<html>", `{"accessToken": 5}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		_, err := c.Login(context.Background(), LoginRequest{Email: "a@b.c"})
		assert.ErrorIs(t, err, ErrMalformedResponse, "body %q", body)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := New(srv.URL, srv.Client())
	srv.Close()

	_, err := c.Login(context.Background(), LoginRequest{Email: "a@b.c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	_, isAPI := AsAPIError(err)
	assert.False(t, isAPI)
}

func TestRefreshPresentsRefreshToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathRefresh, r.URL.Path)
		assert.Equal(t, "Bearer r1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"accessToken":"a2"}`)
	})
	out, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", out.AccessToken)
}

func TestRefreshWithoutAccessTokenIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	_, err := c.Refresh(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestProfileAliases(t *testing.T) {
	tests := []struct {
		body string
		want Profile
		name string
	}{
		{`{"user_id":"u1","username":"ann","email":"a@b.c","phone":"1"}`, Profile{ID: "u1", Username: "ann", Email: "a@b.c", Phone: "1"}, "ann"},
		{`{"userId":42,"fullName":"Ann Lee","email":"a@b.c"}`, Profile{ID: "42", FullName: "Ann Lee", Email: "a@b.c"}, "Ann Lee"},
		{`{"data":{"id":"x","email":"a@b.c"}}`, Profile{ID: "x", Email: "a@b.c"}, "a@b.c"},
	}
	for _, tc := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, PathProfileByEmail, r.URL.Path)
			assert.Equal(t, "a@b.c", r.URL.Query().Get("email"))
			_, _ = io.WriteString(w, tc.body)
		})
		p, err := c.ProfileByEmail(context.Background(), "a@b.c")
		require.NoError(t, err)
		assert.Equal(t, tc.want, *p)
		assert.Equal(t, tc.name, p.DisplayName())
	}
}

func TestQRStatusValidatesState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathQRStatus+"s1", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"weird"}`)
	})
	_, err := c.QRStatus(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestQRConfirmCarriesTokenInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathQRConfirm, r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req QRConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, QRConfirmRequest{SessionID: "s1", AccessToken: "a1"}, req)
		_, _ = io.WriteString(w, `{"message":"Confirmed."}`)
	})
	require.NoError(t, c.QRConfirm(context.Background(), "s1", "a1"))
}
