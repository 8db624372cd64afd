package fakebackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"deviceId"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type verifyMFARequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type resetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type qrGenerateRequest struct {
	DeviceID string `json:"deviceId"`
}

type qrConfirmRequest struct {
	SessionID   string `json:"sessionId" validate:"required"`
	AccessToken string `json:"accessToken"`
}

type authResponse struct {
	AccessToken   string `json:"accessToken,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	Role          string `json:"role,omitempty"`
	MFARequired   bool   `json:"mfaRequired,omitempty"`
	TrustedDevice bool   `json:"trustedDevice,omitempty"`
	Message       string `json:"message,omitempty"`
}

type messageResponse struct {
	Message     string `json:"message"`
	MFARequired bool   `json:"mfaRequired,omitempty"`
}

type profileResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Role     string `json:"role"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	acc, ok := s.accounts[email]
	if !ok || acc.Password != req.Password {
		s.mu.Unlock()
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}
	trusted := !acc.MFA && req.DeviceID != "" && s.trusted[email][req.DeviceID]
	if !trusted {
		s.pending[email] = &pendingLogin{deviceID: req.DeviceID}
	}
	s.mu.Unlock()

	access, refresh, err := s.tokens(acc)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	if trusted {
		writeJSON(w, http.StatusOK, authResponse{
			AccessToken:   access,
			RefreshToken:  refresh,
			Role:          acc.Role,
			TrustedDevice: true,
			Message:       "Welcome back.",
		})
		return
	}
	// tokens are returned with the challenge; the client must not use them
	// before verification
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Message:      "A verification code was sent to " + email + ".",
	})
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !s.decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	p, ok := s.pending[email]
	acc := s.accounts[email]
	if !ok || acc == nil || req.OTP != s.cfg.OTP {
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Invalid OTP.")
		return
	}
	if acc.MFA {
		p.otpDone = true
		s.mu.Unlock()
		msg := messageResponse{Message: "Authenticator code required.", MFARequired: true}
		if s.cfg.MFAAsError {
			writeJSON(w, http.StatusForbidden, msg)
			return
		}
		writeJSON(w, http.StatusOK, msg)
		return
	}
	s.completeLocked(email, p)
	s.mu.Unlock()

	access, err := s.issuer.IssueAccess(acc.ID, acc.Email, acc.Role)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	// the refresh token was handed out at login
	writeJSON(w, http.StatusOK, authResponse{AccessToken: access, Role: acc.Role, Message: "Verified."})
}

func (s *Server) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if !s.decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	p, ok := s.pending[email]
	acc := s.accounts[email]
	if !ok || acc == nil || !p.otpDone || req.Code != s.cfg.MFACode {
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Invalid authenticator code.")
		return
	}
	s.completeLocked(email, p)
	s.mu.Unlock()

	access, refresh, err := s.tokens(acc)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{AccessToken: access, RefreshToken: refresh, Role: acc.Role})
}

func (s *Server) completeLocked(email string, p *pendingLogin) {
	delete(s.pending, email)
	if s.cfg.TrustOnVerify {
		s.trustLocked(email, p.deviceID)
	}
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeMessage(w, http.StatusOK, "If the account exists a code was sent.")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	if _, exists := s.accounts[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]string{"code": "ALREADY_EXISTS", "message": "email already registered"},
		})
		return
	}
	acc := s.addLocked(Account{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, toProfile(acc))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	tok, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := s.issuer.VerifyRefresh(tok)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid refresh token.")
		return
	}
	email := strings.ToLower(claims.Email)

	s.mu.Lock()
	acc, ok := s.accounts[email]
	blocked := s.blocked[email]
	s.mu.Unlock()
	if !ok || blocked {
		writeMessage(w, http.StatusUnauthorized, "Refresh token revoked.")
		return
	}
	access, err := s.issuer.IssueAccess(acc.ID, acc.Email, acc.Role)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bearerAccount(r); err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}
	writeMessage(w, http.StatusOK, "Logged out.")
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	email := strings.ToLower(req.Email)
	s.mu.Lock()
	if _, ok := s.accounts[email]; ok {
		s.resets[uuid.NewString()] = email
	}
	s.mu.Unlock()
	writeMessage(w, http.StatusOK, "If the account exists a reset link was sent.")
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.resets[req.Token]
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid or expired reset token.")
		return
	}
	delete(s.resets, req.Token)
	s.accounts[email].Password = req.NewPassword
	writeMessage(w, http.StatusOK, "Password updated.")
}

func (s *Server) qrGenerate(w http.ResponseWriter, r *http.Request) {
	var req qrGenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := uuid.NewString()
	exp := s.now().Add(s.cfg.QRTTL)
	s.mu.Lock()
	s.qr[id] = &qrSession{status: "pending", deviceID: req.DeviceID, expiresAt: exp}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"qrPayload": "storefront-qr:" + id,
		"expiresAt": exp.Unix(),
	})
}

func (s *Server) qrStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	q, ok := s.qr[id]
	if ok && q.status == "pending" && s.now().After(q.expiresAt) {
		q.status = "expired"
	}
	var (
		status, email string
		acc           *Account
	)
	if ok {
		status, email = q.status, q.email
		acc = s.accounts[email]
		if status == "confirmed" && q.deviceID != "" && s.cfg.TrustOnVerify {
			s.trustLocked(email, q.deviceID)
		}
	}
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Unknown QR session.")
		return
	}

	resp := map[string]string{"status": status}
	if status == "confirmed" && acc != nil {
		access, refresh, err := s.tokens(acc)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "token issue failed")
			return
		}
		resp["accessToken"] = access
		resp["refreshToken"] = refresh
		resp["email"] = email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) qrConfirm(w http.ResponseWriter, r *http.Request) {
	var req qrConfirmRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.tokenAccount(req.AccessToken)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}
	s.mu.Lock()
	err = s.confirmQRLocked(req.SessionID, acc.Email)
	s.mu.Unlock()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "Confirmed.")
}

func (s *Server) profileByEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bearerAccount(r); err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}
	s.mu.Lock()
	forced := s.profile
	acc, ok := s.accounts[strings.ToLower(r.URL.Query().Get("email"))]
	var p profileResponse
	if ok {
		p = toProfile(acc)
	}
	s.mu.Unlock()
	if forced != 0 {
		writeMessage(w, forced, http.StatusText(forced))
		return
	}
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": p})
}

// orders stands in for any protected storefront endpoint.
func (s *Server) orders(w http.ResponseWriter, r *http.Request) {
	acc, err := s.bearerAccount(r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": acc.Email, "orders": []string{}})
}

func (s *Server) products(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": []string{"tea", "coffee"}})
}

func toProfile(acc *Account) profileResponse {
	return profileResponse{
		UserID:   acc.ID,
		Username: acc.Username,
		FullName: acc.FullName,
		Email:    acc.Email,
		Phone:    acc.Phone,
		Address:  acc.Address,
		Role:     acc.Role,
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeMessage(w, http.StatusBadRequest, "invalid "+strings.ToLower(verrs[0].Field()))
			return false
		}
		writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}
