package authclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authclient/internal/api"
)

// QR login states reported by QRStatus.
const (
	QRPending   = api.QRPending
	QRConfirmed = api.QRConfirmed
	QRExpired   = api.QRExpired
)

// StartQRLogin opens a cross-device login session for this device. Render
// QRSession.QRPayload and call WaitForQRLogin.
func (c *Client) StartQRLogin(ctx context.Context) (*QRSession, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.Start(ctx, "authclient.StartQRLogin")
	defer span.End()

	qs, err := c.api.QRGenerate(ctx, c.deviceID(ctx))
	if err != nil {
		return nil, fmt.Errorf("start qr login: %w", err)
	}
	return qs, nil
}

// QRStatus returns the current state of a QR login session.
func (c *Client) QRStatus(ctx context.Context, sessionID string) (string, error) {
	st, err := c.api.QRStatus(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("qr status: %w", err)
	}
	return st.Status, nil
}

// WaitForQRLogin polls the QR session every QR.PollInterval until another
// device confirms it, then stores the issued tokens and hydrates the
// session. It returns ErrQRExpired when the backend expires the session.
func (c *Client) WaitForQRLogin(ctx context.Context, sessionID string) (*User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.Start(ctx, "authclient.WaitForQRLogin")
	defer span.End()

	ticker := time.NewTicker(c.cfg.QR.PollInterval)
	defer ticker.Stop()

	for {
		st, err := c.api.QRStatus(ctx, sessionID)
		switch {
		case err != nil && errors.Is(err, ErrTransport):
			// the next tick retries
			c.log(ctx).Debug("qr status poll failed", "error", err)
		case err != nil:
			return nil, fmt.Errorf("qr status: %w", err)
		case st.Status == QRExpired:
			c.metrics.Inc(MetricQRLoginExpired)
			return nil, ErrQRExpired
		case st.Status == QRConfirmed:
			return c.finishQRLogin(ctx, st)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) finishQRLogin(ctx context.Context, st *api.QRStatus) (*User, error) {
	if strings.TrimSpace(st.AccessToken) == "" {
		return nil, fmt.Errorf("%w: confirmed qr session without access token", ErrMalformedResponse)
	}
	claims, err := c.decoder.Decode(st.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	email := normalizeEmail(st.Email)
	if email == "" {
		email = normalizeEmail(claims.Identity())
	}

	seq := c.begin()
	c.persistMu.Lock()
	err = c.store.SaveSession(ctx, st.AccessToken, st.RefreshToken, email)
	c.persistMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	c.NotifyTokensUpdated()

	// Resync runs the same path the synchronizer does for tokens written
	// by another client.
	snap, err := c.Resync(ctx)
	if err != nil {
		return nil, err
	}
	if snap.State != StateAuthenticated || snap.Seq != seq {
		return nil, ErrNotAuthenticated
	}
	c.metrics.Inc(MetricQRLoginSuccess)
	c.emitAudit(ctx, AuditEvent{Type: AuditQRLogin, Email: email, UserID: snap.User.ID, Success: true})
	return snap.User, nil
}

// ConfirmQRLogin approves a QR session shown on another device. This
// client must be Authenticated.
func (c *Client) ConfirmQRLogin(ctx context.Context, sessionID string) error {
	if c.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	ctx, span := c.tracer.Start(ctx, "authclient.ConfirmQRLogin")
	defer span.End()

	// the endpoint is public; the credential travels in the body
	access, err := c.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("confirm qr login: %w", err)
	}
	if access == "" {
		return ErrNotAuthenticated
	}
	if err := c.api.QRConfirm(ctx, sessionID, access); err != nil {
		return fmt.Errorf("confirm qr login: %w", err)
	}
	return nil
}
