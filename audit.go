package authclient

import (
	"context"
	"io"

	"github.com/MrEthical07/authclient/internal/audit"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = audit.Event

// AuditSink receives audit events from a background goroutine.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

// ChannelSink delivers events on a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditLoginPending     = "login_pending"
	AuditLoginRejected    = "login_rejected"
	AuditLoginTrusted     = "login_trusted_device"
	AuditOTPVerified      = "otp_verified"
	AuditOTPRejected      = "otp_rejected"
	AuditMFARequired      = "mfa_required"
	AuditMFAVerified      = "mfa_verified"
	AuditMFARejected      = "mfa_rejected"
	AuditStaleDropped     = "stale_response_dropped"
	AuditRefreshSucceeded = "refresh_succeeded"
	AuditSessionExpired   = "session_expired"
	AuditSessionHydrated  = "session_hydrated"
	AuditSessionCleared   = "session_cleared"
	AuditLogout           = "logout"
	AuditQRLogin          = "qr_login"
	AuditDeviceReset      = "device_reset"
	AuditStateChanged     = "state_changed"
)

func (c *Client) emitAudit(ctx context.Context, ev AuditEvent) {
	if c.audit == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = c.now().UTC()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = CorrelationID(ctx)
	}
	if ev.DeviceID == "" {
		if id, ok := c.device.GetSync(); ok {
			ev.DeviceID = id.ID
		}
	}
	c.audit.Emit(ctx, ev)
}
