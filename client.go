package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authclient/device"
	"github.com/MrEthical07/authclient/internal/api"
	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/internal/flows"
	"github.com/MrEthical07/authclient/internal/logger"
	"github.com/MrEthical07/authclient/jwt"
	"github.com/MrEthical07/authclient/tokenstore"
	"github.com/MrEthical07/authclient/transport"
)

// Client is the storefront session client. It is safe for concurrent use.
// Build one with New().WithConfig(cfg).Build().
type Client struct {
	cfg Config

	store       *tokenstore.Store
	device      *device.Provider
	interceptor *transport.Interceptor
	httpClient  *http.Client
	api         *api.Client
	decoder     *jwt.Decoder
	validate    *validator.Validate

	metrics *Metrics
	audit   *audit.Dispatcher
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	rootCtx context.Context

	mu           sync.Mutex
	sess         session
	listeners    []listener
	nextListener uint64
	notifyMu     sync.Mutex

	// persistMu orders token writes of verification against the clear of
	// a concurrent logout.
	persistMu sync.Mutex

	limiterMu   sync.Mutex
	otpLimiters map[string]*rate.Limiter

	syncSignal chan struct{}
	syncMu     sync.Mutex
	syncCancel context.CancelFunc
	syncDone   chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	closers   []func() error
}

/*
====================================
LOGIN
====================================
*/

// Login submits credentials. Business outcomes are reported through the
// result; the error is non-nil only for transport failures, malformed
// answers and storage failures.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := c.ready(); err != nil {
		return LoginResult{Message: flows.MessageNetworkFailure}, err
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{Reason: ErrInvalidCredentials, Message: "Email and password are required."}, nil
	}

	ctx, span := c.tracer.Start(ctx, "authclient.Login")
	defer span.End()

	c.metrics.Inc(MetricLoginAttempt)
	seq := c.begin()
	deviceID := c.deviceID(ctx)

	start := c.now()
	resp, err := c.api.Login(ctx, api.LoginRequest{Email: email, Password: password, DeviceID: deviceID})
	c.metrics.Observe(MetricAuthLatency, c.now().Sub(start))

	out := flows.ClassifyLogin(resp, err, c.outcomeErrors())
	span.SetAttributes(attribute.String("auth.outcome", out.Kind.String()))
	log := c.log(ctx).With("email", email)

	switch out.Kind {
	case flows.OutcomeFailed:
		c.metrics.Inc(MetricLoginFailure)
		c.metrics.Inc(MetricTransportFailure)
		span.SetStatus(codes.Error, "transport")
		log.Warn("login request failed", "error", out.Err)
		return LoginResult{Message: out.Message}, fmt.Errorf("login: %w", out.Err)

	case flows.OutcomeMalformed:
		c.metrics.Inc(MetricLoginFailure)
		span.SetStatus(codes.Error, "malformed")
		c.clearStoreIfCurrent(ctx, seq, (*session).authenticated)
		if !c.applyIfCurrent(seq, (*session).toAnonymous) {
			c.dropStale(ctx, "login", email)
		}
		log.Warn("login response malformed", "error", out.Err)
		return LoginResult{Message: out.Message}, fmt.Errorf("login: %w", out.Err)

	case flows.OutcomeRejected:
		c.clearStoreIfCurrent(ctx, seq, (*session).authenticated)
		if !c.applyIfCurrent(seq, (*session).toAnonymous) {
			c.dropStale(ctx, "login", email)
			return LoginResult{Reason: ErrSuperseded, Message: out.Message}, nil
		}
		c.metrics.Inc(MetricLoginRejected)
		c.emitAudit(ctx, AuditEvent{Type: AuditLoginRejected, Email: email, Reason: out.Reason.Error()})
		log.Info("login rejected", "reason", out.Reason)
		return LoginResult{Reason: out.Reason, Message: out.Message}, nil
	}

	// the previous account's tokens must not be hydrated back by the
	// synchronizer while the new login is pending
	c.clearStoreIfCurrent(ctx, seq, (*session).authenticated)
	entered := c.applyIfCurrent(seq, func(s *session) {
		s.toPending(email, out.MFARequired, out.AccessToken, out.RefreshToken)
	})
	if !entered {
		c.dropStale(ctx, "login", email)
		return LoginResult{Reason: ErrSuperseded, Message: out.Message}, nil
	}

	if out.Kind == flows.OutcomePending {
		c.metrics.Inc(MetricLoginPending)
		if out.MFARequired {
			c.metrics.Inc(MetricMFARequired)
		}
		c.emitAudit(ctx, AuditEvent{Type: AuditLoginPending, Email: email, Success: true,
			Metadata: map[string]string{"mfa_required": fmt.Sprint(out.MFARequired)}})
		return LoginResult{RequiresOTP: true, MFARequired: out.MFARequired, Message: out.Message}, nil
	}

	c.metrics.Inc(MetricLoginTrustedDevice)
	c.emitAudit(ctx, AuditEvent{Type: AuditLoginTrusted, Email: email, Success: true})
	user, reason, err := c.completeSession(ctx, seq, email, out.AccessToken, out.RefreshToken)
	if err != nil {
		return LoginResult{Message: "Could not save the session."}, fmt.Errorf("login: %w", err)
	}
	if reason != nil {
		return LoginResult{Reason: reason, Message: messageFor(reason)}, nil
	}
	return LoginResult{Success: true, Message: out.Message, User: user}, nil
}

/*
====================================
VERIFICATION
====================================
*/

// VerifyOTP submits the emailed one-time code for the pending email.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (VerifyResult, error) {
	return c.verify(ctx, email, code, false)
}

// VerifyMFA submits an authenticator code for the pending email.
func (c *Client) VerifyMFA(ctx context.Context, email, code string) (VerifyResult, error) {
	return c.verify(ctx, email, code, true)
}

func (c *Client) verify(ctx context.Context, email, code string, mfa bool) (VerifyResult, error) {
	if err := c.ready(); err != nil {
		return VerifyResult{Message: flows.MessageNetworkFailure}, err
	}
	email = normalizeEmail(email)

	c.mu.Lock()
	if c.sess.state != StatePending || c.sess.pendingEmail != email {
		c.mu.Unlock()
		return VerifyResult{Reason: ErrNoPendingVerification, Message: "Sign in again to receive a new code."}, ErrNoPendingVerification
	}
	c.sess.seq++
	seq := c.sess.seq
	pendingRefresh := c.sess.pendingRefresh
	c.mu.Unlock()

	op := "authclient.VerifyOTP"
	success, failure := MetricOTPSuccess, MetricOTPInvalid
	if mfa {
		op = "authclient.VerifyMFA"
		success, failure = MetricMFASuccess, MetricMFAFailure
	}
	ctx, span := c.tracer.Start(ctx, op)
	defer span.End()
	log := c.log(ctx).With("email", email)

	var (
		resp *api.AuthResponse
		err  error
	)
	start := c.now()
	if mfa {
		resp, err = c.api.VerifyMFA(ctx, api.VerifyMFARequest{Email: email, Code: strings.TrimSpace(code)})
	} else {
		resp, err = c.api.VerifyOTP(ctx, api.VerifyOTPRequest{Email: email, OTP: strings.TrimSpace(code)})
	}
	c.metrics.Observe(MetricAuthLatency, c.now().Sub(start))

	out := flows.ClassifyVerify(resp, err, c.outcomeErrors())
	span.SetAttributes(attribute.String("auth.outcome", out.Kind.String()))

	switch out.Kind {
	case flows.OutcomeFailed:
		c.metrics.Inc(MetricTransportFailure)
		span.SetStatus(codes.Error, "transport")
		log.Warn("verification request failed", "error", out.Err)
		return VerifyResult{Message: out.Message}, fmt.Errorf("verify: %w", out.Err)

	case flows.OutcomeMalformed:
		c.metrics.Inc(failure)
		span.SetStatus(codes.Error, "malformed")
		if !c.applyIfCurrent(seq, (*session).toAnonymous) {
			c.dropStale(ctx, "verify", email)
		}
		log.Warn("verification response malformed", "error", out.Err)
		return VerifyResult{Message: out.Message}, fmt.Errorf("verify: %w", out.Err)

	case flows.OutcomeRejected:
		if c.stale(seq) {
			c.dropStale(ctx, "verify", email)
			return VerifyResult{Reason: ErrSuperseded, Message: out.Message}, nil
		}
		c.metrics.Inc(failure)
		typ := AuditOTPRejected
		if mfa {
			typ = AuditMFARejected
		}
		c.emitAudit(ctx, AuditEvent{Type: typ, Email: email, Reason: out.Reason.Error()})
		return VerifyResult{Reason: out.Reason, Message: out.Message}, nil

	case flows.OutcomePending:
		ok := c.applyIfCurrent(seq, func(s *session) {
			access, refresh := s.pendingAccess, s.pendingRefresh
			if out.AccessToken != "" {
				access = out.AccessToken
			}
			if out.RefreshToken != "" {
				refresh = out.RefreshToken
			}
			s.toPending(email, true, access, refresh)
		})
		if !ok {
			c.dropStale(ctx, "verify", email)
			return VerifyResult{Reason: ErrSuperseded, Message: out.Message}, nil
		}
		c.metrics.Inc(MetricMFARequired)
		c.emitAudit(ctx, AuditEvent{Type: AuditMFARequired, Email: email, Success: true})
		return VerifyResult{MFARequired: true, Reason: ErrMFARequired, Message: out.Message}, nil
	}

	refresh := out.RefreshToken
	if refresh == "" {
		refresh = pendingRefresh
	}
	user, reason, err := c.completeSession(ctx, seq, email, out.AccessToken, refresh)
	if err != nil {
		c.metrics.Inc(failure)
		return VerifyResult{Message: "Could not save the session."}, fmt.Errorf("verify: %w", err)
	}
	if reason != nil {
		if !errors.Is(reason, ErrSuperseded) {
			c.metrics.Inc(failure)
		}
		return VerifyResult{Reason: reason, Message: messageFor(reason)}, nil
	}
	c.metrics.Inc(success)
	typ := AuditOTPVerified
	if mfa {
		typ = AuditMFAVerified
	}
	c.emitAudit(ctx, AuditEvent{Type: typ, Email: email, UserID: user.ID, Success: true})
	return VerifyResult{Success: true, Message: out.Message, User: user}, nil
}

// completeSession persists the tokens of a finished login and hydrates the
// user. A non-nil reason means the session did not become Authenticated.
func (c *Client) completeSession(ctx context.Context, seq uint64, email, access, refresh string) (user *User, reason, err error) {
	if _, derr := c.decoder.Decode(access); derr != nil {
		c.log(ctx).Warn("issued access token undecodable", "email", email, "error", derr)
		if !c.applyIfCurrent(seq, (*session).toAnonymous) {
			c.dropStale(ctx, "complete", email)
			return nil, ErrSuperseded, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, derr), nil
	}

	c.persistMu.Lock()
	if c.stale(seq) {
		c.persistMu.Unlock()
		c.dropStale(ctx, "complete", email)
		return nil, ErrSuperseded, nil
	}
	err = c.store.SaveSession(ctx, access, refresh, email)
	c.persistMu.Unlock()
	if err != nil {
		c.log(ctx).Error("persist session failed", "email", email, "error", err)
		return nil, nil, fmt.Errorf("persist session: %w", err)
	}

	res := c.hydrate(ctx, access, email)
	if !res.OK {
		c.log(ctx).Warn("session hydration failed", "email", email, "error", res.Err)
		c.clearStoreIfCurrent(ctx, seq, nil)
		if !c.applyIfCurrent(seq, (*session).toAnonymous) {
			return nil, ErrSuperseded, nil
		}
		return nil, ErrRefreshFailed, nil
	}

	hydrated := userFromRecord(res.User)
	if !c.applyIfCurrent(seq, func(s *session) { s.toAuthenticated(hydrated) }) {
		c.dropStale(ctx, "complete", email)
		return nil, ErrSuperseded, nil
	}
	u := *hydrated
	return &u, nil, nil
}

// ResendOTP asks the backend to send a new verification code. Calls for the
// same email are throttled to OTP.ResendBurst per OTP.ResendInterval.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	if err := c.ready(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("resend otp: %w", ErrNoPendingVerification)
	}
	if !c.otpLimiter(email).Allow() {
		c.metrics.Inc(MetricOTPResendThrottled)
		return ErrOTPResendThrottled
	}

	ctx, span := c.tracer.Start(ctx, "authclient.ResendOTP")
	defer span.End()

	if err := c.api.SendOTP(ctx, email); err != nil {
		span.SetStatus(codes.Error, "send otp")
		if errors.Is(err, ErrTransport) {
			c.metrics.Inc(MetricTransportFailure)
		}
		return fmt.Errorf("resend otp: %w", err)
	}
	c.metrics.Inc(MetricOTPResent)
	return nil
}

func (c *Client) otpLimiter(email string) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	l, ok := c.otpLimiters[email]
	if !ok {
		limit := rate.Inf
		if c.cfg.OTP.ResendInterval > 0 {
			limit = rate.Every(c.cfg.OTP.ResendInterval)
		}
		l = rate.NewLimiter(limit, max(c.cfg.OTP.ResendBurst, 1))
		c.otpLimiters[email] = l
	}
	return l
}

/*
====================================
REGISTRATION
====================================
*/

// Register creates an account. It does not change the session state.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Profile, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := c.validate.Struct(req); err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}

	ctx, span := c.tracer.Start(ctx, "authclient.Register")
	defer span.End()

	profile, err := c.api.Register(ctx, api.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		span.SetStatus(codes.Error, "register")
		return nil, fmt.Errorf("register: %w", err)
	}
	c.metrics.Inc(MetricRegisterSuccess)
	return profile, nil
}

/*
====================================
LOGOUT
====================================
*/

// Logout notifies the backend when a token is stored, then clears the
// pending state, the user and the stored tokens. Backend failures are logged
// and ignored. The only error is a storage failure; the session is
// Anonymous either way.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	ctx, span := c.tracer.Start(ctx, "authclient.Logout")
	defer span.End()

	seq := c.begin()
	email := userEmail(c.Snapshot().User)

	access, err := c.store.AccessToken(ctx)
	if err != nil {
		c.log(ctx).Warn("read access token for logout failed", "error", err)
	}
	if access != "" {
		if err := c.api.Logout(transport.WithoutRefresh(ctx)); err != nil {
			c.metrics.Inc(MetricLogoutNotifyFailure)
			c.log(ctx).Warn("logout notification failed", "error", err)
		}
	}

	c.persistMu.Lock()
	clearErr := c.store.Clear(ctx)
	c.persistMu.Unlock()

	c.applyIfCurrent(seq, (*session).toAnonymous)
	c.metrics.Inc(MetricLogout)
	c.emitAudit(ctx, AuditEvent{Type: AuditLogout, Email: email, Success: clearErr == nil})

	if clearErr != nil {
		c.log(ctx).Error("clear session storage failed", "error", clearErr)
		return fmt.Errorf("logout: %w", clearErr)
	}
	return nil
}

/*
====================================
ACCESSORS
====================================
*/

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.state
}

// Snapshot returns a consistent copy of the session state.
func (c *Client) Snapshot() SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot()
}

// User returns a copy of the authenticated user, or nil.
func (c *Client) User() *User {
	return c.Snapshot().User
}

// PendingEmail returns the email awaiting verification, or "".
func (c *Client) PendingEmail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.pendingEmail
}

// HTTPClient returns the intercepted client for other storefront calls
// (catalog, cart, orders). Requests to the API host carry the session
// credentials and are refreshed and replayed once on 401.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// DeviceID returns the persistent device identifier, creating it on first
// use.
func (c *Client) DeviceID(ctx context.Context) (string, error) {
	id, err := c.device.GetOrCreate(ctx)
	if id.ID == "" {
		return "", err
	}
	if err != nil {
		c.log(ctx).Warn("persist device id failed", "error", err)
	}
	return id.ID, nil
}

// ResetDevice forgets the device identifier. The next login presents a new
// one unless fingerprinting reproduces it.
func (c *Client) ResetDevice(ctx context.Context) error {
	prev, _ := c.device.GetSync()
	if err := c.device.Clear(ctx); err != nil {
		return fmt.Errorf("reset device: %w", err)
	}
	c.emitAudit(ctx, AuditEvent{Type: AuditDeviceReset, DeviceID: prev.ID, Success: true})
	return nil
}

func (c *Client) Metrics() *Metrics { return c.metrics }

// MetricsSnapshot is the source read by the metrics exporters.
func (c *Client) MetricsSnapshot() MetricsSnapshot { return c.metrics.Snapshot() }

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close stops the synchronizer, flushes the audit dispatcher and releases
// connections opened by Build. The stored session is kept.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.Stop()
		if c.audit != nil {
			c.audit.Close()
		}
		for _, fn := range c.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

/*
====================================
HELPERS
====================================
*/

func (c *Client) ready() error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
		return nil
	}
}

func (c *Client) stale(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq != c.sess.seq
}

// clearStoreIfCurrent clears the stored session when seq is still the latest
// operation and cond, if set, holds. Callers run it before moving the state
// so a concurrent Resync cannot hydrate the old tokens back.
func (c *Client) clearStoreIfCurrent(ctx context.Context, seq uint64, cond func(s *session) bool) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	ok := seq == c.sess.seq && (cond == nil || cond(&c.sess))
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log(ctx).Warn("clear session storage failed", "error", err)
	}
}

func (c *Client) dropStale(ctx context.Context, op, email string) {
	c.metrics.Inc(MetricStaleResponseDropped)
	c.log(ctx).Info("stale response dropped", "op", op, "email", email)
	c.emitAudit(ctx, AuditEvent{Type: AuditStaleDropped, Email: email, Reason: op})
}

func (c *Client) deviceID(ctx context.Context) string {
	id, err := c.device.GetOrCreate(ctx)
	if err != nil {
		c.log(ctx).Warn("persist device id failed", "error", err)
	}
	return id.ID
}

func (c *Client) outcomeErrors() flows.OutcomeErrors {
	return flows.OutcomeErrors{
		InvalidCredentials: ErrInvalidCredentials,
		OTPInvalid:         ErrOTPInvalid,
		ServiceUnavailable: ErrServiceUnavailable,
	}
}

func (c *Client) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}

func messageFor(reason error) string {
	switch {
	case errors.Is(reason, ErrSuperseded):
		return "A newer sign-in attempt replaced this one."
	case errors.Is(reason, ErrMalformedResponse):
		return flows.MessageMalformed
	case errors.Is(reason, ErrRefreshFailed):
		return "Your session could not be established. Please sign in again."
	}
	return reason.Error()
}
