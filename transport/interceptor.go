package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/MrEthical07/authclient/internal"
	"github.com/MrEthical07/authclient/internal/api"
	"github.com/MrEthical07/authclient/internal/logger"
)

// Header names attached by the Interceptor.
const (
	HeaderAuthorization = "Authorization"
	HeaderDeviceID      = "X-Device-ID"
	HeaderUserEmail     = "X-User-Email"
	HeaderCorrelationID = "X-Correlation-ID"
)

// ErrNoRefreshToken is reported to hooks when a 401 arrives and no refresh
// token is stored.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// TokenStore is the slice of the token store the Interceptor reads and
// writes. *tokenstore.Store satisfies it.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	Email(ctx context.Context) (string, error)
	SaveAccessToken(ctx context.Context, access string) error
	Clear(ctx context.Context) error
}

// Hooks observe refresh outcomes. Nil fields are skipped.
type Hooks struct {
	RefreshSucceeded func()
	RefreshFailed    func(err error)
	// SessionExpired runs after the store was cleared.
	SessionExpired  func(err error)
	TransportFailed func(err error)
}

// Config configures an Interceptor.
type Config struct {
	// BaseURL is the storefront API root. Requests to other hosts pass
	// through untouched.
	BaseURL     string
	PublicRules []Rule
	// LoginPath is compared with Navigator.Current before redirecting.
	LoginPath string
	// DeviceID returns the memoized device identifier, if any.
	DeviceID  func() (string, bool)
	Navigator Navigator
	Hooks     Hooks
	Logger    *slog.Logger
}

// Interceptor is an http.RoundTripper implementing the storefront's
// credential attachment and refresh-and-retry protocol.
type Interceptor struct {
	base       http.RoundTripper
	tokens     TokenStore
	host       string
	classifier *Classifier
	refresher  *api.Client
	deviceID   func() (string, bool)
	nav        Navigator
	loginPath  string
	hooks      Hooks
	logger     *slog.Logger

	refreshMu sync.Mutex
}

// New returns an Interceptor sending through base. A nil base uses
// http.DefaultTransport.
func New(base http.RoundTripper, tokens TokenStore, cfg Config) (*Interceptor, error) {
	if tokens == nil {
		return nil, errors.New("transport: token store is nil")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("transport: invalid base url %q", cfg.BaseURL)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	rules := cfg.PublicRules
	if rules == nil {
		rules = DefaultPublicRules()
	}
	nav := cfg.Navigator
	if nav == nil {
		nav = NopNavigator{}
	}
	l := cfg.Logger
	if l == nil {
		l = logger.Discard()
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return &Interceptor{
		base:       base,
		tokens:     tokens,
		host:       u.Host,
		classifier: NewClassifier(u.Path, rules),
		refresher:  api.New(cfg.BaseURL, &http.Client{Transport: base}),
		deviceID:   cfg.DeviceID,
		nav:        nav,
		loginPath:  loginPath,
		hooks:      cfg.Hooks,
		logger:     l,
	}, nil
}

// Client returns an *http.Client using the Interceptor.
func (i *Interceptor) Client() *http.Client {
	return &http.Client{Transport: i}
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || req.URL.Host != i.host {
		return i.base.RoundTrip(req)
	}
	ctx := req.Context()

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	public := i.classifier.IsPublic(req.Method, req.URL.Path)
	out, sent := i.prepare(ctx, req, body, public)

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		if i.hooks.TransportFailed != nil {
			i.hooks.TransportFailed(err)
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || public || isRetry(ctx) {
		return resp, nil
	}

	// keep the 401 readable in case it has to be handed back
	original, err := bufferResponse(resp)
	if err != nil {
		return nil, err
	}

	if _, err := i.refresh(ctx, sent); err != nil {
		if ctx.Err() == nil {
			i.expire(ctx, err)
		}
		return original, nil
	}

	replay := req.Clone(WithoutRefresh(ctx))
	if body != nil {
		replay.Body = io.NopCloser(bytes.NewReader(body))
	}
	resp, err = i.RoundTrip(replay)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		i.expire(ctx, errors.New("request rejected after refresh"))
	}
	return resp, nil
}

// prepare clones req with the headers for its endpoint class. It returns the
// access token attached, if any.
func (i *Interceptor) prepare(ctx context.Context, req *http.Request, body []byte, public bool) (*http.Request, string) {
	out := req.Clone(ctx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}

	var access string
	if public {
		out.Header.Del(HeaderAuthorization)
	} else {
		var err error
		if access, err = i.tokens.AccessToken(ctx); err != nil {
			i.logger.WarnContext(ctx, "reading access token failed", "error", err)
		}
		if access != "" {
			out.Header.Set(HeaderAuthorization, "Bearer "+access)
		}
		if email, err := i.tokens.Email(ctx); err == nil && email != "" {
			out.Header.Set(HeaderUserEmail, email)
		}
	}

	if i.deviceID != nil {
		if id, ok := i.deviceID(); ok && id != "" {
			out.Header.Set(HeaderDeviceID, id)
		}
	}
	cid := logger.CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = internal.NewCorrelationID()
	}
	out.Header.Set(HeaderCorrelationID, cid)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))

	return out, access
}

// refresh obtains a fresh access token. Refreshes are serialized; a caller
// whose token was already replaced while it waited reuses the new one.
func (i *Interceptor) refresh(ctx context.Context, sent string) (string, error) {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()

	current, err := i.tokens.AccessToken(ctx)
	if err == nil && current != "" && current != sent {
		return current, nil
	}

	refresh, err := i.tokens.RefreshToken(ctx)
	if err != nil {
		return "", i.refreshFailed(err)
	}
	if strings.TrimSpace(refresh) == "" {
		return "", i.refreshFailed(ErrNoRefreshToken)
	}

	out, err := i.refresher.Refresh(ctx, refresh)
	if err != nil {
		return "", i.refreshFailed(err)
	}
	if err := i.tokens.SaveAccessToken(ctx, out.AccessToken); err != nil {
		return "", i.refreshFailed(err)
	}

	i.logger.DebugContext(ctx, "access token refreshed")
	if i.hooks.RefreshSucceeded != nil {
		i.hooks.RefreshSucceeded()
	}
	return out.AccessToken, nil
}

func (i *Interceptor) refreshFailed(err error) error {
	if i.hooks.RefreshFailed != nil {
		i.hooks.RefreshFailed(err)
	}
	return err
}

// expire clears the stored session and sends the user to the login entry
// point unless already there.
func (i *Interceptor) expire(ctx context.Context, cause error) {
	i.logger.WarnContext(ctx, "session expired", "error", cause)
	if err := i.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		i.logger.WarnContext(ctx, "clearing token store failed", "error", err)
	}
	if i.hooks.SessionExpired != nil {
		i.hooks.SessionExpired(cause)
	}
	if !onLoginPath(i.nav.Current(), i.loginPath) {
		i.nav.RedirectToLogin()
	}
}

// bufferBody reads the request body so it can be sent twice.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}
	return b, nil
}

func bufferResponse(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading 401 response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return resp, nil
}
