package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/device"
	"github.com/MrEthical07/authclient/internal/fakebackend"
	"github.com/MrEthical07/authclient/internal/logger"
	"github.com/MrEthical07/authclient/tokenstore"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "correct horse battery"
)

type recordingNavigator struct {
	mu        sync.Mutex
	current   string
	redirects int
}

func (n *recordingNavigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *recordingNavigator) RedirectToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects++
}

func (n *recordingNavigator) Redirects() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.redirects
}

type harness struct {
	t       *testing.T
	fb      *fakebackend.Server
	srv     *httptest.Server
	backend *tokenstore.MemoryBackend
	nav     *recordingNavigator
	alice   *fakebackend.Account
}

func newHarness(t *testing.T, cfg fakebackend.Config) *harness {
	t.Helper()
	cfg.BasePath = "/api"
	fb, err := fakebackend.New(cfg)
	if err != nil {
		t.Fatalf("fakebackend.New: %v", err)
	}
	srv := httptest.NewServer(fb.Handler())
	t.Cleanup(srv.Close)

	alice := fb.AddAccount(fakebackend.Account{
		Username: "alice",
		FullName: "Alice Liddell",
		Email:    aliceEmail,
		Password: alicePassword,
		Phone:    "+15550100",
	})
	return &harness{
		t:       t,
		fb:      fb,
		srv:     srv,
		backend: tokenstore.NewMemoryBackend(),
		nav:     &recordingNavigator{current: "/checkout"},
		alice:   alice,
	}
}

func (h *harness) config() Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = h.srv.URL + "/api"
	cfg.API.Timeout = 5 * time.Second
	cfg.Transport.BreakerEnabled = false
	cfg.QR.PollInterval = 10 * time.Millisecond
	return cfg
}

func fixedFingerprint(id string) device.Fingerprinter {
	return device.FingerprintFunc(func(context.Context) (string, error) { return id, nil })
}

// client builds a Client on the harness backend. mutate may adjust the
// builder before Build.
func (h *harness) client(mutate ...func(*Builder)) *Client {
	h.t.Helper()
	b := New().
		WithConfig(h.config()).
		WithBackend(h.backend).
		WithNavigator(h.nav).
		WithFingerprinter(fixedFingerprint("fp_test_device")).
		WithLogger(logger.Discard())
	for _, m := range mutate {
		m(b)
	}
	c, err := b.Build()
	if err != nil {
		h.t.Fatalf("Build: %v", err)
	}
	h.t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) tokens() tokenstore.Tokens {
	h.t.Helper()
	tok, err := tokenstore.New(h.backend).Tokens(context.Background())
	if err != nil {
		h.t.Fatalf("Tokens: %v", err)
	}
	return tok
}

// login drives alice through login and OTP verification.
func (h *harness) login(c *Client) {
	h.t.Helper()
	ctx := context.Background()
	res, err := c.Login(ctx, aliceEmail, alicePassword)
	if err != nil || !res.RequiresOTP {
		h.t.Fatalf("Login = %+v, %v; want RequiresOTP", res, err)
	}
	vr, err := c.VerifyOTP(ctx, aliceEmail, fakebackend.DefaultOTP)
	if err != nil || !vr.Success {
		h.t.Fatalf("VerifyOTP = %+v, %v; want Success", vr, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// gateTransport holds requests to one path until released.
type gateTransport struct {
	base    http.RoundTripper
	path    string
	entered chan struct{}
	release chan struct{}
}

func newGate(path string) *gateTransport {
	return &gateTransport{
		base:    http.DefaultTransport,
		path:    path,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *gateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == g.path {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.base.RoundTrip(req)
}
