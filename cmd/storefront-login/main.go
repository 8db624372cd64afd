// Command storefront-login signs a shopper in to a storefront API from the
// terminal, exercising the same session core a storefront UI embeds.
//
// Usage:
//
//	storefront-login --base-url https://shop.example.com/api --email alice@example.com
//	storefront-login --demo --email alice@example.com --password correct-horse
//	storefront-login --demo --qr
//
// Tokens persist in the configured storage, so a second run against the same
// redis namespace or token file starts already signed in.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"

	authclient "github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/internal/fakebackend"
	"github.com/MrEthical07/authclient/internal/logger"
	"github.com/MrEthical07/authclient/internal/tracing"
	promexport "github.com/MrEthical07/authclient/metrics/export/prometheus"
)

const (
	demoEmail    = "alice@example.com"
	demoPassword = "correct-horse"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, newPrompter(os.Stdin, os.Stderr), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options, p *prompter, out io.Writer) error {
	log := logger.New("storefront-login", o.client.Log.Level)

	shutdownTracing, err := tracing.Init(ctx, o.tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flush traces", "error", err)
		}
	}()

	var demo *fakebackend.Server
	if o.demo {
		var cleanup func()
		demo, cleanup, err = startDemo(o)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	b := authclient.New().WithConfig(o.client).WithLogger(log)
	if o.client.Audit.Enabled {
		b = b.WithAuditSink(authclient.NewJSONWriterSink(os.Stderr))
	}
	client, err := b.Build()
	if err != nil {
		return err
	}
	defer client.Close()

	if o.metricsAddr != "" {
		stopMetrics := serveMetrics(o.metricsAddr, client, log)
		defer stopMetrics()
	}

	cancel := client.OnSessionChanged(func(s authclient.SessionSnapshot) {
		log.Debug("session changed", "state", s.State.String(), "seq", s.Seq)
	})
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()

	if u := client.User(); u != nil && client.State() == authclient.StateAuthenticated {
		fmt.Fprintf(out, "already signed in as %s\n", u.Email)
	} else if o.qr {
		if err := qrLogin(ctx, client, demo, o, out); err != nil {
			return err
		}
	} else if err := passwordLogin(ctx, client, o, p, out); err != nil {
		return err
	}

	if o.fetchOrders {
		if err := fetchOrders(ctx, client, o.client.API.BaseURL, out); err != nil {
			return err
		}
	}

	if o.logout {
		if err := client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
	}
	return nil
}

func passwordLogin(ctx context.Context, c *authclient.Client, o *options, p *prompter, out io.Writer) error {
	password := o.password
	if password == "" {
		var err error
		if password, err = p.secret("Password"); err != nil {
			return err
		}
	}

	res, err := c.Login(ctx, o.email, password)
	if err != nil {
		return err
	}
	if res.Success {
		fmt.Fprintf(out, "signed in as %s (trusted device)\n", res.User.Email)
		return nil
	}
	if !res.RequiresOTP {
		return fmt.Errorf("login failed: %w", res.Reason)
	}
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
	}

	code, err := p.secret("Verification code")
	if err != nil {
		return err
	}
	vr, err := c.VerifyOTP(ctx, o.email, code)
	if err != nil {
		return err
	}
	if vr.MFARequired {
		code, err := p.secret("Authenticator code")
		if err != nil {
			return err
		}
		if vr, err = c.VerifyMFA(ctx, o.email, code); err != nil {
			return err
		}
	}
	if !vr.Success {
		return fmt.Errorf("verification failed: %w", vr.Reason)
	}
	fmt.Fprintf(out, "signed in as %s\n", vr.User.Email)
	return nil
}

func qrLogin(ctx context.Context, c *authclient.Client, demo *fakebackend.Server, o *options, out io.Writer) error {
	qs, err := c.StartQRLogin(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "scan to sign in: %s\n", qs.QRPayload)

	if demo != nil {
		email := o.email
		if email == "" {
			email = demoEmail
		}
		go func() {
			time.Sleep(time.Second)
			_ = demo.ConfirmQR(qs.SessionID, email)
		}()
	}

	u, err := c.WaitForQRLogin(ctx, qs.SessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s\n", u.Email)
	return nil
}

func fetchOrders(ctx context.Context, c *authclient.Client, baseURL string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/orders", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		fmt.Fprintln(out, "session expired, sign in again")
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Fprintf(out, "GET /orders: %s\n%s\n", resp.Status, body)
	return nil
}

// startDemo runs the mock backend in process and points the client at it.
// A redis backend without an address gets an embedded miniredis.
func startDemo(o *options) (*fakebackend.Server, func(), error) {
	fb, err := fakebackend.New(fakebackend.Config{BasePath: "/api", TrustOnVerify: true})
	if err != nil {
		return nil, nil, err
	}
	email := o.email
	if email == "" {
		email = demoEmail
	}
	fb.AddAccount(fakebackend.Account{
		Username: "alice",
		FullName: "Alice Shopper",
		Email:    email,
		Password: demoPassword,
	})
	srv := httptest.NewServer(fb.Handler())
	o.client.API.BaseURL = srv.URL + "/api"
	cleanups := []func(){srv.Close}

	if o.client.Storage.Backend == authclient.StorageRedis && o.client.Storage.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			srv.Close()
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		o.client.Storage.RedisAddr = mr.Addr()
		cleanups = append(cleanups, mr.Close)
	}

	fmt.Fprintf(os.Stderr, "demo backend at %s, password %q, code %s\n", o.client.API.BaseURL, demoPassword, fakebackend.DefaultOTP)
	return fb, func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}, nil
}

func serveMetrics(addr string, c *authclient.Client, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewPrometheusExporter(c).Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
