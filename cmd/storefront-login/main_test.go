package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/internal/fakebackend"
)

func TestParseOptionsLayering(t *testing.T) {
	t.Setenv("AUTHCLIENT_API_BASE_URL", "https://env.example.com/api")
	t.Setenv("AUTHCLIENT_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "login.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://file.example.com/api
storage:
  backend: redis
  redis_addr: 127.0.0.1:6379
log_level: debug
tracing:
  enabled: true
  endpoint: collector:4318
metrics_addr: 127.0.0.1:9100
`), 0o600))

	o, err := parseOptions([]string{"--config", path, "--email", "a@example.com", "--log-level", "error"})
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/api", o.client.API.BaseURL)
	assert.Equal(t, authclient.StorageRedis, o.client.Storage.Backend)
	assert.Equal(t, "127.0.0.1:6379", o.client.Storage.RedisAddr)
	assert.Equal(t, "error", o.client.Log.Level)
	assert.True(t, o.tracing.Enabled)
	assert.Equal(t, "collector:4318", o.tracing.OTLPEndpoint)
	assert.Equal(t, "127.0.0.1:9100", o.metricsAddr)
	assert.True(t, o.fetchOrders)
}

func TestParseOptionsRequiresEmailAndBaseURL(t *testing.T) {
	t.Setenv("AUTHCLIENT_API_BASE_URL", "")

	_, err := parseOptions([]string{"--base-url", "http://shop.test"})
	assert.Error(t, err)

	_, err = parseOptions([]string{"--email", "a@example.com"})
	assert.Error(t, err)

	o, err := parseOptions([]string{"--demo", "--qr"})
	require.NoError(t, err)
	assert.True(t, o.demo)
}

func TestParseOptionsBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unterminated"), 0o600))

	_, err := parseOptions([]string{"--config", path, "--demo", "--email", "a@example.com"})
	assert.Error(t, err)
}

func pipedPrompter(t *testing.T, input string) *prompter {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	_, err = io.WriteString(w, input)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return newPrompter(r, io.Discard)
}

func demoOptions(t *testing.T, args ...string) *options {
	t.Helper()
	t.Setenv("AUTHCLIENT_API_BASE_URL", "")
	o, err := parseOptions(append([]string{"--demo", "--log-level", "error"}, args...))
	require.NoError(t, err)
	o.client.Device.DisableFingerprint = true
	o.client.Transport.BreakerEnabled = false
	o.client.QR.PollInterval = 20 * time.Millisecond
	return o
}

func TestRunDemoPasswordLogin(t *testing.T) {
	o := demoOptions(t, "--email", demoEmail, "--password", demoPassword, "--logout")

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, o, pipedPrompter(t, fakebackend.DefaultOTP+"\n"), &out))

	assert.Contains(t, out.String(), "signed in as "+demoEmail)
	assert.Contains(t, out.String(), "GET /orders: 200 OK")
	assert.Contains(t, out.String(), "signed out")
}

func TestRunDemoWrongCode(t *testing.T) {
	o := demoOptions(t, "--email", demoEmail, "--password", demoPassword)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := run(ctx, o, pipedPrompter(t, "000000\n"), io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, authclient.ErrOTPInvalid)
}

func TestRunDemoQRLogin(t *testing.T) {
	o := demoOptions(t, "--qr", "--orders=false")

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, o, pipedPrompter(t, ""), &out))

	assert.Contains(t, out.String(), "scan to sign in:")
	assert.Contains(t, out.String(), "signed in as "+demoEmail)
}
