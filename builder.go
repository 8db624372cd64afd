package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authclient/device"
	"github.com/MrEthical07/authclient/internal/api"
	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/internal/logger"
	"github.com/MrEthical07/authclient/internal/tracing"
	"github.com/MrEthical07/authclient/jwt"
	"github.com/MrEthical07/authclient/tokenstore"
	"github.com/MrEthical07/authclient/transport"
)

// Builder assembles a Client. Configure it during initialization; Build
// may be called once.
type Builder struct {
	config Config

	backend       tokenstore.Backend
	redis         redis.UniversalClient
	httpTransport http.RoundTripper
	navigator     transport.Navigator
	publicRules   []transport.Rule
	fingerprinter device.Fingerprinter
	auditSink     AuditSink
	logger        *slog.Logger
	clock         func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBackend overrides Storage.Backend with an existing backend. Clients
// built on the same backend share one session.
func (b *Builder) WithBackend(backend tokenstore.Backend) *Builder {
	b.backend = backend
	return b
}

// WithRedis supplies the client used by the redis storage backend instead
// of dialing Storage.RedisAddr. The caller keeps ownership of it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPTransport sets the transport beneath the circuit breaker and the
// interceptor.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.httpTransport = rt
	return b
}

func (b *Builder) WithNavigator(nav transport.Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithPublicRules replaces transport.DefaultPublicRules.
func (b *Builder) WithPublicRules(rules []transport.Rule) *Builder {
	b.publicRules = rules
	return b
}

func (b *Builder) WithFingerprinter(f device.Fingerprinter) *Builder {
	b.fingerprinter = f
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Client. The synchronizer
// is not started; call Client.Start.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrClientNotReady)
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientNotReady, err)
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	log := b.logger
	if log == nil {
		log = logger.New("authclient", cfg.Log.Level)
	}

	// -------- TOKEN STORE --------
	backend, closers, err := b.buildBackend(cfg, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientNotReady, err)
	}
	store := tokenstore.New(backend)

	// -------- DEVICE IDENTITY --------
	deviceOpts := []device.Option{
		device.WithCacheTTL(cfg.Device.CacheTTL),
		device.WithClock(now),
		device.WithLogger(log),
	}
	switch {
	case b.fingerprinter != nil:
		deviceOpts = append(deviceOpts, device.WithFingerprinter(b.fingerprinter))
	case cfg.Device.DisableFingerprint:
		deviceOpts = append(deviceOpts, device.WithFingerprinter(device.FingerprintFunc(
			func(context.Context) (string, error) { return "", device.ErrNoHardwareID },
		)))
	}
	provider := device.NewProvider(store, deviceOpts...)

	c := &Client{
		cfg:         cfg,
		store:       store,
		device:      provider,
		decoder:     jwt.NewDecoder(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      log,
		tracer:      tracing.Tracer("authclient"),
		now:         now,
		rootCtx:     context.Background(),
		otpLimiters: make(map[string]*rate.Limiter),
		syncSignal:  make(chan struct{}, 1),
		closed:      make(chan struct{}),
		closers:     closers,
	}
	c.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	// -------- TRANSPORT --------
	base := b.httpTransport
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Transport.BreakerEnabled {
		bc := transport.DefaultBreakerConfig("storefront-api")
		bc.MinRequests = cfg.Transport.BreakerMinRequests
		bc.FailureRatio = cfg.Transport.BreakerFailureRatio
		bc.Timeout = cfg.Transport.BreakerOpenTimeout
		base = transport.NewBreaker(base, bc, log)
	}

	interceptor, err := transport.New(base, store, transport.Config{
		BaseURL:     cfg.API.BaseURL,
		PublicRules: b.publicRules,
		LoginPath:   cfg.Transport.LoginPath,
		DeviceID: func() (string, bool) {
			id, ok := provider.GetSync()
			return id.ID, ok
		},
		Navigator: b.navigator,
		Hooks: transport.Hooks{
			RefreshSucceeded: c.onRefreshSucceeded,
			RefreshFailed:    c.onRefreshFailed,
			SessionExpired:   c.onSessionExpired,
			TransportFailed:  c.onTransportFailed,
		},
		Logger: log,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrClientNotReady, err)
	}
	c.interceptor = interceptor
	c.httpClient = &http.Client{Transport: interceptor, Timeout: cfg.API.Timeout}
	c.api = api.New(cfg.API.BaseURL, c.httpClient)

	b.built = true
	return c, nil
}

func (b *Builder) buildBackend(cfg Config, now func() time.Time) (tokenstore.Backend, []func() error, error) {
	if b.backend != nil {
		return b.backend, nil, nil
	}

	switch cfg.Storage.Backend {
	case StorageRedis:
		client := b.redis
		var closers []func() error
		if client == nil {
			rc := redis.NewClient(&redis.Options{
				Addr: cfg.Storage.RedisAddr,
				DB:   cfg.Storage.RedisDB,
			})
			client = rc
			closers = append(closers, rc.Close)
		}
		return tokenstore.NewRedisBackend(client, cfg.Storage.RedisPrefix), closers, nil

	case StorageFile:
		opts := []tokenstore.FileOption{tokenstore.WithFileClock(now)}
		if cfg.Storage.AgeIdentity != "" {
			id, err := tokenstore.ParseAgeIdentity(cfg.Storage.AgeIdentity)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, tokenstore.WithAgeIdentity(id))
		}
		fb, err := tokenstore.NewFileBackend(cfg.Storage.FilePath, opts...)
		if err != nil {
			return nil, nil, err
		}
		return fb, nil, nil

	case StorageMemory:
		return tokenstore.NewMemoryBackendWithClock(now), nil, nil
	}
	return nil, nil, errors.New("unsupported storage backend")
}
