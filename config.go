package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "AUTHCLIENT_"

// Config is the complete client configuration. Start from DefaultConfig and
// override fields, or call LoadConfig to overlay the environment.
type Config struct {
	API       APIConfig       `envPrefix:"API_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Device    DeviceConfig    `envPrefix:"DEVICE_"`
	Transport TransportConfig `envPrefix:"TRANSPORT_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	OTP       OTPConfig       `envPrefix:"OTP_"`
	QR        QRConfig        `envPrefix:"QR_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Log       LogConfig       `envPrefix:"LOG_"`
}

/*
====================================
API
====================================
*/

type APIConfig struct {
	// BaseURL is the storefront API root, e.g. https://shop.example.com/api.
	BaseURL string        `env:"BASE_URL"`
	Timeout time.Duration `env:"TIMEOUT"`
}

/*
====================================
STORAGE
====================================
*/

// Storage backends selectable through StorageConfig.Backend.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageFile   = "file"
)

// StorageConfig selects the token storage namespace. Clients sharing a
// namespace observe each other's logins and logouts.
type StorageConfig struct {
	Backend     string `env:"BACKEND"`
	RedisAddr   string `env:"REDIS_ADDR"`
	RedisDB     int    `env:"REDIS_DB"`
	RedisPrefix string `env:"REDIS_PREFIX"`
	FilePath    string `env:"FILE_PATH"`
	// AgeIdentity encrypts the file backend at rest (AGE-SECRET-KEY-1...).
	AgeIdentity string `env:"AGE_IDENTITY"`
}

/*
====================================
DEVICE
====================================
*/

type DeviceConfig struct {
	CacheTTL time.Duration `env:"CACHE_TTL"`
	// DisableFingerprint skips host fingerprinting and always uses a random
	// identifier.
	DisableFingerprint bool `env:"DISABLE_FINGERPRINT"`
}

/*
====================================
TRANSPORT
====================================
*/

type TransportConfig struct {
	// LoginPath is where the Navigator is sent when the session cannot be
	// refreshed.
	LoginPath           string        `env:"LOGIN_PATH"`
	BreakerEnabled      bool          `env:"BREAKER_ENABLED"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO"`
	BreakerOpenTimeout  time.Duration `env:"BREAKER_OPEN_TIMEOUT"`
}

/*
====================================
SESSION
====================================
*/

type SessionConfig struct {
	// TokenLeeway is subtracted from exp when judging a stored token.
	TokenLeeway time.Duration `env:"TOKEN_LEEWAY"`
	// HydrateTimeout bounds the profile fetch during hydration.
	HydrateTimeout time.Duration `env:"HYDRATE_TIMEOUT"`
}

type OTPConfig struct {
	ResendInterval time.Duration `env:"RESEND_INTERVAL"`
	ResendBurst    int           `env:"RESEND_BURST"`
}

type QRConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

type LogConfig struct {
	Level string `env:"LEVEL"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration using in-memory storage. API.BaseURL
// must still be set.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend:     StorageMemory,
			RedisPrefix: "authclient:",
		},
		Device: DeviceConfig{
			CacheTTL: 24 * time.Hour,
		},
		Transport: TransportConfig{
			LoginPath:           "/login",
			BreakerEnabled:      true,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.5,
			BreakerOpenTimeout:  30 * time.Second,
		},
		Session: SessionConfig{
			TokenLeeway:    5 * time.Second,
			HydrateTimeout: 10 * time.Second,
		},
		OTP: OTPConfig{
			ResendInterval: 30 * time.Second,
			ResendBurst:    1,
		},
		QR: QRConfig{
			PollInterval: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig overlays AUTHCLIENT_* environment variables on DefaultConfig.
// Unset variables keep their defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API BaseURL %q must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("Storage RedisAddr is required for the redis backend")
		}
		if c.Storage.RedisDB < 0 {
			return errors.New("Storage RedisDB must be >= 0")
		}
	case StorageFile:
		if c.Storage.FilePath == "" {
			return errors.New("Storage FilePath is required for the file backend")
		}
	default:
		return fmt.Errorf("unsupported Storage Backend %q", c.Storage.Backend)
	}
	if c.Storage.AgeIdentity != "" && c.Storage.Backend != StorageFile {
		return errors.New("Storage AgeIdentity only applies to the file backend")
	}

	if c.Device.CacheTTL <= 0 {
		return errors.New("Device CacheTTL must be > 0")
	}

	if !strings.HasPrefix(c.Transport.LoginPath, "/") {
		return errors.New("Transport LoginPath must start with /")
	}
	if c.Transport.BreakerEnabled {
		if c.Transport.BreakerFailureRatio <= 0 || c.Transport.BreakerFailureRatio > 1 {
			return errors.New("Transport BreakerFailureRatio must be in (0, 1]")
		}
		if c.Transport.BreakerOpenTimeout <= 0 {
			return errors.New("Transport BreakerOpenTimeout must be > 0")
		}
	}

	if c.Session.TokenLeeway < 0 {
		return errors.New("Session TokenLeeway must be >= 0")
	}
	if c.Session.HydrateTimeout <= 0 {
		return errors.New("Session HydrateTimeout must be > 0")
	}

	if c.OTP.ResendInterval < 0 {
		return errors.New("OTP ResendInterval must be >= 0")
	}
	if c.OTP.ResendInterval > 0 && c.OTP.ResendBurst <= 0 {
		return errors.New("OTP ResendBurst must be > 0 when ResendInterval is set")
	}

	if c.QR.PollInterval <= 0 {
		return errors.New("QR PollInterval must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported Log Level %q", c.Log.Level)
	}
	return nil
}
