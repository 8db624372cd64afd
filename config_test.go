package authclient

import (
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://shop.example.com/api"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with base url", mutate: func(*Config) {}, wantValid: true},
		{
			name:      "missing base url",
			mutate:    func(c *Config) { c.API.BaseURL = "" },
			wantValid: false,
		},
		{
			name:      "relative base url",
			mutate:    func(c *Config) { c.API.BaseURL = "/api" },
			wantValid: false,
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageRedis
			},
			wantValid: false,
		},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageRedis
				c.Storage.RedisAddr = "localhost:6379"
			},
			wantValid: true,
		},
		{
			name: "file without path",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageFile
			},
			wantValid: false,
		},
		{
			name: "age identity on memory backend",
			mutate: func(c *Config) {
				c.Storage.AgeIdentity = "AGE-SECRET-KEY-1"
			},
			wantValid: false,
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Storage.Backend = "sqlite" },
			wantValid: false,
		},
		{
			name:      "login path without slash",
			mutate:    func(c *Config) { c.Transport.LoginPath = "login" },
			wantValid: false,
		},
		{
			name:      "breaker ratio out of range",
			mutate:    func(c *Config) { c.Transport.BreakerFailureRatio = 1.5 },
			wantValid: false,
		},
		{
			name: "breaker ratio ignored when disabled",
			mutate: func(c *Config) {
				c.Transport.BreakerEnabled = false
				c.Transport.BreakerFailureRatio = 0
			},
			wantValid: true,
		},
		{
			name:      "zero hydrate timeout",
			mutate:    func(c *Config) { c.Session.HydrateTimeout = 0 },
			wantValid: false,
		},
		{
			name: "resend interval without burst",
			mutate: func(c *Config) {
				c.OTP.ResendInterval = time.Minute
				c.OTP.ResendBurst = 0
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Log.Level = "verbose" },
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHCLIENT_API_BASE_URL", "https://shop.example.com/api")
	t.Setenv("AUTHCLIENT_STORAGE_BACKEND", "redis")
	t.Setenv("AUTHCLIENT_STORAGE_REDIS_ADDR", "cache:6379")
	t.Setenv("AUTHCLIENT_STORAGE_REDIS_DB", "2")
	t.Setenv("AUTHCLIENT_TRANSPORT_BREAKER_ENABLED", "false")
	t.Setenv("AUTHCLIENT_OTP_RESEND_INTERVAL", "45s")
	t.Setenv("AUTHCLIENT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.BaseURL != "https://shop.example.com/api" {
		t.Fatalf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Storage.Backend != StorageRedis || cfg.Storage.RedisAddr != "cache:6379" || cfg.Storage.RedisDB != 2 {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Transport.BreakerEnabled {
		t.Fatalf("breaker still enabled")
	}
	if cfg.OTP.ResendInterval != 45*time.Second {
		t.Fatalf("ResendInterval = %v", cfg.OTP.ResendInterval)
	}
	// unset variables keep defaults
	if cfg.Storage.RedisPrefix != "authclient:" || cfg.Session.HydrateTimeout != 10*time.Second {
		t.Fatalf("defaults lost: %+v %+v", cfg.Storage, cfg.Session)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigRejectsBadValue(t *testing.T) {
	t.Setenv("AUTHCLIENT_API_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}
