package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	authclient "github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/internal/tracing"
)

// fileConfig is the optional YAML configuration. Zero values leave the
// environment and defaults alone.
type fileConfig struct {
	BaseURL string `yaml:"base_url"`
	Storage struct {
		Backend     string `yaml:"backend"`
		RedisAddr   string `yaml:"redis_addr"`
		RedisPrefix string `yaml:"redis_prefix"`
		FilePath    string `yaml:"file_path"`
		AgeIdentity string `yaml:"age_identity"`
	} `yaml:"storage"`
	Timeout  time.Duration `yaml:"timeout"`
	LogLevel string        `yaml:"log_level"`
	Audit    bool          `yaml:"audit"`
	Tracing  struct {
		Enabled    bool    `yaml:"enabled"`
		Endpoint   string  `yaml:"endpoint"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type options struct {
	configPath  string
	email       string
	password    string
	qr          bool
	demo        bool
	logout      bool
	fetchOrders bool
	metricsAddr string

	client  authclient.Config
	tracing tracing.Config
}

func readFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) apply(o *options) {
	cfg := &o.client
	if fc.BaseURL != "" {
		cfg.API.BaseURL = fc.BaseURL
	}
	if fc.Timeout > 0 {
		cfg.API.Timeout = fc.Timeout
	}
	if fc.Storage.Backend != "" {
		cfg.Storage.Backend = fc.Storage.Backend
	}
	if fc.Storage.RedisAddr != "" {
		cfg.Storage.RedisAddr = fc.Storage.RedisAddr
	}
	if fc.Storage.RedisPrefix != "" {
		cfg.Storage.RedisPrefix = fc.Storage.RedisPrefix
	}
	if fc.Storage.FilePath != "" {
		cfg.Storage.FilePath = fc.Storage.FilePath
	}
	if fc.Storage.AgeIdentity != "" {
		cfg.Storage.AgeIdentity = fc.Storage.AgeIdentity
	}
	if fc.LogLevel != "" {
		cfg.Log.Level = fc.LogLevel
	}
	if fc.Audit {
		cfg.Audit.Enabled = true
	}
	if fc.Tracing.Enabled {
		o.tracing.Enabled = true
	}
	if fc.Tracing.Endpoint != "" {
		o.tracing.OTLPEndpoint = fc.Tracing.Endpoint
	}
	if fc.Tracing.SampleRate > 0 {
		o.tracing.SampleRate = fc.Tracing.SampleRate
	}
	if fc.MetricsAddr != "" {
		o.metricsAddr = fc.MetricsAddr
	}
}

// parseOptions layers defaults, AUTHCLIENT_* variables, the YAML file and
// explicitly set flags, in that order.
func parseOptions(args []string) (*options, error) {
	cfg, err := authclient.LoadConfig()
	if err != nil {
		return nil, err
	}
	o := &options{
		client:      cfg,
		tracing:     tracing.DefaultConfig("storefront-login"),
		fetchOrders: true,
	}

	fs := pflag.NewFlagSet("storefront-login", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.StringVarP(&o.email, "email", "e", "", "account email")
	fs.StringVar(&o.password, "password", "", "account password; prompted when empty")
	fs.BoolVar(&o.qr, "qr", false, "sign in by QR confirmation instead of a password")
	fs.BoolVar(&o.demo, "demo", false, "run against an in-process mock backend")
	fs.BoolVar(&o.logout, "logout", false, "sign out once signed in")
	fs.BoolVar(&o.fetchOrders, "orders", o.fetchOrders, "fetch /orders through the authenticated client")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	baseURL := fs.String("base-url", "", "storefront API root")
	backend := fs.String("storage", "", "token storage: memory, redis or file")
	redisAddr := fs.String("redis-addr", "", "redis address for --storage=redis")
	filePath := fs.String("file", "", "token file for --storage=file")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	audit := fs.Bool("audit", false, "write audit events as JSON lines to stderr")
	trace := fs.Bool("trace", false, "export spans over OTLP/HTTP")
	otlp := fs.String("otlp-endpoint", "", "OTLP/HTTP collector host:port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.configPath != "" {
		fc, err := readFileConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		fc.apply(o)
	}

	if fs.Changed("base-url") {
		o.client.API.BaseURL = *baseURL
	}
	if fs.Changed("storage") {
		o.client.Storage.Backend = *backend
	}
	if fs.Changed("redis-addr") {
		o.client.Storage.RedisAddr = *redisAddr
	}
	if fs.Changed("file") {
		o.client.Storage.FilePath = *filePath
	}
	if fs.Changed("log-level") {
		o.client.Log.Level = *logLevel
	}
	if fs.Changed("audit") {
		o.client.Audit.Enabled = *audit
	}
	if fs.Changed("trace") {
		o.tracing.Enabled = *trace
	}
	if fs.Changed("otlp-endpoint") {
		o.tracing.OTLPEndpoint = *otlp
	}

	if o.email == "" && !o.qr {
		return nil, fmt.Errorf("--email is required unless --qr is set")
	}
	if o.client.API.BaseURL == "" && !o.demo {
		return nil, fmt.Errorf("--base-url or AUTHCLIENT_API_BASE_URL is required unless --demo is set")
	}
	return o, nil
}
