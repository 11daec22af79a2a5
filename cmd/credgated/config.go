package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate"
)

// daemonConfig is the process environment of credgated.
type daemonConfig struct {
	Addr            string        `env:"CREDGATE_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"CREDGATE_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	FrontendURL     string        `env:"CREDGATE_FRONTEND_URL" envDefault:"http://localhost:3000"`
	InsecureCookies bool          `env:"CREDGATE_INSECURE_COOKIES"`
	LogLevel        string        `env:"CREDGATE_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"CREDGATE_LOG_FORMAT" envDefault:"text"`
	DatabaseURL     string        `env:"CREDGATE_DATABASE_URL"`

	Redis  redisConfig  `envPrefix:"CREDGATE_REDIS_"`
	Tokens tokenConfig  `envPrefix:"CREDGATE_"`
	Naver  naverConfig  `envPrefix:"NAVER_"`
	OIDC   oidcConfig   `envPrefix:"OIDC_"`
	Policy policyConfig `envPrefix:"CREDGATE_"`
}

type redisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type tokenConfig struct {
	SigningMethod string        `env:"SIGNING_METHOD" envDefault:"ed25519"`
	PrivateKey    string        `env:"PRIVATE_KEY"`
	PublicKey     string        `env:"PUBLIC_KEY"`
	HMACSecret    string        `env:"HMAC_SECRET"`
	KeyID         string        `env:"KEY_ID"`
	Issuer        string        `env:"ISSUER" envDefault:"credgate"`
	Audience      string        `env:"AUDIENCE"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"24h"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"720h"`
	Leeway        time.Duration `env:"LEEWAY" envDefault:"0s"`
}

type policyConfig struct {
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
	RefreshLimit   bool          `env:"REFRESH_THROTTLE"`
	RefreshMax     int           `env:"REFRESH_MAX" envDefault:"20"`
	RefreshWindow  time.Duration `env:"REFRESH_WINDOW" envDefault:"1m"`
	Audit          bool          `env:"AUDIT"`
	AuditBuffer    int           `env:"AUDIT_BUFFER" envDefault:"1024"`
	Metrics        bool          `env:"METRICS" envDefault:"true"`
	LatencyMetrics bool          `env:"LATENCY_METRICS"`
	DefaultRole    string        `env:"DEFAULT_ROLE" envDefault:"ROLE_USER"`
}

type naverConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

type oidcConfig struct {
	Name         string   `env:"NAME" envDefault:"oidc"`
	IssuerURL    string   `env:"ISSUER"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// loadConfig parses the environment. environ overrides the process
// environment when non-nil.
func loadConfig(environ map[string]string) (daemonConfig, error) {
	var cfg daemonConfig
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return daemonConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the environment onto the engine policy.
func (c daemonConfig) engineConfig() (credgate.Config, error) {
	cfg := credgate.DefaultConfig()
	cfg.JWT.AccessTTL = c.Tokens.AccessTTL
	cfg.JWT.RefreshTTL = c.Tokens.RefreshTTL
	cfg.JWT.SigningMethod = strings.ToLower(c.Tokens.SigningMethod)
	cfg.JWT.Issuer = c.Tokens.Issuer
	cfg.JWT.Audience = c.Tokens.Audience
	cfg.JWT.Leeway = c.Tokens.Leeway
	cfg.JWT.KeyID = c.Tokens.KeyID

	switch cfg.JWT.SigningMethod {
	case "ed25519":
		priv, pub, err := ed25519Keys(c.Tokens.PrivateKey, c.Tokens.PublicKey)
		if err != nil {
			return credgate.Config{}, err
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	case "hs256":
		cfg.JWT.PrivateKey = []byte(c.Tokens.HMACSecret)
	}

	cfg.Store.OperationTimeout = c.Policy.StoreTimeout
	cfg.Security.EnableRefreshThrottle = c.Policy.RefreshLimit
	cfg.Security.MaxRefreshAttempts = c.Policy.RefreshMax
	cfg.Security.RefreshWindow = c.Policy.RefreshWindow
	cfg.Audit.Enabled = c.Policy.Audit
	cfg.Audit.BufferSize = c.Policy.AuditBuffer
	cfg.Metrics.Enabled = c.Policy.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Policy.LatencyMetrics
	cfg.DefaultRole = c.Policy.DefaultRole

	if err := cfg.Validate(); err != nil {
		return credgate.Config{}, fmt.Errorf("invalid credential policy: %w", err)
	}
	return cfg, nil
}

// ed25519Keys decodes base64 keys. The private key may be a 32 byte seed or
// the full 64 byte key; the public key is derived when omitted.
func ed25519Keys(privB64, pubB64 string) ([]byte, []byte, error) {
	if privB64 == "" {
		return nil, nil, errors.New("CREDGATE_PRIVATE_KEY is required for ed25519")
	}
	raw, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, nil, fmt.Errorf("decode CREDGATE_PRIVATE_KEY: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, nil, fmt.Errorf("CREDGATE_PRIVATE_KEY has %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	if pubB64 == "" {
		return priv, priv.Public().(ed25519.PublicKey), nil
	}
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, nil, fmt.Errorf("decode CREDGATE_PUBLIC_KEY: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("CREDGATE_PUBLIC_KEY has %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	return priv, pub, nil
}

func (c daemonConfig) naverEnabled() bool {
	return c.Naver.ClientID != "" && c.Naver.ClientSecret != ""
}

func (c daemonConfig) oidcEnabled() bool {
	return c.OIDC.IssuerURL != "" && c.OIDC.ClientID != ""
}

func newLogger(level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("CREDGATE_LOG_LEVEL: %w", err)
	}
	opts := log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "credgated",
	}
	switch strings.ToLower(format) {
	case "", "text":
		opts.Formatter = log.TextFormatter
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("CREDGATE_LOG_FORMAT: unknown format %q", format)
	}
	return log.NewWithOptions(stderr, opts), nil
}
