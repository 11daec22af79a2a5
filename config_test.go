package credgate

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with keys",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt signing invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "hs256 short secret",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "hs256 valid secret",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
				c.JWT.PublicKey = nil
			},
			wantValid: true,
		},
		{
			name: "ed25519 without public key",
			mutate: func(c *Config) {
				c.JWT.PublicKey = nil
			},
			wantValid: false,
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = time.Minute
			},
			wantValid: false,
		},
		{
			name: "zero store timeout",
			mutate: func(c *Config) {
				c.Store.OperationTimeout = 0
			},
			wantValid: false,
		},
		{
			name: "throttle without attempts",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = true
				c.Security.MaxRefreshAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "throttle without window",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = true
				c.Security.RefreshWindow = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled zero buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "blank default role",
			mutate: func(c *Config) {
				c.DefaultRole = "  "
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigLifetimes(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.JWT.AccessTTL != 24*time.Hour {
		t.Fatalf("unexpected access TTL %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected refresh TTL %v", cfg.JWT.RefreshTTL)
	}
	if cfg.Store.OperationTimeout != 2*time.Second {
		t.Fatalf("unexpected store timeout %v", cfg.Store.OperationTimeout)
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWT.VerifyKeys = map[string][]byte{"k1": {1, 2, 3}}

	out := cloneConfig(cfg)
	out.JWT.PrivateKey[0] ^= 0xff
	out.JWT.VerifyKeys["k1"][0] = 9

	if cfg.JWT.PrivateKey[0] == out.JWT.PrivateKey[0] {
		t.Fatal("private key shares backing array")
	}
	if cfg.JWT.VerifyKeys["k1"][0] != 1 {
		t.Fatal("verify keys share backing arrays")
	}
}
