package credgate

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate/internal/audit"
	"github.com/ohgun/credgate/internal/flows"
	"github.com/ohgun/credgate/internal/rate"
	"github.com/ohgun/credgate/jwt"
	"github.com/ohgun/credgate/tokenstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	owners    OwnerDirectory
	auditSink AuditSink
	logger    *log.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the credential store and refresh throttle.
// Standalone and failover clients work. Cluster clients are rejected by
// Build: the store scripts touch keys that hash to different slots.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithOwnerDirectory sets the directory consulted on every refresh.
func (b *Builder) WithOwnerDirectory(dir OwnerDirectory) *Builder {
	b.owners = dir
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the logger for warnings and debug output. Without it the
// Engine logs nothing.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
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

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if _, ok := b.redis.(*redis.ClusterClient); ok {
		return nil, errors.New("redis cluster clients are not supported")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.owners == nil {
		return nil, errors.New("owner directory required")
	}

	// -------- CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORE --------
	store := tokenstore.New(b.redis, cfg.Store.OperationTimeout)

	engine := &Engine{
		config:     cfg,
		store:      store,
		jwtManager: jm,
		owners:     b.owners,
		logger:     b.logger,
	}
	if engine.logger == nil {
		engine.logger = discardLogger()
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		Enabled: cfg.Security.EnableRefreshThrottle,
		Max:     cfg.Security.MaxRefreshAttempts,
		Window:  cfg.Security.RefreshWindow,
		Timeout: cfg.Store.OperationTimeout,
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     engine.logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Codec: jm,
			Store: store,
		},
		Refresh: flows.RefreshDeps{
			Codec:                jm,
			Store:                store,
			RateLimiter:          engine.rateLimiter,
			LookupOwner:          engine.lookupOwner,
			OwnerNotFound:        ErrOwnerNotFound,
			RateLimitUnavailable: rate.ErrBackend,
		},
		Logout: flows.LogoutDeps{
			Codec: jm,
			Store: store,
			Warn: func(msg string, keyvals ...any) {
				engine.logger.Warn(msg, keyvals...)
			},
		},
		RevokeAll: flows.RevokeAllDeps{
			Store: store,
		},
		Verify: flows.VerifyDeps{
			Codec: jm,
		},
	})

	b.built = true

	return engine, nil
}

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
