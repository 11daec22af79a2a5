package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate"
	"github.com/ohgun/credgate/login"
	"github.com/ohgun/credgate/provider/naver"
	"github.com/ohgun/credgate/provider/oidc"
	"github.com/ohgun/credgate/userstore"
	"github.com/redis/go-redis/v9"
)

// users is what the daemon needs from a user backend.
type users interface {
	login.UserStore
	credgate.OwnerDirectory
}

type runtime struct {
	redis   redis.UniversalClient
	users   users
	engine  *credgate.Engine
	closers []func() error
}

func (r *runtime) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// openRuntime connects Redis and the user backend and builds the engine.
func openRuntime(ctx context.Context, cfg daemonConfig, logger *log.Logger) (*runtime, error) {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	rt.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:                 []string{cfg.Redis.Addr},
		Password:              cfg.Redis.Password,
		DB:                    cfg.Redis.DB,
		ContextTimeoutEnabled: true,
	})
	rt.closers = append(rt.closers, rt.redis.Close)

	if cfg.DatabaseURL == "" {
		logger.Warn("CREDGATE_DATABASE_URL not set, using in-memory user store")
		rt.users = userstore.NewMemory()
	} else {
		db, err := userstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		pg := userstore.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		rt.users = pg
	}

	b := credgate.New().
		WithConfig(engineCfg).
		WithRedis(rt.redis).
		WithOwnerDirectory(rt.users).
		WithLogger(logger)
	if engineCfg.Audit.Enabled {
		b = b.WithAuditSink(credgate.NewLoggerSink(logger.WithPrefix("audit")))
	}
	engine, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

// providers builds every provider whose credentials are configured.
func providers(ctx context.Context, cfg daemonConfig) ([]login.Provider, error) {
	var out []login.Provider
	if cfg.naverEnabled() {
		p, err := naver.New(naver.Config{
			ClientID:     cfg.Naver.ClientID,
			ClientSecret: cfg.Naver.ClientSecret,
			RedirectURL:  cfg.Naver.RedirectURL,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if cfg.oidcEnabled() {
		p, err := oidc.New(ctx, oidc.Config{
			Name:         cfg.OIDC.Name,
			IssuerURL:    cfg.OIDC.IssuerURL,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scopes:       cfg.OIDC.Scopes,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
