package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohgun/credgate/httpapi"
	"github.com/ohgun/credgate/login"
	otelexport "github.com/ohgun/credgate/metrics/export/otel"
	promexport "github.com/ohgun/credgate/metrics/export/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Ping(ctx); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}

	provs, err := providers(ctx, cfg)
	if err != nil {
		return err
	}

	var signIn httpapi.SignIn
	if len(provs) == 0 {
		logger.Warn("no identity providers configured, sign-in routes disabled")
	} else {
		orch, err := login.NewOrchestrator(login.Config{
			Providers: provs,
			States:    login.NewRedisStateStore(rt.redis, cfg.Policy.StoreTimeout),
			Users:     rt.users,
			Issuer:    rt.engine,
			Logger:    logger.WithPrefix("login"),
		})
		if err != nil {
			return err
		}
		signIn = orch
		logger.Info("identity providers ready", "providers", orch.Providers())
	}

	reg, err := promexport.NewRegistry(rt.engine)
	if err != nil {
		return err
	}
	otelExp, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/ohgun/credgate"), rt.engine)
	if err != nil {
		return err
	}
	defer otelExp.Close()

	api, err := httpapi.New(httpapi.Config{
		Credentials:     rt.engine,
		SignIn:          signIn,
		FrontendURL:     cfg.FrontendURL,
		InsecureCookies: cfg.InsecureCookies,
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:          logger.WithPrefix("http"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(api.Router(), "credgated"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
