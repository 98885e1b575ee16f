package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hyperdatalab/gateway/config"
	"github.com/hyperdatalab/gateway/internal/circuitbreaker"
	"github.com/hyperdatalab/gateway/internal/forwarder"
	"github.com/hyperdatalab/gateway/internal/healthcheck"
	"github.com/hyperdatalab/gateway/internal/httpserver"
	"github.com/hyperdatalab/gateway/internal/metrics"
	"github.com/hyperdatalab/gateway/internal/upstream"
	"github.com/hyperdatalab/gateway/pkg/logger"
)

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy in front of the tunnel-exposed backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)
			return serve(ctx, cfg, log)
		},
	}
}

// gateway is the wired proxy: everything serve runs, built from one config.
type gateway struct {
	target    *upstream.Upstream
	collector *metrics.Collector
	forwarder *forwarder.Forwarder
	checker   *healthcheck.Checker
	server    *httpserver.Server
}

func buildGateway(cfg *config.Config, log *slog.Logger) (*gateway, error) {
	target, err := upstream.Parse(cfg.Upstream.BaseURL)
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		log.Warn("Backend URL not configured; every proxied request will fail",
			slog.String("env", config.BackendURLEnv))
		target = nil
	case err != nil:
		return nil, err
	}

	g := &gateway{
		target:    target,
		collector: metrics.NewCollector(cfg.Metrics.BufferSize, log),
	}

	opts := []forwarder.Option{forwarder.WithCollector(g.collector)}
	if cfg.CircuitBreaker.Threshold > 0 {
		opts = append(opts, forwarder.WithCircuitBreaker(
			circuitbreaker.New(cfg.CircuitBreaker.Threshold, cfg.CircuitBreakerResetTimeout())))
	}

	g.forwarder = forwarder.New(target, forwarder.Config{
		Prefix:       cfg.Upstream.Prefix,
		ResponseMode: cfg.Proxy.ResponseMode,
	}, log, opts...)

	if target != nil && cfg.HealthCheckInterval() > 0 {
		g.checker = healthcheck.New(target, cfg.HealthCheckInterval(), g.collector, log)
	}

	g.server, err = httpserver.New(cfg.Server.Address, setupRouter(g.forwarder, g.collector, target))
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	return g, nil
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	g, err := buildGateway(cfg, log)
	if err != nil {
		log.Error("Failed to build gateway", slog.Any("err", err))
		return err
	}

	upstreamURL := ""
	if g.target != nil {
		upstreamURL = g.target.String()
	}
	log.Info("Gateway listening",
		slog.String("addr", cfg.Server.Address),
		slog.String("upstream", upstreamURL),
		slog.String("response_mode", cfg.Proxy.ResponseMode))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.collector.Run(ctx)
		return nil
	})

	if g.checker != nil {
		group.Go(func() error {
			return g.checker.Run(ctx)
		})
	}

	group.Go(func() error {
		if err := g.server.Run(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		log.Info("Shutting down gracefully...")
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("Gateway stopped with error", slog.Any("err", err))
		return err
	}

	return nil
}
