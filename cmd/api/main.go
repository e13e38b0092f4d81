// Package main provides the entrypoint for the WebRX API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/api"
	"github.com/webrx-map/webrx/internal/api/middleware"
	"github.com/webrx-map/webrx/internal/app"
	"github.com/webrx-map/webrx/internal/config"
	"github.com/webrx-map/webrx/internal/provider/resilience"
	"github.com/webrx-map/webrx/internal/telemetry"
	"github.com/webrx-map/webrx/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "webrx-api"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := app.NewLogger(os.Stdout, cfg.Log, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("config_file", cfg.File).
		Msg("starting WebRX API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+cfg.App.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("failed to listen")
	}

	if err := run(ctx, cfg, log, ln); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

// run serves the API on ln until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("initializing HTTP metrics: %w", err)
	}
	stationMetrics, err := telemetry.NewStationMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("initializing station metrics: %w", err)
	}
	tileMetrics, err := telemetry.NewTileMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("initializing tile metrics: %w", err)
	}

	stations, err := app.NewStationStack(ctx, cfg, log, stationMetrics)
	if err != nil {
		return fmt.Errorf("initializing station status: %w", err)
	}
	defer stations.Close()

	if err := stations.Service.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted station status")
	}

	registry := resilience.NewRegistry()
	tiles := app.NewTileService(cfg.Tiles, registry, tileMetrics, tileMetrics, log)

	var wg sync.WaitGroup
	if cfg.Stations.BackgroundRefresh {
		refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
			Refresher:  stations.Service,
			Interval:   cfg.Stations.RefreshInterval,
			RunOnStart: true,
			Logger:     log,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			refreshJob.Run(ctx)
		}()
	} else {
		log.Info().Msg("background refresh disabled, refreshing on request only")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.App.RequireTLS,
		Stations:    stations.Service,
		Store:       stations.Store,
		Tiles:       tiles,
		Providers:   registry,
	})

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("server listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("serving: %w", err)
	}

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	wg.Wait()

	return runErr
}
