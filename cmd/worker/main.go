// Package main provides the entrypoint for the WebRX refresh worker.
//
// The worker refreshes the station status on a timer and, when a Pub/Sub
// subscription is configured, on job messages. It persists every refresh
// to the configured store and exposes ops endpoints for the platform's
// health checks.
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

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/api/handler"
	"github.com/webrx-map/webrx/internal/api/middleware"
	"github.com/webrx-map/webrx/internal/app"
	"github.com/webrx-map/webrx/internal/config"
	"github.com/webrx-map/webrx/internal/telemetry"
	"github.com/webrx-map/webrx/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "webrx-worker"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := app.NewLogger(os.Stdout, cfg.Log, serviceName, Version)
	log.Info().Str("build_time", BuildTime).Msg("starting WebRX worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+cfg.App.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("failed to listen")
	}

	if err := run(ctx, cfg, log, ln); err != nil {
		log.Fatal().Err(err).Msg("worker exited")
	}
}

// run refreshes station status and serves the health endpoints on ln until
// ctx is cancelled.
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

	stationMetrics, err := telemetry.NewStationMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("initializing station metrics: %w", err)
	}

	stations, err := app.NewStationStack(ctx, cfg, log, stationMetrics)
	if err != nil {
		return fmt.Errorf("initializing station status: %w", err)
	}
	defer stations.Close()

	if err := stations.Service.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted station status")
	}

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Refresher:  stations.Service,
		Interval:   cfg.Stations.RefreshInterval,
		RunOnStart: true,
		Logger:     log,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		refreshJob.Run(ctx)
	}()

	runErr := make(chan error, 2)

	if cfg.PubSub.Subscription != "" {
		processor := worker.NewJobProcessor(worker.JobProcessorConfig{
			RefreshJob: refreshJob,
			Source:     stations.Source,
			Checker:    stations.Aggregator,
			Logger:     log,
		})

		subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Processor:        processor,
			Logger:           log,
		})
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("initializing pubsub handler: %w", err)
		}
		defer func() {
			if err := subscriber.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				runErr <- fmt.Errorf("pubsub handler: %w", err)
			}
		}()
	} else {
		log.Info().Msg("no pubsub subscription configured, running on the timer only")
	}

	ops := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Status:    stations.Service,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Get("/health", ops.HealthCheck)
	r.Route("/v1/ops", func(r chi.Router) {
		r.Get("/health", ops.HealthCheck)
		r.Get("/ready", ops.ReadinessCheck)
		r.Get("/status", ops.SystemStatus)
	})

	server := &http.Server{
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("health server listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("health server: %w", err)
		}
	}()

	var exitErr error
	select {
	case <-ctx.Done():
	case exitErr = <-runErr:
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	wg.Wait()

	stats := refreshJob.Stats()
	log.Info().
		Int64("refreshes", stats.TotalRefreshes).
		Int64("failed", stats.FailedRefreshes).
		Dur("avg_duration", stats.AverageDuration()).
		Msg("worker stopped")

	return exitErr
}
