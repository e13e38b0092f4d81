// Package app assembles the components shared by the WebRX binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/config"
	"github.com/webrx-map/webrx/internal/database"
	"github.com/webrx-map/webrx/internal/provider/resilience"
	"github.com/webrx-map/webrx/internal/station"
	"github.com/webrx-map/webrx/internal/tile"
	"github.com/webrx-map/webrx/internal/tile/osm"
)

// NewLogger returns the JSON root logger carrying service and version.
func NewLogger(w io.Writer, cfg config.LogConfig, service, version string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return zerolog.New(w).
		Level(cfg.ZerologLevel()).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// NewStore opens the snapshot store selected by cfg.Driver. The returned
// close function is never nil.
func NewStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (station.Store, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case config.StoreMemory:
		return station.NewMemoryStore(), noop, nil

	case config.StoreFile:
		log.Info().Str("path", cfg.Path).Msg("using file snapshot store")
		return station.NewFileStore(cfg.Path), noop, nil

	case config.StorePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to database: %w", err)
		}
		store := station.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		log.Info().Str("database", dbConfig.Redacted()).Msg("using postgres snapshot store")
		return store, pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// StationStack is the station polling pipeline, from the station file to
// the cached status.
type StationStack struct {
	Source     *station.FileSource
	Checker    *station.Checker
	Aggregator *station.Aggregator
	Service    *station.Service
	Store      station.Store

	closeStore func()
}

// NewStationStack builds the pipeline from cfg. observer may be nil.
func NewStationStack(ctx context.Context, cfg *config.Config, log zerolog.Logger, observer station.RefreshObserver) (*StationStack, error) {
	store, closeStore, err := NewStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	source := station.NewFileSource(cfg.Stations.File)
	checker := NewChecker(cfg.Stations, log)
	aggregator := station.NewAggregator(station.AggregatorConfig{
		Source:         source,
		Checker:        checker,
		Logger:         log,
		MaxConcurrency: cfg.Stations.MaxConcurrency,
	})

	service := station.NewService(station.ServiceConfig{
		Refresher: aggregator,
		Store:     store,
		Logger:    log,
		CacheTTL:  cfg.Stations.TTL,
		Observer:  observer,
	})

	return &StationStack{
		Source:     source,
		Checker:    checker,
		Aggregator: aggregator,
		Service:    service,
		Store:      store,
		closeStore: closeStore,
	}, nil
}

// Close releases the store.
func (s *StationStack) Close() {
	s.closeStore()
}

// NewChecker builds the retrying station checker from cfg.
func NewChecker(cfg config.StationsConfig, log zerolog.Logger) *station.Checker {
	client := station.NewClient(station.ClientConfig{Timeout: cfg.Timeout})
	return station.NewChecker(client, station.RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.RetryDelay,
		Logger:      log,
	})
}

// NewTileService builds the tile cache in front of the OpenStreetMap client.
// Both observers may be nil.
func NewTileService(cfg config.TilesConfig, registry *resilience.Registry, lookups tile.Observer, upstream osm.UpstreamObserver, log zerolog.Logger) *tile.Service {
	client := osm.NewClient(osm.ClientConfig{
		URLPattern: cfg.URLPattern,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
		Registry:   registry,
		Observer:   upstream,
		Logger:     log,
	})

	return tile.NewService(tile.ServiceConfig{
		Fetcher:    client,
		Logger:     log,
		TTL:        cfg.TTL,
		MaxEntries: cfg.MaxEntries,
		Observer:   lookups,
	})
}

// ShutdownTimeout bounds graceful shutdown of servers and exporters.
const ShutdownTimeout = 30 * time.Second
