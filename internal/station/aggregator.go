package station

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RetryChecker checks a station, retrying as configured.
type RetryChecker interface {
	CheckWithRetry(ctx context.Context, st Station) Result
}

// AggregatorConfig holds configuration for the fleet aggregator.
type AggregatorConfig struct {
	Source  Source
	Checker RetryChecker
	Logger  zerolog.Logger

	// MaxConcurrency caps the number of stations checked at once.
	// Default: 0 (one goroutine per station)
	MaxConcurrency int

	// Now returns the current time (optional, for tests).
	Now func() time.Time
}

// Aggregator checks every configured station in parallel and assembles the
// fleet status.
type Aggregator struct {
	source         Source
	checker        RetryChecker
	logger         zerolog.Logger
	maxConcurrency int
	now            func() time.Time
}

// NewAggregator creates a new fleet aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		source:         cfg.Source,
		checker:        cfg.Checker,
		logger:         cfg.Logger,
		maxConcurrency: cfg.MaxConcurrency,
		now:            now,
	}
}

// Refresh loads the station list and checks every station. Individual
// station failures end up as offline results; only a failure to load the
// station list fails the refresh.
func (a *Aggregator) Refresh(ctx context.Context) (*Aggregate, error) {
	stations, err := a.source.Stations(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to load stations, refresh aborted")
		return nil, err
	}

	start := a.now()
	results := make([]Result, len(stations))

	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}
	for i, st := range stations {
		g.Go(func() error {
			results[i] = a.checker.CheckWithRetry(ctx, st)
			return nil
		})
	}
	_ = g.Wait() // tasks never fail

	agg := &Aggregate{
		LastChecked: a.now().UTC().Truncate(time.Second),
		Results:     results,
	}

	summary := agg.Summarize()
	a.logger.Info().
		Int("stations", len(stations)).
		Int("online", summary.Online).
		Int("degraded", summary.Degraded).
		Int("offline", summary.Offline).
		Dur("duration", a.now().Sub(start)).
		Msg("station status refreshed")

	return agg, nil
}

// Check runs the retrying check for a single station outside a refresh.
func (a *Aggregator) Check(ctx context.Context, st Station) (Result, error) {
	if err := st.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid station: %w", err)
	}
	return a.checker.CheckWithRetry(ctx, st), nil
}
