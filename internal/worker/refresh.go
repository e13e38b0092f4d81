// Package worker runs background station refreshes, on a timer and on
// Pub/Sub job messages.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/station"
)

// DefaultInterval is the period between two scheduled refreshes.
const DefaultInterval = 5 * time.Minute

// StatusRefresher refreshes the fleet status unconditionally.
type StatusRefresher interface {
	ForceRefresh(ctx context.Context) (*station.Aggregate, error)
}

// RefreshJobConfig holds configuration for the refresh job.
type RefreshJobConfig struct {
	Refresher StatusRefresher

	// Interval is the period between refreshes.
	// Default: 5 minutes
	Interval time.Duration

	// RunOnStart triggers one refresh as soon as Run is called.
	RunOnStart bool

	Logger zerolog.Logger
}

// RefreshJob refreshes the fleet status on a fixed period.
type RefreshJob struct {
	refresher  StatusRefresher
	interval   time.Duration
	runOnStart bool
	logger     zerolog.Logger

	mu      sync.RWMutex
	metrics RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	TotalRefreshes      int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
	LastError           string
}

// RefreshResult contains the result of one refresh.
type RefreshResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Stations  int
	Summary   station.Summary
	Err       error
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &RefreshJob{
		refresher:  cfg.Refresher,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
		logger:     cfg.Logger,
	}
}

// Run refreshes on every tick until ctx is cancelled.
func (j *RefreshJob) Run(ctx context.Context) {
	j.logger.Info().Dur("interval", j.interval).Msg("starting station refresh loop")

	if j.runOnStart {
		j.RunOnce(ctx)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("station refresh loop stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single refresh and records its outcome.
func (j *RefreshJob) RunOnce(ctx context.Context) *RefreshResult {
	result := &RefreshResult{StartTime: time.Now()}

	agg, err := j.refresher.ForceRefresh(ctx)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Err = err

	if err != nil {
		j.logger.Error().Err(err).Dur("duration", result.Duration).Msg("scheduled station refresh failed")
	} else {
		result.Stations = len(agg.Results)
		result.Summary = agg.Summarize()
		j.logger.Info().
			Dur("duration", result.Duration).
			Int("stations", result.Stations).
			Int("online", result.Summary.Online).
			Int("degraded", result.Summary.Degraded).
			Int("offline", result.Summary.Offline).
			Msg("scheduled station refresh completed")
	}

	j.updateMetrics(result)
	return result
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
	if result.Err != nil {
		j.metrics.FailedRefreshes++
		j.metrics.LastError = result.Err.Error()
		return
	}
	j.metrics.SuccessfulRefreshes++
	j.metrics.LastError = ""
}

// Stats returns a copy of the current metrics.
func (j *RefreshJob) Stats() RefreshMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metrics
}

// AverageDuration returns the mean refresh duration, or zero.
func (m RefreshMetrics) AverageDuration() time.Duration {
	if m.TotalRefreshes == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.TotalRefreshes)
}
