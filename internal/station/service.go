package station

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a refreshed fleet status is served without
// another fan-out.
const DefaultCacheTTL = 5 * time.Minute

const refreshKey = "refresh"

// Refresher produces a new fleet status.
type Refresher interface {
	Refresh(ctx context.Context) (*Aggregate, error)
}

// RefreshObserver receives the outcome of every refresh (optional).
type RefreshObserver interface {
	ObserveRefresh(ctx context.Context, agg *Aggregate, duration time.Duration, err error)
}

// ServiceConfig holds configuration for the status service.
type ServiceConfig struct {
	Refresher Refresher

	// Store persists every successful refresh (optional).
	Store Store

	Logger zerolog.Logger

	// CacheTTL is how long a refresh stays fresh (default: 5 minutes).
	CacheTTL time.Duration

	// Observer is notified after each refresh (optional).
	Observer RefreshObserver

	// Now returns the current time (optional, for tests).
	Now func() time.Time
}

// Service holds the latest fleet status and refreshes it when stale.
// Refreshes are single-flight: concurrent callers join the refresh already
// in progress instead of starting another fan-out.
type Service struct {
	refresher Refresher
	store     Store
	logger    zerolog.Logger
	ttl       time.Duration
	observer  RefreshObserver
	now       func() time.Time

	current atomic.Pointer[snapshot]
	group   singleflight.Group

	statsMu sync.RWMutex
	stats   RefreshStats
}

type snapshot struct {
	agg         *Aggregate
	refreshedAt time.Time
}

// RefreshStats describes the most recent refresh attempts.
type RefreshStats struct {
	Refreshes     int64
	Failures      int64
	LastAttemptAt time.Time
	LastSuccessAt time.Time
	LastDuration  time.Duration
	LastError     string
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		refresher: cfg.Refresher,
		store:     cfg.Store,
		logger:    cfg.Logger,
		ttl:       ttl,
		observer:  cfg.Observer,
		now:       now,
	}
}

// Init loads the persisted snapshot, if any, so it can be served before the
// first refresh completes. Its age counts from its own last_checked time.
func (s *Service) Init(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	agg, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			s.logger.Info().Msg("no persisted station status found")
			return nil
		}
		return err
	}

	s.current.Store(&snapshot{agg: agg, refreshedAt: agg.LastChecked})
	s.logger.Info().
		Time("last_checked", agg.LastChecked).
		Int("stations", len(agg.Results)).
		Msg("loaded persisted station status")
	return nil
}

// Get returns the current fleet status, refreshing it first when stale.
// If the refresh fails the error is returned together with the status held
// before the refresh, which is nil when nothing has been computed yet.
func (s *Service) Get(ctx context.Context) (*Aggregate, error) {
	if snap := s.current.Load(); s.fresh(snap) {
		return snap.agg, nil
	}

	agg, err := s.refresh(ctx, false)
	if err != nil {
		return s.Current(), err
	}
	return agg, nil
}

// ForceRefresh refreshes the fleet status regardless of its age. A refresh
// already in progress is joined.
func (s *Service) ForceRefresh(ctx context.Context) (*Aggregate, error) {
	return s.refresh(ctx, true)
}

// Current returns the held status without refreshing, or nil.
func (s *Service) Current() *Aggregate {
	if snap := s.current.Load(); snap != nil {
		return snap.agg
	}
	return nil
}

// IsFresh reports whether the held status is younger than the TTL.
func (s *Service) IsFresh() bool {
	return s.fresh(s.current.Load())
}

// Stats returns a copy of the refresh statistics.
func (s *Service) Stats() RefreshStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

func (s *Service) fresh(snap *snapshot) bool {
	return snap != nil && s.now().Sub(snap.refreshedAt) < s.ttl
}

func (s *Service) refresh(ctx context.Context, force bool) (*Aggregate, error) {
	// The refresh is shared by every caller that joins it, so it must not
	// be cancelled by the one that happened to start it.
	ctx = context.WithoutCancel(ctx)

	v, err, _ := s.group.Do(refreshKey, func() (interface{}, error) {
		if snap := s.current.Load(); !force && s.fresh(snap) {
			return snap.agg, nil
		}
		return s.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Aggregate), nil
}

func (s *Service) doRefresh(ctx context.Context) (*Aggregate, error) {
	start := s.now()
	agg, err := s.refresher.Refresh(ctx)
	duration := s.now().Sub(start)

	s.recordStats(start, duration, err)
	if s.observer != nil {
		s.observer.ObserveRefresh(ctx, agg, duration, err)
	}

	if err != nil {
		s.logger.Error().Err(err).Dur("duration", duration).Msg("station status refresh failed")
		return nil, err
	}

	s.current.Store(&snapshot{agg: agg, refreshedAt: s.now()})

	if s.store != nil {
		if err := s.store.Save(ctx, agg); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist station status")
		}
	}

	return agg, nil
}

func (s *Service) recordStats(start time.Time, duration time.Duration, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.Refreshes++
	s.stats.LastAttemptAt = start
	s.stats.LastDuration = duration
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
		return
	}
	s.stats.LastSuccessAt = start.Add(duration)
	s.stats.LastError = ""
}
