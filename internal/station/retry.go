package station

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the number of attempts made per station and refresh.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the fixed pause between two attempts.
	DefaultRetryDelay = 1 * time.Second
)

// Prober performs a single attempt against a station.
type Prober interface {
	Probe(ctx context.Context, st Station) (Result, error)
}

// RetryConfig holds configuration for the retrying checker.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// Delay is the constant wait between a failed attempt and the next one.
	// Default: 1 second
	Delay time.Duration

	Logger zerolog.Logger
}

// Checker wraps a Prober with bounded, constant-delay retries.
type Checker struct {
	prober      Prober
	maxAttempts int
	delay       time.Duration
	logger      zerolog.Logger
}

// NewChecker creates a retrying checker around prober.
func NewChecker(prober Prober, cfg RetryConfig) *Checker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultRetryDelay
	}

	return &Checker{
		prober:      prober,
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		logger:      cfg.Logger,
	}
}

// CheckWithRetry probes the station until it answers or the attempts run out.
// A degraded answer is a valid outcome and ends the retries. When every
// attempt fails the unreachable result is returned.
func (c *Checker) CheckWithRetry(ctx context.Context, st Station) Result {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), uint64(c.maxAttempts-1)), //nolint:gosec // maxAttempts is positive
		ctx,
	)

	var result Result
	attempt := 0

	operation := func() error {
		attempt++
		r, err := c.prober.Probe(ctx, st)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().
			Err(err).
			Str("station", string(st.ID)).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("station check failed, retrying")
	}

	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		c.logger.Debug().
			Err(err).
			Str("station", string(st.ID)).
			Int("attempts", attempt).
			Msg("station unreachable")
		return Unreachable(st.ID)
	}

	return result
}
