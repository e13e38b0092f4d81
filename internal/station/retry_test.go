package station_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/station"
)

// scriptedProber returns the scripted outcomes in order, repeating the last.
type scriptedProber struct {
	attempts atomic.Int32
	outcomes []probeOutcome
}

type probeOutcome struct {
	result station.Result
	err    error
}

func (p *scriptedProber) Probe(_ context.Context, st station.Station) (station.Result, error) {
	n := int(p.attempts.Add(1)) - 1
	if n >= len(p.outcomes) {
		n = len(p.outcomes) - 1
	}
	out := p.outcomes[n]
	if out.err != nil {
		return station.Unreachable(st.ID), out.err
	}
	out.result.ID = st.ID
	return out.result, nil
}

func pingOf(ms int64) *int64 { return &ms }

func TestChecker_ExhaustsAttempts(t *testing.T) {
	prober := &scriptedProber{outcomes: []probeOutcome{{err: station.ErrUnreachable}}}
	checker := station.NewChecker(prober, station.RetryConfig{
		MaxAttempts: 3,
		Delay:       50 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})

	start := time.Now()
	result := checker.CheckWithRetry(context.Background(), station.Station{ID: "4"})

	assert.Equal(t, int32(3), prober.attempts.Load())
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, station.Unreachable("4"), result)
}

func TestChecker_SucceedsOnSecondAttempt(t *testing.T) {
	prober := &scriptedProber{outcomes: []probeOutcome{
		{err: station.ErrUnreachable},
		{result: station.Result{Status: station.StatusOnline, Ping: pingOf(12), Frequencies: []float64{145.5}}},
	}}
	checker := station.NewChecker(prober, station.RetryConfig{Delay: 10 * time.Millisecond, Logger: zerolog.Nop()})

	result := checker.CheckWithRetry(context.Background(), station.Station{ID: "1"})

	assert.Equal(t, int32(2), prober.attempts.Load())
	assert.Equal(t, station.StatusOnline, result.Status)
	assert.Equal(t, []float64{145.5}, result.Frequencies)
	require.NotNil(t, result.Ping)
	assert.Equal(t, int64(12), *result.Ping)
}

func TestChecker_DegradedIsNotRetried(t *testing.T) {
	prober := &scriptedProber{outcomes: []probeOutcome{
		{result: station.Result{Status: station.StatusDegraded, Ping: pingOf(5), Frequencies: []float64{}}},
	}}
	checker := station.NewChecker(prober, station.RetryConfig{Delay: 10 * time.Millisecond, Logger: zerolog.Nop()})

	result := checker.CheckWithRetry(context.Background(), station.Station{ID: "1"})

	assert.Equal(t, int32(1), prober.attempts.Load())
	assert.Equal(t, station.StatusDegraded, result.Status)
}

func TestChecker_SingleAttempt(t *testing.T) {
	prober := &scriptedProber{outcomes: []probeOutcome{{err: errors.New("boom")}}}
	checker := station.NewChecker(prober, station.RetryConfig{MaxAttempts: 1, Logger: zerolog.Nop()})

	result := checker.CheckWithRetry(context.Background(), station.Station{ID: "1"})

	assert.Equal(t, int32(1), prober.attempts.Load())
	assert.Equal(t, station.StatusOffline, result.Status)
}

func TestChecker_CancelledContextStopsRetrying(t *testing.T) {
	prober := &scriptedProber{outcomes: []probeOutcome{{err: station.ErrUnreachable}}}
	checker := station.NewChecker(prober, station.RetryConfig{Delay: time.Second, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := checker.CheckWithRetry(ctx, station.Station{ID: "1"})

	assert.Equal(t, int32(1), prober.attempts.Load())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, station.StatusOffline, result.Status)
}

func TestChecker_DefaultsAgainstFailingStation(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := station.NewChecker(station.NewClient(station.ClientConfig{}), station.RetryConfig{Logger: zerolog.Nop()})

	start := time.Now()
	result := checker.CheckWithRetry(context.Background(), station.Station{ID: "2", URL: server.URL})

	assert.Equal(t, int32(station.DefaultMaxAttempts), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 2*station.DefaultRetryDelay)
	assert.Equal(t, station.Unreachable("2"), result)
}
