package station_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/station"
)

// delayChecker answers after a per-station delay.
type delayChecker struct {
	mu     sync.Mutex
	delays map[station.ID]time.Duration
	calls  []station.ID
}

func (c *delayChecker) CheckWithRetry(ctx context.Context, st station.Station) station.Result {
	c.mu.Lock()
	c.calls = append(c.calls, st.ID)
	delay := c.delays[st.ID]
	c.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return station.Unreachable(st.ID)
	}

	ping := delay.Milliseconds()
	return station.Result{ID: st.ID, Status: station.StatusOnline, Ping: &ping, Frequencies: []float64{}}
}

type failingSource struct{}

func (failingSource) Stations(context.Context) ([]station.Station, error) {
	return nil, station.ErrConfigLoad
}

func stationsN(ids ...station.ID) station.StaticSource {
	out := make(station.StaticSource, len(ids))
	for i, id := range ids {
		out[i] = station.Station{ID: id, URL: "http://sdr-" + string(id) + ".example.org"}
	}
	return out
}

func TestAggregator_PreservesOrder(t *testing.T) {
	checker := &delayChecker{delays: map[station.ID]time.Duration{
		"a": 60 * time.Millisecond,
		"b": 0,
		"c": 30 * time.Millisecond,
	}}
	agg := station.NewAggregator(station.AggregatorConfig{
		Source:  stationsN("a", "b", "c"),
		Checker: checker,
		Logger:  zerolog.Nop(),
	})

	result, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Results, 3)
	assert.Equal(t, station.ID("a"), result.Results[0].ID)
	assert.Equal(t, station.ID("b"), result.Results[1].ID)
	assert.Equal(t, station.ID("c"), result.Results[2].ID)
}

func TestAggregator_ChecksInParallel(t *testing.T) {
	delays := map[station.ID]time.Duration{}
	ids := []station.ID{"1", "2", "3", "4", "5"}
	for _, id := range ids {
		delays[id] = 100 * time.Millisecond
	}
	agg := station.NewAggregator(station.AggregatorConfig{
		Source:  stationsN(ids...),
		Checker: &delayChecker{delays: delays},
		Logger:  zerolog.Nop(),
	})

	start := time.Now()
	result, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Results, 5)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestAggregator_MaxConcurrency(t *testing.T) {
	delays := map[station.ID]time.Duration{"1": 20 * time.Millisecond, "2": 20 * time.Millisecond, "3": 20 * time.Millisecond}
	checker := &delayChecker{delays: delays}
	agg := station.NewAggregator(station.AggregatorConfig{
		Source:         stationsN("1", "2", "3"),
		Checker:        checker,
		Logger:         zerolog.Nop(),
		MaxConcurrency: 1,
	})

	start := time.Now()
	result, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Results, 3)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Len(t, checker.calls, 3)
}

func TestAggregator_LastCheckedIsUTCSeconds(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	now := time.Date(2024, 5, 1, 14, 30, 15, 987654321, loc)

	agg := station.NewAggregator(station.AggregatorConfig{
		Source:  stationsN("1"),
		Checker: &delayChecker{},
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return now },
	})

	result, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 15, 0, time.UTC), result.LastChecked)
}

func TestAggregator_EmptyFleet(t *testing.T) {
	agg := station.NewAggregator(station.AggregatorConfig{
		Source:  station.StaticSource{},
		Checker: &delayChecker{},
		Logger:  zerolog.Nop(),
	})

	result, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestAggregator_SourceFailure(t *testing.T) {
	checker := &delayChecker{}
	agg := station.NewAggregator(station.AggregatorConfig{
		Source:  failingSource{},
		Checker: checker,
		Logger:  zerolog.Nop(),
	})

	result, err := agg.Refresh(context.Background())

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, station.ErrConfigLoad))
	assert.Empty(t, checker.calls)
}

func TestAggregator_Check_RejectsInvalidStation(t *testing.T) {
	agg := station.NewAggregator(station.AggregatorConfig{Checker: &delayChecker{}, Logger: zerolog.Nop()})

	_, err := agg.Check(context.Background(), station.Station{ID: "1", URL: "ftp://example.org"})
	assert.Error(t, err)
}

func TestAggregator_EndToEnd(t *testing.T) {
	online := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sdrs": {"rtl": {"profiles": {"p": {"center_freq": 145500000}}}}}`))
	}))
	defer online.Close()
	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sdrs": {}}`))
	}))
	defer degraded.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	checker := station.NewChecker(
		station.NewClient(station.ClientConfig{Timeout: time.Second}),
		station.RetryConfig{Delay: 10 * time.Millisecond, Logger: zerolog.Nop()},
	)
	agg := station.NewAggregator(station.AggregatorConfig{
		Source: station.StaticSource{
			{ID: "1", URL: online.URL},
			{ID: "2", URL: degraded.URL},
			{ID: "3", URL: broken.URL},
		},
		Checker: checker,
		Logger:  zerolog.Nop(),
	})

	result, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Results, 3)

	assert.Equal(t, station.StatusOnline, result.Results[0].Status)
	assert.Equal(t, []float64{145.5}, result.Results[0].Frequencies)
	assert.Equal(t, station.StatusDegraded, result.Results[1].Status)
	assert.Equal(t, station.Unreachable("3"), result.Results[2])
	assert.Equal(t, station.Summary{Online: 1, Degraded: 1, Offline: 1}, result.Summarize())
}
