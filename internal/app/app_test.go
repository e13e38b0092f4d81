package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/app"
	"github.com/webrx-map/webrx/internal/config"
	"github.com/webrx-map/webrx/internal/provider/resilience"
	"github.com/webrx-map/webrx/internal/station"
	"github.com/webrx-map/webrx/internal/tile"
	"github.com/webrx-map/webrx/internal/tile/osm"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := app.NewLogger(&buf, config.LogConfig{Level: "warn"}, "webrx-api", "1.0.0")

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "webrx-api", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, closeStore, err := app.NewStore(ctx, config.StoreConfig{Driver: config.StoreMemory}, zerolog.Nop())
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &station.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "data.json")
	store, closeStore, err = app.NewStore(ctx, config.StoreConfig{Driver: config.StoreFile, Path: path}, zerolog.Nop())
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &station.FileStore{}, store)
	assert.Equal(t, path, store.(*station.FileStore).Path())

	_, closeStore, err = app.NewStore(ctx, config.StoreConfig{Driver: "redis"}, zerolog.Nop())
	assert.Error(t, err)
	assert.NotNil(t, closeStore)
}

func TestNewStationStack_RefreshesFromFile(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sdrs": {"rtl0": {"profiles": {"2m": {"center_freq": 145500000}}}}}`))
	}))
	defer receiver.Close()

	stationsFile := filepath.Join(t.TempDir(), "locations.json")
	require.NoError(t, os.WriteFile(stationsFile, []byte(fmt.Sprintf(`[{"id": 1, "sdrlink": %q}]`, receiver.URL)), 0o600))

	cfg := &config.Config{
		Stations: config.StationsConfig{
			File:        stationsFile,
			TTL:         time.Minute,
			Timeout:     time.Second,
			MaxAttempts: 1,
			RetryDelay:  time.Millisecond,
		},
		Store: config.StoreConfig{Driver: config.StoreMemory},
	}

	stack, err := app.NewStationStack(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer stack.Close()

	agg, err := stack.Service.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.Len(t, agg.Results, 1)
	assert.Equal(t, station.StatusOnline, agg.Results[0].Status)
	assert.Equal(t, []float64{145.5}, agg.Results[0].Frequencies)

	persisted, err := stack.Store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, persisted.Results, 1)
}

func TestNewTileService_RegistersProvider(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/1/3.png", r.URL.Path)
		assert.Equal(t, "webrx-test/1.0", r.UserAgent())
		_, _ = w.Write([]byte("png"))
	}))
	defer upstream.Close()

	registry := resilience.NewRegistry()
	tiles := app.NewTileService(config.TilesConfig{
		URLPattern: upstream.URL,
		TTL:        time.Hour,
		MaxEntries: 10,
		Timeout:    time.Second,
		UserAgent:  "webrx-test/1.0",
	}, registry, nil, nil, zerolog.Nop())

	data, err := tiles.GetTile(context.Background(), tile.Key{Subdomain: "a", Z: 2, X: 1, Y: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, 1, tiles.Len())

	assert.NotNil(t, registry.GetHealth(osm.ProviderName))
}
