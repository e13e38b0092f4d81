package osm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/provider/resilience"
	"github.com/webrx-map/webrx/internal/tile"
	"github.com/webrx-map/webrx/internal/tile/osm"
)

type upstreamRecorder struct {
	calls  atomic.Int32
	status atomic.Int32
}

func (r *upstreamRecorder) ObserveUpstream(_ context.Context, _ string, status int, _ time.Duration, _ error) {
	r.calls.Add(1)
	r.status.Store(int32(status))
}

func TestClient_URL(t *testing.T) {
	client := osm.NewClient(osm.ClientConfig{Logger: zerolog.Nop()})

	assert.Equal(t, "https://b.tile.openstreetmap.org/5/16/10.png",
		client.URL(tile.Key{Subdomain: "b", Z: 5, X: 16, Y: 10}))
}

func TestClient_Fetch(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/5/16/10.png", r.URL.Path)
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG"))
	}))
	defer server.Close()

	recorder := &upstreamRecorder{}
	registry := resilience.NewRegistry()
	client := osm.NewClient(osm.ClientConfig{
		URLPattern: server.URL,
		Registry:   registry,
		Observer:   recorder,
		Logger:     zerolog.Nop(),
	})

	data, err := client.Fetch(context.Background(), tile.Key{Subdomain: "a", Z: 5, X: 16, Y: 10})
	require.NoError(t, err)

	assert.Equal(t, []byte("\x89PNG"), data)
	assert.Equal(t, osm.DefaultUserAgent, userAgent.Load())
	assert.Equal(t, int32(1), recorder.calls.Load())
	assert.Equal(t, int32(http.StatusOK), recorder.status.Load())
	assert.NotNil(t, registry.GetHealth(osm.ProviderName))
}

func TestClient_FetchNonSuccess(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusServiceUnavailable} {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.WriteHeader(code)
		}))

		client := osm.NewClient(osm.ClientConfig{URLPattern: server.URL, Logger: zerolog.Nop()})
		_, err := client.Fetch(context.Background(), tile.Key{Subdomain: "a", Z: 1, X: 0, Y: 0})
		server.Close()

		require.ErrorIs(t, err, tile.ErrTileNotFound, "status %d", code)
		var upstream *tile.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, code, upstream.StatusCode)
		assert.Equal(t, int32(1), attempts.Load(), "no retries for status %d", code)
	}
}

func TestClient_FetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := osm.NewClient(osm.ClientConfig{URLPattern: url, Timeout: time.Second, Logger: zerolog.Nop()})
	_, err := client.Fetch(context.Background(), tile.Key{Subdomain: "a", Z: 0, X: 0, Y: 0})

	require.Error(t, err)
	assert.NotErrorIs(t, err, tile.ErrTileNotFound)
}
