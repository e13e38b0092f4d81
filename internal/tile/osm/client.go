// Package osm fetches tiles from an OpenStreetMap tile server.
package osm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/provider/resilience"
	"github.com/webrx-map/webrx/internal/tile"
)

const (
	// ProviderName identifies the tile upstream in the registry and metrics.
	ProviderName = "openstreetmap"

	// DefaultURLPattern is the public OSM tile server; {s} is the subdomain.
	DefaultURLPattern = "https://{s}.tile.openstreetmap.org"

	// DefaultUserAgent satisfies the OSM tile usage policy.
	DefaultUserAgent = "WebRX Amateur Radio Map/1.0"

	// DefaultTimeout bounds a single tile request.
	DefaultTimeout = 10 * time.Second

	maxTileSize = 4 << 20 // 4MB
)

// UpstreamObserver records upstream request outcomes (optional).
type UpstreamObserver interface {
	ObserveUpstream(ctx context.Context, provider string, statusCode int, duration time.Duration, err error)
}

// ClientConfig holds configuration for the OSM tile client.
type ClientConfig struct {
	// URLPattern is the tile server base URL. A "{s}" placeholder is
	// replaced by the tile's subdomain.
	// Default: https://{s}.tile.openstreetmap.org
	URLPattern string

	// UserAgent is sent with every request.
	// Default: WebRX Amateur Radio Map/1.0
	UserAgent string

	// Timeout bounds one request.
	// Default: 10 seconds
	Timeout time.Duration

	// Registry tracks the upstream's circuit breaker (optional).
	Registry *resilience.Registry

	Observer UpstreamObserver
	Logger   zerolog.Logger
}

// Client fetches tiles through a circuit-broken HTTP client without retries.
type Client struct {
	httpClient *resilience.Client
	urlPattern string
	observer   UpstreamObserver
	logger     zerolog.Logger
}

// NewClient creates a new OSM tile client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.URLPattern == "" {
		cfg.URLPattern = DefaultURLPattern
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	rc := resilience.DefaultClientConfig(ProviderName)
	rc.Timeout = cfg.Timeout
	rc.UserAgent = cfg.UserAgent
	rc.Registry = cfg.Registry
	rc.Logger = cfg.Logger

	return &Client{
		httpClient: resilience.NewClient(rc),
		urlPattern: strings.TrimRight(cfg.URLPattern, "/"),
		observer:   cfg.Observer,
		logger:     cfg.Logger,
	}
}

// URL returns the upstream URL for key.
func (c *Client) URL(key tile.Key) string {
	base := strings.ReplaceAll(c.urlPattern, "{s}", key.Subdomain)
	return fmt.Sprintf("%s/%d/%d/%d.png", base, key.Z, key.X, key.Y)
}

// Fetch downloads the tile image for key. A non-2xx answer returns a
// *tile.UpstreamError.
func (c *Client) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	start := time.Now()
	data, status, err := c.fetch(ctx, key)
	if c.observer != nil {
		c.observer.ObserveUpstream(ctx, ProviderName, status, time.Since(start), err)
	}
	return data, err
}

func (c *Client) fetch(ctx context.Context, key tile.Key) ([]byte, int, error) {
	resp, err := c.httpClient.Get(ctx, c.URL(key))
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn().Str("tile", key.String()).Msg("tile upstream circuit open")
		}
		return nil, 0, fmt.Errorf("requesting tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxTileSize))
		return nil, resp.StatusCode, &tile.UpstreamError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading tile: %w", err)
	}
	return data, resp.StatusCode, nil
}

// Ensure Client implements tile.Fetcher.
var _ tile.Fetcher = (*Client)(nil)
