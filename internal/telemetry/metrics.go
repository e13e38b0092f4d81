package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/webrx-map/webrx/internal/station"
)

// StationMetrics records fleet refresh outcomes. It implements
// station.RefreshObserver.
type StationMetrics struct {
	refreshDuration metric.Float64Histogram
	refreshTotal    metric.Int64Counter
	stationResults  metric.Int64Counter
	stationPing     metric.Float64Histogram
}

// NewStationMetrics creates the station instruments on meter.
func NewStationMetrics(meter metric.Meter) (*StationMetrics, error) {
	refreshDuration, err := meter.Float64Histogram(
		"webrx.station.refresh.duration",
		metric.WithDescription("Duration of a full fleet refresh in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	refreshTotal, err := meter.Int64Counter(
		"webrx.station.refresh.total",
		metric.WithDescription("Number of fleet refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	stationResults, err := meter.Int64Counter(
		"webrx.station.result.total",
		metric.WithDescription("Station check results by status"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return nil, err
	}

	stationPing, err := meter.Float64Histogram(
		"webrx.station.ping",
		metric.WithDescription("Status endpoint response time in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &StationMetrics{
		refreshDuration: refreshDuration,
		refreshTotal:    refreshTotal,
		stationResults:  stationResults,
		stationPing:     stationPing,
	}, nil
}

// ObserveRefresh implements station.RefreshObserver.
func (m *StationMetrics) ObserveRefresh(ctx context.Context, agg *station.Aggregate, duration time.Duration, err error) {
	outcome := attribute.Bool("error", err != nil)
	m.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(outcome))
	m.refreshTotal.Add(ctx, 1, metric.WithAttributes(outcome))

	if agg == nil {
		return
	}
	for _, r := range agg.Results {
		m.stationResults.Add(ctx, 1, metric.WithAttributes(attribute.String("station.status", r.Status.String())))
		if r.Ping != nil {
			m.stationPing.Record(ctx, float64(*r.Ping))
		}
	}
}

// TileMetrics records tile cache lookups and upstream requests. It
// implements tile.Observer and osm.UpstreamObserver.
type TileMetrics struct {
	cacheLookups    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
}

// NewTileMetrics creates the tile instruments on meter.
func NewTileMetrics(meter metric.Meter) (*TileMetrics, error) {
	cacheLookups, err := meter.Int64Counter(
		"webrx.tile.cache.lookup",
		metric.WithDescription("Tile cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of upstream provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of upstream provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &TileMetrics{
		cacheLookups:    cacheLookups,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}, nil
}

// ObserveLookup implements tile.Observer.
func (m *TileMetrics) ObserveLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.result", result)))
}

// ObserveUpstream implements osm.UpstreamObserver.
func (m *TileMetrics) ObserveUpstream(ctx context.Context, provider string, statusCode int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("http.status_code", strconv.Itoa(statusCode)),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// the request context may already be cancelled
	ctx = context.WithoutCancel(ctx)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
