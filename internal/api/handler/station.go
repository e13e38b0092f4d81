// Package handler provides HTTP handlers for the WebRX API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/api/middleware"
	"github.com/webrx-map/webrx/internal/api/response"
	"github.com/webrx-map/webrx/internal/station"
)

// StatusService serves the cached fleet status.
type StatusService interface {
	Get(ctx context.Context) (*station.Aggregate, error)
	Current() *station.Aggregate
	Stats() station.RefreshStats
}

// StationHandler serves the station status API.
type StationHandler struct {
	service StatusService
	logger  zerolog.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(service StatusService, logger zerolog.Logger) *StationHandler {
	return &StationHandler{service: service, logger: logger}
}

// GetStatus handles GET /api/sdrs. When a refresh fails the previously held
// status is served; only a cold cache answers 503.
func (h *StationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.Get(r.Context())
	if err != nil {
		requestID := middleware.GetRequestID(r.Context())
		if agg == nil {
			h.logger.Error().Err(err).Str("request_id", requestID).Msg("station status unavailable")
			response.ServiceUnavailable(w, r, "station status is not available yet")
			return
		}

		h.logger.Warn().
			Err(err).
			Str("request_id", requestID).
			Time("last_checked", agg.LastChecked).
			Msg("station refresh failed, serving stale status")
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}

	response.JSON(w, r, http.StatusOK, agg)
}

// LegacyHandler keeps the pre-API grabber URLs working.
type LegacyHandler struct {
	service StatusService
	store   station.Store
	logger  zerolog.Logger
}

// NewLegacyHandler creates a new LegacyHandler. store may be nil.
func NewLegacyHandler(service StatusService, store station.Store, logger zerolog.Logger) *LegacyHandler {
	return &LegacyHandler{service: service, store: store, logger: logger}
}

// RedirectStatus handles GET /grabber/sdrs.php.
func (h *LegacyHandler) RedirectStatus(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/api/sdrs", http.StatusFound)
}

// DataFile handles GET /grabber/data.json: the persisted snapshot, else the
// held status, else an empty document.
func (h *LegacyHandler) DataFile(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		agg, err := h.store.Load(r.Context())
		switch {
		case err == nil:
			response.JSON(w, r, http.StatusOK, agg)
			return
		case !errors.Is(err, station.ErrNoSnapshot):
			h.logger.Warn().Err(err).Msg("failed to load persisted station status")
		}
	}

	if agg := h.service.Current(); agg != nil {
		response.JSON(w, r, http.StatusOK, agg)
		return
	}
	response.JSON(w, r, http.StatusOK, &station.Aggregate{})
}
