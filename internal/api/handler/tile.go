package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/api/middleware"
	"github.com/webrx-map/webrx/internal/api/response"
	"github.com/webrx-map/webrx/internal/tile"
)

// TileCacheControl lets browsers keep tiles for a day.
const TileCacheControl = "public, max-age=86400"

// TileService returns tile images by key.
type TileService interface {
	GetTile(ctx context.Context, key tile.Key) ([]byte, error)
}

// TileHandler serves the map tile proxy.
type TileHandler struct {
	tiles  TileService
	logger zerolog.Logger
}

// NewTileHandler creates a new TileHandler.
func NewTileHandler(tiles TileService, logger zerolog.Logger) *TileHandler {
	return &TileHandler{tiles: tiles, logger: logger}
}

// GetTile handles GET /tiles/{s}/{z}/{x}/{y}.png.
func (h *TileHandler) GetTile(w http.ResponseWriter, r *http.Request) {
	key, err := tile.ParseKey(
		chi.URLParam(r, "s"),
		chi.URLParam(r, "z"),
		chi.URLParam(r, "x"),
		chi.URLParam(r, "y"),
	)
	if err != nil {
		response.BadRequest(w, r, err.Error())
		return
	}

	data, err := h.tiles.GetTile(r.Context(), key)
	switch {
	case err == nil:
		response.Bytes(w, r, "image/png", TileCacheControl, data)
	case errors.Is(err, tile.ErrInvalidRequest):
		response.BadRequest(w, r, err.Error())
	case errors.Is(err, tile.ErrTileNotFound):
		response.NotFound(w, r, "tile not found")
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("tile", key.String()).
			Msg("failed to fetch tile")
		response.InternalError(w, r, "failed to fetch tile")
	}
}
