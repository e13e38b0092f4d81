package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/webrx-map/webrx/internal/api/models"
	"github.com/webrx-map/webrx/internal/api/response"
	"github.com/webrx-map/webrx/internal/provider/resilience"
)

// ProviderHealthSource lists the health of upstream providers.
type ProviderHealthSource interface {
	GetAllHealth() []resilience.ProviderHealth
}

// TileCacheStats reports the tile cache size.
type TileCacheStats interface {
	Len() int
}

// OpsHandlerConfig holds the dependencies of OpsHandler. Providers and Tiles
// may be nil.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Status    StatusService
	Providers ProviderHealthSource
	Tiles     TileCacheStats
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsHandlerConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once it
// holds a fleet status, computed or loaded from the store.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Status.Current() == nil {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.now()),
			Details: map[string]any{"reason": "no station status held yet"},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider and refresh status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	refresh, stationStatus := h.refreshStatus()
	subsystems := []models.SubsystemStatus{stationStatus}
	if h.cfg.Tiles != nil {
		detail := fmt.Sprintf("%d tiles cached", h.cfg.Tiles.Len())
		subsystems = append(subsystems, models.SubsystemStatus{
			Name:   "tile-cache",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	providers := h.providerStatuses()

	overall := stationStatus.Status
	for _, p := range providers {
		if p.Status != models.HealthStatusOK && overall == models.HealthStatusOK {
			overall = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     overall,
		Time:       models.Timestamp(h.now()),
		Subsystems: subsystems,
		Providers:  providers,
		Refresh:    refresh,
	})
}

func (h *OpsHandler) refreshStatus() (models.RefreshStatus, models.SubsystemStatus) {
	stats := h.cfg.Status.Stats()
	refresh := models.RefreshStatus{
		Refreshes:      stats.Refreshes,
		Failures:       stats.Failures,
		LastAttemptAt:  models.NewTimestamp(stats.LastAttemptAt),
		LastSuccessAt:  models.NewTimestamp(stats.LastSuccessAt),
		LastDurationMs: stats.LastDuration.Milliseconds(),
		LastError:      stats.LastError,
	}

	sub := models.SubsystemStatus{Name: "station-status", Status: models.HealthStatusOK}

	agg := h.cfg.Status.Current()
	if agg == nil {
		detail := "no station status held yet"
		sub.Status = models.HealthStatusFail
		sub.Detail = &detail
		return refresh, sub
	}

	summary := agg.Summarize()
	refresh.Stations = len(agg.Results)
	refresh.Online = summary.Online
	refresh.Degraded = summary.Degraded
	refresh.Offline = summary.Offline

	if stats.LastError != "" {
		detail := "last refresh failed: " + stats.LastError
		sub.Status = models.HealthStatusDegraded
		sub.Detail = &detail
	}
	return refresh, sub
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Providers == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Providers.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for i := range all {
		ph := &all[i]
		ps := models.ProviderStatus{
			Provider:     ph.Name,
			Status:       models.HealthStatusOK,
			CircuitState: ph.CircuitState.String(),
		}
		switch {
		case ph.IsUnhealthy():
			ps.Status = models.HealthStatusFail
		case ph.IsDegraded():
			ps.Status = models.HealthStatusDegraded
		}
		if ph.LastSuccessAt != nil {
			ps.LastSuccessAt = models.NewTimestamp(*ph.LastSuccessAt)
		}
		if ph.LastFailureAt != nil {
			ps.LastFailureAt = models.NewTimestamp(*ph.LastFailureAt)
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}
