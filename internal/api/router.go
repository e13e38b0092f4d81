// Package api wires the HTTP routes of the WebRX server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/api/handler"
	"github.com/webrx-map/webrx/internal/api/middleware"
	"github.com/webrx-map/webrx/internal/api/models"
	"github.com/webrx-map/webrx/internal/api/response"
	"github.com/webrx-map/webrx/internal/provider/resilience"
	"github.com/webrx-map/webrx/internal/station"
	"github.com/webrx-map/webrx/internal/tile"
)

// DefaultServiceName names the server in traces.
const DefaultServiceName = "webrx-api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	// Metrics is optional; nil disables HTTP metrics.
	Metrics *middleware.Metrics

	// RequireTLS rejects plain HTTP requests forwarded by a load balancer.
	RequireTLS bool

	Stations  handler.StatusService
	Store     station.Store
	Tiles     *tile.Service
	Providers *resilience.Registry
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// order matters: the request ID must exist before tracing and logging
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	stationHandler := handler.NewStationHandler(cfg.Stations, cfg.Logger)
	legacyHandler := handler.NewLegacyHandler(cfg.Stations, cfg.Store, cfg.Logger)
	tileHandler := handler.NewTileHandler(cfg.Tiles, cfg.Logger)

	opsCfg := handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Status:    cfg.Stations,
	}
	if cfg.Tiles != nil {
		opsCfg.Tiles = cfg.Tiles
	}
	if cfg.Providers != nil {
		opsCfg.Providers = cfg.Providers
	}
	opsHandler := handler.NewOpsHandler(opsCfg)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	tileRateLimit := middleware.RateLimitByIP(middleware.TileRateLimit)

	r.Group(func(r chi.Router) {
		r.Use(standardRateLimit)
		r.Use(middleware.ContentTypeJSON)

		r.Get("/api/sdrs", stationHandler.GetStatus)

		r.Route("/grabber", func(r chi.Router) {
			r.Get("/sdrs.php", legacyHandler.RedirectStatus)
			r.Get("/data.json", legacyHandler.DataFile)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(tileRateLimit)
		r.Use(chimiddleware.GetHead)

		r.Get("/tiles/{s}/{z}/{x}/{y}.png", tileHandler.GetTile)
	})

	r.Route("/v1/ops", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewProblem(models.ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed, middleware.GetRequestID(r.Context()))
		response.Error(w, r, problem.WithDetail(r.Method+" is not supported on "+r.URL.Path))
	})

	return r
}
