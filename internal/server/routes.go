package server

import (
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backlinks/internal/handlers"
	"backlinks/internal/handlers/api"
)

// Store is everything the HTTP surface reads and writes. *db.DB satisfies it.
type Store interface {
	api.Store
	handlers.Store
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(store Store, usage api.UsageReporter) {
	dashboard := handlers.NewDashboardHandler(store)
	health := api.NewHealthHandler(store)

	// Operational endpoints
	s.App.Get("/healthz", health.Check)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// JSON API
	api.Register(s.App.Group("/api"), store, s.Cfg.Provider, usage)

	// Dashboard pages
	s.App.Get("/", dashboard.Index)
	s.App.Get("/runs/:id", dashboard.Show)
}
