package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	store Store
}

// NewHealthHandler creates a new API health handler.
func NewHealthHandler(store Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Check pings the database with a short timeout.
func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		return jsonError(c, fiber.StatusServiceUnavailable, "database unavailable")
	}
	return jsonSuccess(c, fiber.Map{"database": "up"})
}
