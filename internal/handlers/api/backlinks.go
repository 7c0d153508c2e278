package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"backlinks/internal/db"
	"backlinks/internal/models"
)

// BacklinkHandler handles per-backlink operator actions via JSON API.
type BacklinkHandler struct {
	store Store
}

// NewBacklinkHandler creates a new API backlink handler.
func NewBacklinkHandler(store Store) *BacklinkHandler {
	return &BacklinkHandler{store: store}
}

// SetAction records an operator override of a backlink's action status.
// Later scoring passes never overwrite it.
func (h *BacklinkHandler) SetAction(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid backlink id")
	}

	var body models.ActionRequest
	if err := bindJSON(c, &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	backlink, err := h.store.SetBacklinkAction(c.Context(), id, body.ActionStatus)
	if err != nil {
		if errors.Is(err, db.ErrBacklinkNotFound) {
			return jsonError(c, fiber.StatusNotFound, "backlink not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to update backlink")
	}
	return jsonSuccess(c, backlink)
}
