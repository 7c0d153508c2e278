package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"backlinks/internal/db"
	"backlinks/internal/models"
)

// RunHandler exposes runs and their results via JSON API.
type RunHandler struct {
	store Store
}

// NewRunHandler creates a new API run handler.
func NewRunHandler(store Store) *RunHandler {
	return &RunHandler{store: store}
}

// Get returns a run with its delta.
func (h *RunHandler) Get(c fiber.Ctx) error {
	run, ok, err := h.loadRun(c)
	if !ok {
		return err
	}

	resp := models.RunDetailResponse{Run: run}
	delta, err := h.store.GetDeltaByRun(c.Context(), run.ID)
	switch {
	case err == nil:
		resp.Delta = delta
	case !errors.Is(err, db.ErrDeltaNotFound):
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch delta")
	}

	return jsonSuccess(c, resp)
}

// Delta returns the run's comparison with the previous completed run.
func (h *RunHandler) Delta(c fiber.Ctx) error {
	run, ok, err := h.loadRun(c)
	if !ok {
		return err
	}

	delta, err := h.store.GetDeltaByRun(c.Context(), run.ID)
	if err != nil {
		if errors.Is(err, db.ErrDeltaNotFound) {
			return jsonError(c, fiber.StatusNotFound, "delta not computed yet")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch delta")
	}
	return jsonSuccess(c, delta)
}

// Backlinks lists a run's backlinks, riskiest first, optionally filtered by
// action status.
func (h *RunHandler) Backlinks(c fiber.Ctx) error {
	run, ok, err := h.loadRun(c)
	if !ok {
		return err
	}

	action := c.Query("action", "")
	if action != "" && !models.IsValidAction(action) {
		return jsonError(c, fiber.StatusBadRequest, "invalid action filter")
	}
	limit, offset := pageParams(c)

	backlinks, err := h.store.ListRunBacklinks(c.Context(), run.ID, models.BacklinkFilter{
		Action: action,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch backlinks")
	}
	if backlinks == nil {
		backlinks = []models.Backlink{}
	}
	return jsonSuccess(c, backlinks)
}

// Anchors lists a run's anchor texts, most frequent first.
func (h *RunHandler) Anchors(c fiber.Ctx) error {
	run, ok, err := h.loadRun(c)
	if !ok {
		return err
	}
	limit, _ := pageParams(c)

	anchors, err := h.store.ListRunAnchors(c.Context(), run.ID, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch anchors")
	}
	if anchors == nil {
		anchors = []models.AnchorSummary{}
	}
	return jsonSuccess(c, anchors)
}

// loadRun resolves the :id run. When ok is false the error response has
// already been written and err is what the handler must return.
func (h *RunHandler) loadRun(c fiber.Ctx) (*models.Run, bool, error) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return nil, false, jsonError(c, fiber.StatusBadRequest, "invalid run id")
	}

	run, err := h.store.GetRun(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			return nil, false, jsonError(c, fiber.StatusNotFound, "run not found")
		}
		return nil, false, jsonError(c, fiber.StatusInternalServerError, "failed to fetch run")
	}
	return run, true, nil
}
