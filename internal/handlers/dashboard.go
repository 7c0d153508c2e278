package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"backlinks/internal/db"
	"backlinks/internal/models"
)

const (
	recentRunsLimit = 50
	riskiestLimit   = 25
	topAnchorsLimit = 15
)

// DashboardHandler renders the run overview pages.
type DashboardHandler struct {
	store Store
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(store Store) *DashboardHandler {
	return &DashboardHandler{store: store}
}

// Index renders the most recent runs across all domains.
func (h *DashboardHandler) Index(c fiber.Ctx) error {
	runs, err := h.store.ListRecentRuns(c.Context(), recentRunsLimit)
	if err != nil {
		return err
	}

	return c.Render("runs", fiber.Map{
		"Title": "Backlink runs",
		"Runs":  runs,
	})
}

// Show renders one run: summary, delta, riskiest backlinks, top anchors and
// the activity trail.
func (h *DashboardHandler) Show(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid run id")
	}

	run, err := h.store.GetRun(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "run not found")
		}
		return err
	}

	domain, err := h.store.GetDomain(c.Context(), run.DomainID)
	if err != nil {
		return err
	}

	delta, err := h.store.GetDeltaByRun(c.Context(), run.ID)
	if err != nil && !errors.Is(err, db.ErrDeltaNotFound) {
		return err
	}

	backlinks, err := h.store.ListRunBacklinks(c.Context(), run.ID, models.BacklinkFilter{Limit: riskiestLimit})
	if err != nil {
		return err
	}

	anchors, err := h.store.ListRunAnchors(c.Context(), run.ID, topAnchorsLimit)
	if err != nil {
		return err
	}

	activity, err := h.store.ListRunActivity(c.Context(), run.ID)
	if err != nil {
		return err
	}

	return c.Render("run", fiber.Map{
		"Title":     domain.Host + " run",
		"Run":       run,
		"Domain":    domain,
		"Delta":     delta,
		"Backlinks": backlinks,
		"Anchors":   anchors,
		"Activity":  activity,
	})
}
