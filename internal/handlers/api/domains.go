package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"backlinks/internal/db"
	"backlinks/internal/models"
	"backlinks/internal/quota"
	"backlinks/internal/validation"
)

// DomainHandler handles audited domains and their run queue via JSON API.
type DomainHandler struct {
	store    Store
	provider string
	usage    UsageReporter
}

// NewDomainHandler creates a new API domain handler. Runs enqueued without an
// explicit provider use defaultProvider.
func NewDomainHandler(store Store, defaultProvider string, usage UsageReporter) *DomainHandler {
	return &DomainHandler{store: store, provider: defaultProvider, usage: usage}
}

// Create registers a domain.
func (h *DomainHandler) Create(c fiber.Ctx) error {
	var body models.CreateDomainRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	body.Host = validation.NormalizeHost(body.Host)
	if err := validation.Struct(body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	if valid, msg := validation.ValidateHost(body.Host); !valid {
		return jsonError(c, fiber.StatusBadRequest, msg)
	}

	domain := &models.Domain{
		UserID:           body.UserID,
		Host:             body.Host,
		BacklinksEnabled: true,
	}
	if body.Settings != nil {
		if err := validation.Struct(body.Settings); err != nil {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		domain.Settings = *body.Settings
	}
	if body.BacklinksEnabled != nil {
		domain.BacklinksEnabled = *body.BacklinksEnabled
	}

	if err := h.store.CreateDomain(c.Context(), domain); err != nil {
		if errors.Is(err, db.ErrDuplicateDomain) {
			return jsonError(c, fiber.StatusConflict, "domain already registered")
		}
		slog.Error("failed to create domain", "host", body.Host, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to create domain")
	}

	return jsonCreated(c, domain)
}

// Get returns a single domain by ID.
func (h *DomainHandler) Get(c fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid domain id")
	}

	domain, err := h.store.GetDomain(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrDomainNotFound) {
			return jsonError(c, fiber.StatusNotFound, "domain not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch domain")
	}

	return jsonSuccess(c, domain)
}

// EnqueueRun queues a backlink run for the domain. Only one run per domain
// may be pending or running at a time.
func (h *DomainHandler) EnqueueRun(c fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid domain id")
	}

	var body models.EnqueueRunRequest
	if raw := c.Body(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	domain, err := h.store.GetDomain(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrDomainNotFound) {
			return jsonError(c, fiber.StatusNotFound, "domain not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch domain")
	}

	settings := domain.Settings
	if body.Settings != nil {
		if err := validation.Struct(body.Settings); err != nil {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		settings = *body.Settings
	}
	provider := body.Provider
	if provider == "" {
		provider = h.provider
	}

	run, err := h.store.EnqueueRun(c.Context(), domain.ID, provider, settings)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrActiveRunExists):
			return jsonError(c, fiber.StatusConflict, "a run is already pending or running for this domain")
		case errors.Is(err, db.ErrDomainNotFound):
			return jsonError(c, fiber.StatusNotFound, "domain not found")
		}
		slog.Error("failed to enqueue run", "domain_id", domain.ID, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to enqueue run")
	}

	return jsonCreated(c, run)
}

// ListRuns returns the domain's most recent runs.
func (h *DomainHandler) ListRuns(c fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid domain id")
	}
	limit, _ := pageParams(c)

	runs, err := h.store.ListRunsByDomain(c.Context(), id, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch runs")
	}
	if runs == nil {
		runs = []models.Run{}
	}
	return jsonSuccess(c, runs)
}

// ListRefDomains returns the domain's cross-run referring domain aggregate,
// riskiest first.
func (h *DomainHandler) ListRefDomains(c fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid domain id")
	}
	limit, offset := pageParams(c)

	refs, err := h.store.ListRefDomainAggregates(c.Context(), id, limit, offset)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch referring domains")
	}
	out := make([]models.RefDomainAggregateResponse, 0, len(refs))
	for i := range refs {
		out = append(out, models.RefDomainAggregateResponse{
			BacklinkRefDomain: refs[i],
			FollowRatio:       refs[i].FollowRatio(),
		})
	}
	return jsonSuccess(c, out)
}

// Usage reports the domain owner's fetched-link usage for a month. The
// period query parameter takes the form YYYY-MM and defaults to the
// current month.
func (h *DomainHandler) Usage(c fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid domain id")
	}

	period := c.Query("period")
	if period == "" {
		period = quota.Period(time.Now())
	} else if _, err := time.Parse("2006-01", period); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "period must be YYYY-MM")
	}

	domain, err := h.store.GetDomain(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrDomainNotFound) {
			return jsonError(c, fiber.StatusNotFound, "domain not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch domain")
	}

	usage, err := h.usage.Usage(c.Context(), domain.UserID, quota.MetricBacklinksLinks, period)
	if err != nil {
		slog.Error("failed to read usage", "domain_id", domain.ID, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch usage")
	}
	return jsonSuccess(c, usage)
}
