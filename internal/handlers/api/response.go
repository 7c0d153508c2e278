package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"backlinks/internal/validation"
)

// Listing bounds shared by the paginated endpoints.
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// jsonSuccess returns a response with data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonCreated returns a 201 response with data wrapped in the standard envelope.
func jsonCreated(c fiber.Ctx, data any) error {
	c.Status(fiber.StatusCreated)
	return jsonSuccess(c, data)
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// paramUUID parses a UUID path parameter.
func paramUUID(c fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

// pageParams reads limit/offset query parameters, clamped to sane bounds.
func pageParams(c fiber.Ctx) (limit, offset int) {
	limit = fiber.Query[int](c, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset = max(fiber.Query[int](c, "offset", 0), 0)
	return limit, offset
}

// bindJSON decodes the request body into v and validates its struct tags.
func bindJSON(c fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return errors.New("invalid request body")
	}
	return validation.Struct(v)
}
