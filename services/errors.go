package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Expected, recoverable outcomes of match/grid operations. Conflicts are
// normal under racing clients, not bugs: callers re-read and retry. Only
// infrastructure failure (storage unreachable) surfaces as a 500.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict: state already advanced")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidState   = errors.New("invalid state for this action")
	ErrMalformedInput = errors.New("malformed input")
)

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrMalformedInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidState):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
