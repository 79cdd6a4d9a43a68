package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// getUserID pulls the authenticated user's id out of the request context.
// The auth middleware guarantees it is set on every protected route.
func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, ok := c.Locals("user_id").(string)
	if !ok || raw == "" {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	return userID, nil
}

// parseUUIDParam parses a route parameter as a UUID, reporting 404 on
// malformed ids so resource probing cannot distinguish bad ids from
// missing rows.
func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, *RequestError) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, ErrNotFound("Not found")
	}
	return id, nil
}
