package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"strata-waitlist/services"
)

// RequireAuth gates dashboard routes behind a bearer token issued by the login
// endpoint. The entry id lands in c.Locals("entry_id").
func RequireAuth(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}

		entryID, err := auth.ParseToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals("entry_id", entryID)
		return c.Next()
	}
}
