package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"strata-waitlist/middleware"
	"strata-waitlist/services"
	"strata-waitlist/store"
)

// SetupAuthRoutes wires the lightweight login gate and the dashboard behind it.
func SetupAuthRoutes(app *fiber.App, auth *services.AuthService, waitlist *services.WaitlistService) {
	api := app.Group("/api")

	api.Post("/auth/login", func(c *fiber.Ctx) error {
		type Req struct {
			Email string `json:"email"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil || req.Email == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing required field: email",
			})
		}

		token, entry, err := auth.Login(c.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Email is not on the waitlist",
			})
		}
		if err != nil {
			return internalError(c, "login failed", err)
		}
		return c.JSON(fiber.Map{
			"token": token,
			"user":  entry,
		})
	})

	api.Get("/dashboard", middleware.RequireAuth(auth), func(c *fiber.Ctx) error {
		entryID := c.Locals("entry_id").(string)
		dashboard, err := waitlist.DashboardFor(c.Context(), entryID)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			return internalError(c, "dashboard failed", err)
		}
		return c.JSON(dashboard)
	})
}
