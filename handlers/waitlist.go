package handlers

import (
	"errors"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"strata-waitlist/services"
	"strata-waitlist/store"
)

// SetupWaitlistRoutes wires the public waitlist API surface.
func SetupWaitlistRoutes(app *fiber.App, svc *services.WaitlistService) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.Post("/waitlist", func(c *fiber.Ctx) error {
		var in services.CreateEntryInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON body",
			})
		}

		entry, err := svc.CreateEntry(c.Context(), in)
		switch {
		case err == nil:
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"message": "Successfully joined waitlist",
				"user":    entry,
			})
		case errors.Is(err, store.ErrDuplicateEmail):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Email already registered",
				"user":  entry,
			})
		default:
			var verr validator.ValidationErrors
			if errors.As(err, &verr) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Missing required fields: first_name, last_name, email",
				})
			}
			return internalError(c, "Failed to join waitlist", err)
		}
	})

	api.Get("/waitlist", func(c *fiber.Ctx) error {
		entries, err := svc.ListEntries(c.Context())
		if err != nil {
			return internalError(c, "list failed", err)
		}
		return c.JSON(fiber.Map{
			"users": entries,
			"count": len(entries),
		})
	})

	// Registered before /waitlist/:id so "email" is not eaten by the param.
	api.Get("/waitlist/email/:email", func(c *fiber.Ctx) error {
		email, err := url.PathUnescape(c.Params("email"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid email"})
		}
		entry, err := svc.GetByEmail(c.Context(), email)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			return internalError(c, "lookup failed", err)
		}
		return c.JSON(fiber.Map{"user": entry})
	})

	api.Get("/waitlist/referral/:code", func(c *fiber.Ctx) error {
		entry, err := svc.GetByReferralLink(c.Context(), c.Params("code"))
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			return internalError(c, "lookup failed", err)
		}
		return c.JSON(fiber.Map{"user": entry})
	})

	api.Get("/waitlist/:id", func(c *fiber.Ctx) error {
		entry, err := svc.GetByID(c.Context(), c.Params("id"))
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			return internalError(c, "lookup failed", err)
		}
		return c.JSON(fiber.Map{"user": entry})
	})

	api.Patch("/waitlist/:id", func(c *fiber.Ctx) error {
		var changes map[string]interface{}
		if err := c.BodyParser(&changes); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		entry, err := svc.UpdateEntry(c.Context(), c.Params("id"), changes)
		switch {
		case err == nil:
			return c.JSON(fiber.Map{
				"message": "User updated successfully",
				"user":    entry,
			})
		case errors.Is(err, store.ErrImmutableField):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Cannot update id, email, created_at or referral_link",
			})
		case errors.Is(err, store.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		default:
			return internalError(c, "update failed", err)
		}
	})

	api.Get("/leaderboard", func(c *fiber.Ctx) error {
		leaderboard, err := svc.Leaderboard(c.Context(), c.QueryInt("limit", 0))
		if err != nil {
			return internalError(c, "leaderboard failed", err)
		}
		return c.JSON(fiber.Map{"leaderboard": leaderboard})
	})

	api.Get("/rewards", func(c *fiber.Ctx) error {
		rewards, err := svc.ListRewards(c.Context())
		if err != nil {
			return internalError(c, "rewards failed", err)
		}
		return c.JSON(fiber.Map{"rewards": rewards})
	})

	api.Get("/users/:userId/achievements", func(c *fiber.Ctx) error {
		achievements, err := svc.ListAchievements(c.Context(), c.Params("userId"))
		if err != nil {
			return internalError(c, "achievements failed", err)
		}
		return c.JSON(fiber.Map{"achievements": achievements})
	})

	api.Post("/users/:userId/achievements", func(c *fiber.Ctx) error {
		type Req struct {
			AchievementType string `json:"achievement_type"`
			PointsEarned    int64  `json:"points_earned"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		if req.AchievementType == "" || req.PointsEarned <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing required fields: achievement_type, points_earned",
			})
		}

		achievement, err := svc.GrantAchievement(c.Context(), c.Params("userId"), req.AchievementType, req.PointsEarned)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			return internalError(c, "achievement failed", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":     "Achievement created successfully",
			"achievement": achievement,
		})
	})
}

func internalError(c *fiber.Ctx, msg string, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
		"cause": msg + ": " + err.Error(),
	})
}
