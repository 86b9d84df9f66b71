package handler

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
)

type RateLimitHandler struct {
	whatsapp ratelimit.BudgetAdmin
}

func RegisterRateLimitRoutes(router fiber.Router, whatsapp ratelimit.BudgetAdmin) error {
	if whatsapp == nil {
		return fmt.Errorf("whatsapp budget admin is required")
	}
	h := &RateLimitHandler{whatsapp: whatsapp}

	v1 := router.Group("/v1")
	v1.Get("/rate-limits/whatsapp", h.Status)
	v1.Post("/rate-limits/whatsapp/reset", h.Reset)

	return nil
}

func (h *RateLimitHandler) Status(c *fiber.Ctx) error {
	status, err := h.whatsapp.Status(c.UserContext())
	if err != nil {
		return fmt.Errorf("failed to read whatsapp counters: %w", err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// Reset clears the daily counters, or with scope=all every WhatsApp counter.
func (h *RateLimitHandler) Reset(c *fiber.Ctx) error {
	scope := strings.ToLower(strings.TrimSpace(c.Query("scope", "daily")))

	var err error
	switch scope {
	case "daily":
		err = h.whatsapp.ResetDaily(c.UserContext())
	case "all":
		err = h.whatsapp.ResetAll(c.UserContext())
	default:
		return toHTTPError(domain.NewValidationError("scope must be daily or all"))
	}
	if err != nil {
		return fmt.Errorf("failed to reset whatsapp counters: %w", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"scope": scope,
		"reset": true,
	})
}
