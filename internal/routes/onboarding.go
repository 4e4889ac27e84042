package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/onboarding"
)

// RegisterOnboardingRoutes wires onboarding progress endpoints.
func RegisterOnboardingRoutes(r fiber.Router, h *onboarding.Handler, signedIn fiber.Handler) {
	group := r.Group("/onboarding", signedIn)
	group.Get("", h.Status)
	group.Post("/:step/complete", h.CompleteStep)
}
