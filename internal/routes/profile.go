package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/profile"
)

// RegisterProfileRoutes wires address, preference and payment endpoints.
func RegisterProfileRoutes(r fiber.Router, h *profile.Handler, signedIn fiber.Handler) {
	group := r.Group("/user", signedIn)
	group.Get("/address", h.GetAddresses)
	group.Put("/address", h.PutAddress)
	group.Get("/preferences", h.GetPreferences)
	group.Put("/preferences", h.PutPreferences)
	group.Get("/payment", h.GetPaymentMethods)
	group.Post("/payment", h.PostPaymentMethod)
}
