package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/orders"
)

// RegisterOrderRoutes wires the catalogue and order endpoints. idem may be
// nil when no cache is configured.
func RegisterOrderRoutes(r fiber.Router, h *orders.Handler, onboarded, idem fiber.Handler) {
	r.Get("/orders/items", h.Items)

	group := r.Group("/orders", onboarded)
	group.Get("", h.List)
	if idem != nil {
		group.Post("", idem, h.Place)
	} else {
		group.Post("", h.Place)
	}
	group.Get("/:id", h.Get)
	group.Post("/:id/advance", h.Advance)
}
