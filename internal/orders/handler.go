package orders

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/middleware"
)

// Handler exposes order endpoints.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Items lists the catalogue.
func (h *Handler) Items(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "items": Catalogue(), "deliveryFee": DeliveryFee})
}

// List returns the caller's orders split into active and past.
func (h *Handler) List(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
	}
	list, err := h.svc.List(c.UserContext(), s.ID)
	if err != nil {
		return err
	}
	active, past := []Order{}, []Order{}
	for _, o := range list {
		if o.Status.Active() {
			active = append(active, o)
		} else {
			past = append(past, o)
		}
	}
	return c.JSON(fiber.Map{"success": true, "orders": list, "active": active, "past": past})
}

// Place creates an order from the cart.
func (h *Handler) Place(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
	}
	var in PlaceInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.svc.Place(c.UserContext(), s.ID, in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"success": true, "order": o})
}

// Get returns one order.
func (h *Handler) Get(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
	}
	o, err := h.svc.Get(c.UserContext(), s.ID, c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "order": o})
}

// Advance moves an order to its next stage.
func (h *Handler) Advance(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
	}
	o, err := h.svc.Advance(c.UserContext(), s.ID, c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "order": o})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return middleware.NewAPIError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCompleted):
		return middleware.NewAPIError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
