package profile

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/middleware"
)

// Handler exposes the profile endpoints. Every route sits behind the route
// guard, so a session is always present.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func currentUser(c *fiber.Ctx) (client, userID string, err error) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return "", "", middleware.NewAPIError(http.StatusUnauthorized, "Not authenticated")
	}
	return middleware.ClientID(c), s.ID, nil
}

// GetAddresses lists saved addresses.
func (h *Handler) GetAddresses(c *fiber.Ctx) error {
	client, userID, err := currentUser(c)
	if err != nil {
		return err
	}
	addrs, err := h.svc.Addresses(c.UserContext(), client, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "addresses": addrs})
}

// PutAddress saves the default address.
func (h *Handler) PutAddress(c *fiber.Ctx) error {
	client, userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var in AddressInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	addr, err := h.svc.SaveAddress(c.UserContext(), client, userID, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "address": addr})
}

// GetPreferences returns saved preferences.
func (h *Handler) GetPreferences(c *fiber.Ctx) error {
	client, userID, err := currentUser(c)
	if err != nil {
		return err
	}
	prefs, err := h.svc.Preferences(c.UserContext(), client, userID)
	if errors.Is(err, ErrNotFound) {
		return middleware.NewAPIError(http.StatusNotFound, "No preferences saved yet")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "preferences": prefs})
}

// PutPreferences replaces preferences.
func (h *Handler) PutPreferences(c *fiber.Ctx) error {
	client, userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var in Preferences
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	prefs, err := h.svc.SavePreferences(c.UserContext(), client, userID, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "preferences": prefs})
}

// GetPaymentMethods lists saved payment methods.
func (h *Handler) GetPaymentMethods(c *fiber.Ctx) error {
	client, userID, err := currentUser(c)
	if err != nil {
		return err
	}
	methods, err := h.svc.PaymentMethods(c.UserContext(), client, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "paymentMethods": methods})
}

// PostPaymentMethod adds a payment method.
func (h *Handler) PostPaymentMethod(c *fiber.Ctx) error {
	client, userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.AddPaymentMethod(c.UserContext(), client, userID, in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"success": true, "paymentMethod": m})
}
