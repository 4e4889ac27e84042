package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/auth"
)

// RegisterAuthRoutes wires sign-in, registration, OTP and session endpoints.
// Logout stays unguarded so it can cancel a sign-in still in flight.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, throttle, signedIn fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/login", throttle, h.Login)
	group.Post("/logout", h.Logout)
	group.Get("/me", h.Me)
	group.Patch("/me", signedIn, h.UpdateMe)
	group.Post("/register", throttle, h.Register)
	group.Post("/otp", throttle, h.RequestOTP)
	group.Post("/otp/resend", h.ResendOTP)
	group.Post("/verify", throttle, h.VerifyOTP)
	group.Post("/captcha", h.SolveCaptcha)
	group.Get("/lockout", h.Lockout)
	group.Get("/remembered", h.Remembered)

	r.Get("/session/events", h.Events)
}
