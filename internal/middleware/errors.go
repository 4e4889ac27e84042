package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/credential"
)

// APIError is an error response with the optional fields the portal client
// uses to render retry affordances.
type APIError struct {
	Status           int
	Message          string
	Field            string
	SecondsRemaining *int
	CaptchaRequired  bool
	Redirect         string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError builds a plain APIError.
func NewAPIError(status int, message string) *APIError {
	return &APIError{Status: status, Message: message}
}

// WithSeconds attaches a countdown to the error.
func (e *APIError) WithSeconds(seconds int) *APIError {
	e.SecondsRemaining = &seconds
	return e
}

// ErrorHandler renders every error as {"success":false,"message":...}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		body := fiber.Map{"success": false}

		var apiErr *APIError
		var fiberErr *fiber.Error
		var validationErr *credential.ValidationError
		status := fiber.StatusInternalServerError
		switch {
		case errors.As(err, &validationErr):
			status = fiber.StatusBadRequest
			body["message"] = validationErr.Message
			body["field"] = validationErr.Field
		case errors.As(err, &apiErr):
			status = apiErr.Status
			body["message"] = apiErr.Message
			if apiErr.Field != "" {
				body["field"] = apiErr.Field
			}
			if apiErr.SecondsRemaining != nil {
				body["secondsRemaining"] = *apiErr.SecondsRemaining
			}
			if apiErr.CaptchaRequired {
				body["captchaRequired"] = true
			}
			if apiErr.Redirect != "" {
				body["redirect"] = apiErr.Redirect
			}
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			body["message"] = fiberErr.Message
		default:
			body["message"] = "internal server error"
		}

		if status >= fiber.StatusInternalServerError && logger != nil {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.Error("request failed", slog.String("path", c.Path()), slog.String("request_id", requestID), slog.Any("error", err))
		}
		return c.Status(status).JSON(body)
	}
}
