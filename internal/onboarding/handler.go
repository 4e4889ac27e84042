package onboarding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dreluxe/portal/internal/auth"
	"github.com/dreluxe/portal/internal/middleware"
)

// Handler exposes onboarding progress to the portal client.
type Handler struct {
	ctrl *Controller
}

// NewHandler builds a Handler.
func NewHandler(ctrl *Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

type stepView struct {
	Step string `json:"step"`
	Path string `json:"path"`
	Done bool   `json:"done"`
}

// Status reports per-step progress, the entry step and the step saved data
// allows resuming at. The optional path query keeps a customer on the step
// page they are viewing.
func (h *Handler) Status(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return middleware.NewAPIError(http.StatusUnauthorized, "Please log in to continue")
	}
	client := middleware.ClientID(c)
	progress, err := h.ctrl.Progress(c.UserContext(), client, s.ID)
	if err != nil {
		return err
	}

	views := make([]stepView, 0, len(steps))
	for _, step := range steps {
		views = append(views, stepView{Step: string(step), Path: step.Path(), Done: progress[step]})
	}

	entry, resume := DashboardPath, ""
	if !IsComplete(s) {
		entry = ResolveEntryStep(c.Query("path"))
		if step, missing := progress.FirstIncomplete(); missing {
			resume = step.Path()
		} else {
			resume = steps[len(steps)-1].Path()
		}
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"complete": IsComplete(s),
		"steps":    views,
		"entry":    entry,
		"resume":   resume,
	})
}

// CompleteStep advances past :step.
func (h *Handler) CompleteStep(c *fiber.Ctx) error {
	step, ok := ParseStep(c.Params("step"))
	if !ok {
		return middleware.NewAPIError(http.StatusNotFound, ErrUnknownStep.Error())
	}
	next, err := h.ctrl.Complete(c.UserContext(), middleware.ClientID(c), step)
	var incomplete *StepIncompleteError
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true, "redirect": next})
	case errors.As(err, &incomplete):
		apiErr := middleware.NewAPIError(http.StatusConflict, incomplete.Error())
		apiErr.Redirect = incomplete.Step.Path()
		return apiErr
	case errors.Is(err, auth.ErrNoActiveSession):
		apiErr := middleware.NewAPIError(http.StatusUnauthorized, "Please log in to continue")
		apiErr.Redirect = "/customer"
		return apiErr
	default:
		return err
	}
}
