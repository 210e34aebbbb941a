package work

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/middleware"
)

// Handler exposes job board endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a job board handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns the jobs on offer.
func (h *Handler) List(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"jobs": h.service.Jobs()})
}

// Take assigns a job to the caller.
func (h *Handler) Take(c *fiber.Ctx) error {
	j, err := h.service.Take(c.UserContext(), middleware.CharacterID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"assignmentId": j.ID,
		"jobId":        j.JobID,
		"pay":          j.Pay,
		"status":       j.Status,
	})
}

// Complete pays the caller for a finished assignment.
func (h *Handler) Complete(c *fiber.Ctx) error {
	payout, err := h.service.Complete(c.UserContext(), middleware.CharacterID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(payout)
}
