package emissions

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the admin trigger for an emission cycle.
type Handler struct {
	service *Service
}

// NewHandler builds an emissions HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Run executes one cycle immediately.
func (h *Handler) Run(c *fiber.Ctx) error {
	report, err := h.service.Run(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(report)
}
