package enforcement

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/middleware"
)

// Handler exposes debt enforcement endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an enforcement HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type resolveRequest struct {
	CharacterID string `json:"characterId"`
	Victory     *bool  `json:"victory"`
}

// Sweep runs one enforcement pass over overdue loans.
func (h *Handler) Sweep(c *fiber.Ctx) error {
	results, err := h.service.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"results": results})
}

// Resolve is the combat engine's callback once an encounter ends.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	if req.CharacterID == "" || req.Victory == nil {
		return apperr.Validation("characterId and victory are required")
	}
	res, err := h.service.ResolveEncounter(c.UserContext(), req.CharacterID, c.Params("id"), *req.Victory)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Status reports the caller's debt standing, releasing them first when their
// sentence is over.
func (h *Handler) Status(c *fiber.Ctx) error {
	characterID := middleware.CharacterID(c)
	if _, err := h.service.CheckRelease(c.UserContext(), characterID); err != nil && !errors.Is(err, apperr.ErrInvalidState) {
		return err
	}
	view, err := h.service.Status(c.UserContext(), characterID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(view)
}

// Release checks the caller's jail sentence.
func (h *Handler) Release(c *fiber.Ctx) error {
	rel, err := h.service.CheckRelease(c.UserContext(), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(rel)
}
