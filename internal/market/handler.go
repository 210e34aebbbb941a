package market

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/middleware"
)

// Handler exposes NPC merchant endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a market HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type tradeRequest struct {
	MaterialID string `json:"materialId"`
	Quantity   int64  `json:"quantity"`
	NPCID      string `json:"npcId"`
}

func parseInput(c *fiber.Ctx) (Input, error) {
	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return Input{}, apperr.Validation("malformed body: %v", err)
	}
	if req.MaterialID == "" || req.NPCID == "" {
		return Input{}, apperr.Validation("materialId and npcId are required")
	}
	return Input{
		CharacterID: middleware.CharacterID(c),
		MaterialID:  req.MaterialID,
		Quantity:    req.Quantity,
		NPCID:       req.NPCID,
	}, nil
}

// Sell sells the caller's materials to a merchant.
func (h *Handler) Sell(c *fiber.Ctx) error {
	in, err := parseInput(c)
	if err != nil {
		return err
	}
	receipt, err := h.service.Sell(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"sold": receipt})
}

// Buy buys materials from a merchant.
func (h *Handler) Buy(c *fiber.Ctx) error {
	in, err := parseInput(c)
	if err != nil {
		return err
	}
	receipt, err := h.service.Buy(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"bought": receipt})
}
