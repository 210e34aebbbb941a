package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Balance returns the caller's wallet balance and holdings.
func (h *Handler) Balance(c *fiber.Ctx) error {
	cid := middleware.CharacterID(c)
	balance, err := h.service.Balance(c.UserContext(), cid)
	if err != nil {
		return err
	}
	holdings, err := h.service.Holdings(c.UserContext(), cid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet":   balance,
		"holdings": holdings,
	})
}

// Transactions lists the caller's ledger history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), middleware.CharacterID(c), c.QueryInt("limit", defaultHistoryLimit))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": entries})
}

type addressRequest struct {
	Address string `json:"address"`
}

// SetAddress stores the caller's settlement address.
func (h *Handler) SetAddress(c *fiber.Ctx) error {
	var req addressRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	if err := h.service.SetExternalAddress(c.UserContext(), middleware.CharacterID(c), req.Address); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"address": req.Address})
}
