package bank

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/middleware"
)

// Handler exposes banking endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a bank HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func parseAmount(c *fiber.Ctx, required bool) (*decimal.Decimal, error) {
	var req amountRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return nil, apperr.Validation("malformed body: %v", err)
		}
	}
	if required && req.Amount == nil {
		return nil, apperr.Validation("amount is required")
	}
	return req.Amount, nil
}

// Account returns the caller's bank account.
func (h *Handler) Account(c *fiber.Ctx) error {
	view, err := h.service.Status(c.UserContext(), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(view)
}

// Deposit moves wallet funds into the bank.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	amount, err := parseAmount(c, true)
	if err != nil {
		return err
	}
	res, err := h.service.Deposit(c.UserContext(), middleware.CharacterID(c), *amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Withdraw returns deposited funds to the wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	amount, err := parseAmount(c, true)
	if err != nil {
		return err
	}
	res, err := h.service.Withdraw(c.UserContext(), middleware.CharacterID(c), *amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Loan issues a loan to the caller.
func (h *Handler) Loan(c *fiber.Ctx) error {
	amount, err := parseAmount(c, true)
	if err != nil {
		return err
	}
	res, err := h.service.TakeLoan(c.UserContext(), middleware.CharacterID(c), *amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Repay pays down the caller's loan; without an amount it repays in full.
func (h *Handler) Repay(c *fiber.Ctx) error {
	amount, err := parseAmount(c, false)
	if err != nil {
		return err
	}
	res, err := h.service.Repay(c.UserContext(), middleware.CharacterID(c), amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}
