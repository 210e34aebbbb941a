package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/wallet"
)

// RegisterWalletRoutes wires the caller's wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, d Deps) {
	h := wallet.NewHandler(d.Wallet)
	r.Get("/wallet", h.Balance)
	r.Get("/wallet/transactions", h.Transactions)
	r.Post("/wallet/address", h.SetAddress)
}
