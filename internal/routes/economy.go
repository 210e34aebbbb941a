package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/auction"
	"github.com/deepwater-mud/economy/internal/bank"
	"github.com/deepwater-mud/economy/internal/enforcement"
	"github.com/deepwater-mud/economy/internal/market"
	"github.com/deepwater-mud/economy/internal/trade"
	"github.com/deepwater-mud/economy/internal/work"
)

// RegisterEconomyRoutes wires the player-facing economy endpoints.
func RegisterEconomyRoutes(r fiber.Router, d Deps) {
	RegisterWalletRoutes(r, d)

	m := market.NewHandler(d.Market)
	r.Post("/sell", m.Sell)
	r.Post("/buy", m.Buy)

	b := bank.NewHandler(d.Bank)
	r.Get("/bank", b.Account)
	r.Post("/bank/deposit", b.Deposit)
	r.Post("/bank/withdraw", b.Withdraw)
	r.Post("/bank/loan", b.Loan)
	r.Post("/bank/repay", b.Repay)

	t := trade.NewHandler(d.Trade)
	r.Post("/trades", d.Schemas.Middleware("trade_offer"), t.Create)
	r.Get("/trades", t.List)
	r.Get("/trades/:id", t.Get)
	r.Post("/trades/:id/accept", t.Accept)
	r.Post("/trades/:id/reject", t.Reject)

	a := auction.NewHandler(d.Auction)
	r.Post("/auctions", d.Schemas.Middleware("auction_create"), a.Create)
	r.Get("/auctions", a.List)
	r.Get("/auctions/:id", a.Get)
	r.Post("/auctions/:id/bid", a.Bid)
	r.Post("/auctions/:id/buyout", a.Buyout)
	r.Post("/auctions/:id/cancel", a.Cancel)

	e := enforcement.NewHandler(d.Enforcement)
	r.Get("/enforce/status", e.Status)
	r.Post("/enforce/release", e.Release)

	w := work.NewHandler(d.Work)
	r.Get("/jobs", w.List)
	r.Post("/jobs/:id/take", w.Take)
	r.Post("/jobs/assignments/:id/complete", w.Complete)
}
