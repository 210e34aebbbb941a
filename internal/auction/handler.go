package auction

import (
	"math"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/middleware"
	"github.com/deepwater-mud/economy/internal/store"
)

// Handler exposes auction house endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an auction HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// createRequest is validated against the auction_create schema first.
type createRequest struct {
	ItemType      store.ItemType      `json:"itemType"`
	ItemID        string              `json:"itemId"`
	Quantity      int64               `json:"quantity"`
	StartingBid   decimal.Decimal     `json:"startingBid"`
	BuyoutPrice   decimal.NullDecimal `json:"buyoutPrice"`
	DurationHours float64             `json:"durationHours"`
}

type bidRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type auctionResponse struct {
	ID              string              `json:"id"`
	SellerID        string              `json:"sellerId"`
	ItemType        store.ItemType      `json:"itemType"`
	ItemID          string              `json:"itemId"`
	Quantity        int64               `json:"quantity"`
	StartingBid     decimal.Decimal     `json:"startingBid"`
	BuyoutPrice     decimal.NullDecimal `json:"buyoutPrice"`
	CurrentBid      decimal.Decimal     `json:"currentBid"`
	CurrentBidderID string              `json:"currentBidderId,omitempty"`
	Status          store.AuctionStatus `json:"status"`
	EndsAt          time.Time           `json:"endsAt"`
	CreatedAt       time.Time           `json:"createdAt"`
	ResolvedAt      *time.Time          `json:"resolvedAt,omitempty"`
}

type bidResponse struct {
	BidderID  string          `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toResponse(a store.Auction) auctionResponse {
	return auctionResponse{
		ID:              a.ID,
		SellerID:        a.SellerID,
		ItemType:        a.ItemType,
		ItemID:          a.ItemID,
		Quantity:        a.Quantity,
		StartingBid:     a.StartingBid,
		BuyoutPrice:     a.BuyoutPrice,
		CurrentBid:      a.CurrentBid,
		CurrentBidderID: a.CurrentBidderID,
		Status:          a.Status,
		EndsAt:          a.EndsAt,
		CreatedAt:       a.CreatedAt,
		ResolvedAt:      a.ResolvedAt,
	}
}

// Create lists goods from the caller's inventory.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	created, err := h.service.Create(c.UserContext(), CreateInput{
		SellerID:    middleware.CharacterID(c),
		ItemType:    req.ItemType,
		ItemID:      req.ItemID,
		Quantity:    req.Quantity,
		StartingBid: req.StartingBid,
		BuyoutPrice: req.BuyoutPrice,
		Duration:    hours(req.DurationHours),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(created)
}

// hours converts a listing duration, saturating like trade expiries do.
func hours(h float64) time.Duration {
	switch {
	case math.IsNaN(h) || h <= 0:
		return 0
	case h >= float64(math.MaxInt64)/float64(time.Hour):
		return math.MaxInt64
	}
	return time.Duration(h * float64(time.Hour))
}

// Bid places a bid for the caller.
func (h *Handler) Bid(c *fiber.Ctx) error {
	var req bidRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	if req.Amount == nil {
		return apperr.Validation("amount is required")
	}
	res, err := h.service.PlaceBid(c.UserContext(), c.Params("id"), middleware.CharacterID(c), *req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Buyout buys the lot at its buyout price.
func (h *Handler) Buyout(c *fiber.Ctx) error {
	sale, err := h.service.Buyout(c.UserContext(), c.Params("id"), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"price": sale.Price, "sale": sale})
}

// Cancel withdraws the caller's listing.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	a, err := h.service.Cancel(c.UserContext(), c.Params("id"), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"auction": toResponse(a)})
}

// Get returns one auction with its bid history.
func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	bids := make([]bidResponse, 0, len(d.Bids))
	for _, b := range d.Bids {
		bids = append(bids, bidResponse{BidderID: b.BidderID, Amount: b.Amount, CreatedAt: b.CreatedAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"auction": toResponse(d.Auction), "bids": bids})
}

// List returns active auctions. ?itemType narrows by kind, ?buyout=true
// keeps only listings with a buyout price.
func (h *Handler) List(c *fiber.Ctx) error {
	auctions, err := h.service.ListActive(c.UserContext(), store.AuctionFilter{
		ItemType:   store.ItemType(c.Query("itemType")),
		BuyoutOnly: c.QueryBool("buyout"),
	})
	if err != nil {
		return err
	}
	out := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toResponse(a))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"auctions": out})
}
