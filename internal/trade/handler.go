package trade

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

// Handler exposes trade escrow endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a trade HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// createRequest is validated against the trade_offer schema before it
// reaches the handler. ExpiresIn is in minutes.
type createRequest struct {
	ToCharacterID     string               `json:"toCharacterId"`
	OfferingUsdc      decimal.Decimal      `json:"offeringUsdc"`
	OfferingMaterials []store.MaterialLine `json:"offeringMaterials"`
	WantingUsdc       decimal.Decimal      `json:"wantingUsdc"`
	WantingMaterials  []store.MaterialLine `json:"wantingMaterials"`
	ExpiresIn         int64                `json:"expiresIn"`
}

type offerResponse struct {
	ID                string               `json:"id"`
	FromID            string               `json:"fromId"`
	ToID              string               `json:"toId,omitempty"`
	OfferingUsdc      decimal.Decimal      `json:"offeringUsdc"`
	OfferingMaterials []store.MaterialLine `json:"offeringMaterials"`
	WantingUsdc       decimal.Decimal      `json:"wantingUsdc"`
	WantingMaterials  []store.MaterialLine `json:"wantingMaterials"`
	Status            store.OfferStatus    `json:"status"`
	ExpiresAt         time.Time            `json:"expiresAt"`
	CreatedAt         time.Time            `json:"createdAt"`
	ResolvedAt        *time.Time           `json:"resolvedAt,omitempty"`
}

func toResponse(o store.TradeOffer) offerResponse {
	return offerResponse{
		ID:                o.ID,
		FromID:            o.FromID,
		ToID:              o.ToID,
		OfferingUsdc:      o.OfferingCurrency,
		OfferingMaterials: nonNil(o.OfferingMaterials),
		WantingUsdc:       o.WantingCurrency,
		WantingMaterials:  nonNil(o.WantingMaterials),
		Status:            o.Status,
		ExpiresAt:         o.ExpiresAt,
		CreatedAt:         o.CreatedAt,
		ResolvedAt:        o.ResolvedAt,
	}
}

func nonNil(lines []store.MaterialLine) []store.MaterialLine {
	if lines == nil {
		return []store.MaterialLine{}
	}
	return lines
}

// Create escrows a new offer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	created, err := h.service.CreateOffer(c.UserContext(), CreateInput{
		FromID:            middleware.CharacterID(c),
		ToID:              req.ToCharacterID,
		OfferingCurrency:  req.OfferingUsdc,
		OfferingMaterials: req.OfferingMaterials,
		WantingCurrency:   req.WantingUsdc,
		WantingMaterials:  req.WantingMaterials,
		TTL:               minutes(req.ExpiresIn),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(created)
}

// minutes converts a client expiry, saturating so an oversized value fails
// the max TTL check instead of wrapping.
func minutes(n int64) time.Duration {
	switch {
	case n <= 0:
		return 0
	case n > int64(math.MaxInt64/time.Minute):
		return math.MaxInt64
	}
	return time.Duration(n) * time.Minute
}

// Accept completes an offer for the caller.
func (h *Handler) Accept(c *fiber.Ctx) error {
	results, err := h.service.AcceptOffer(c.UserContext(), c.Params("id"), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"results": results})
}

// Reject cancels (offerer) or rejects (target) an offer.
func (h *Handler) Reject(c *fiber.Ctx) error {
	offer, err := h.service.RejectOffer(c.UserContext(), c.Params("id"), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"offer": toResponse(offer)})
}

// Get returns one offer.
func (h *Handler) Get(c *fiber.Ctx) error {
	offer, err := h.service.GetOffer(c.UserContext(), c.Params("id"), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"offer": toResponse(offer)})
}

// List returns the caller's offers and open offers.
func (h *Handler) List(c *fiber.Ctx) error {
	offers, err := h.service.ListOffers(c.UserContext(), middleware.CharacterID(c), store.OfferStatus(c.Query("status")))
	if err != nil {
		return err
	}
	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toResponse(o))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"offers": out})
}
