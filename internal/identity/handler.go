package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/middleware"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type characterResponse struct {
	CharacterID string     `json:"characterId"`
	Name        string     `json:"name"`
	WalletID    string     `json:"walletId"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

func toResponse(ch Character) characterResponse {
	return characterResponse{
		CharacterID: ch.ID,
		Name:        ch.Name,
		WalletID:    "player:" + ch.ID,
		CreatedAt:   ch.CreatedAt,
		LastLogin:   ch.LastLogin,
	}
}

// Register handles character creation.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	ch, err := h.service.Register(c.UserContext(), Credentials{Name: req.Name, PIN: req.PIN})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(ch))
}

// Me returns the authenticated character.
func (h *Handler) Me(c *fiber.Ctx) error {
	ch, err := h.service.Lookup(c.UserContext(), middleware.CharacterID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(ch))
}
