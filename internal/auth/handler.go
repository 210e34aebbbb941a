package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/identity"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type loginResponse struct {
	CharacterID  string `json:"characterId"`
	WalletID     string `json:"walletId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	ch, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Name: req.Name, PIN: req.PIN})
	if err != nil {
		return err
	}
	pair, err := h.svc.Login(ch)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		CharacterID:  ch.ID,
		WalletID:     "player:" + ch.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accessToken": token, "expiresIn": exp})
}

// Logout invalidates existing tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	if req.RefreshToken == "" {
		return apperr.Validation("refreshToken is required")
	}
	if err := h.svc.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
