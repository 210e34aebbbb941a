package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/identity"
)

// RegisterIdentityRoutes wires character registration. The handler
// provisions the player wallet as part of registration.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/characters/register", h.Register)
}
