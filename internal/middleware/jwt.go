package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// TokenVerifier resolves an access token to the character it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (string, error)
}

// JWTAuth returns a middleware that validates access tokens and stores the
// caller's character id for handlers.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		characterID, err := verifier.Verify(c.UserContext(), tokenStr)
		if err != nil || characterID == "" {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(characterIDKey, characterID)
		return c.Next()
	}
}

const adminTokenHeader = "X-Admin-Token"

// AdminToken guards operator endpoints. An empty configured token disables
// them entirely.
func AdminToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return fiber.NewError(http.StatusForbidden, "admin endpoints are disabled")
		}
		got := c.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return fiber.NewError(http.StatusForbidden, "invalid admin token")
		}
		return c.Next()
	}
}
