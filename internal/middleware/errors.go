package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deepwater-mud/economy/internal/apperr"
)

const characterIDKey = "character_id"

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Have    string `json:"have,omitempty"`
	Need    string `json:"need,omitempty"`
}

// ErrorHandler renders handler errors as {"error":{...}}. Economy errors keep
// their kind and shortfall; anything unclassified is logged and hidden
// behind a 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			appErr   *apperr.Error
			fiberErr *fiber.Error
			status   = http.StatusInternalServerError
			body     = errorBody{Kind: "internal", Message: "internal error"}
		)
		switch {
		case errors.As(err, &appErr):
			status = apperr.HTTPStatus(appErr)
			body = errorBody{Kind: string(appErr.Kind), Message: appErr.Message}
			if appErr.Have != nil && appErr.Need != nil {
				body.Have = appErr.Have.String()
				body.Need = appErr.Need.String()
			}
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			body = errorBody{Kind: "http", Message: fiberErr.Message}
		default:
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.ErrorContext(c.UserContext(), "unhandled request error",
				slog.String("path", c.Path()), slog.String("request_id", requestID), slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{"error": body})
	}
}

// CharacterID returns the authenticated caller set by JWTAuth.
func CharacterID(c *fiber.Ctx) string {
	id, _ := c.Locals(characterIDKey).(string)
	return id
}
