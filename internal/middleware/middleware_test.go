package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/logging"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (string, error) {
	id, ok := v[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return id, nil
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
}

func decodeError(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, errorBody) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Error errorBody `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out.Error
}

func TestErrorHandlerRendersShortfall(t *testing.T) {
	app := newApp()
	app.Get("/short", func(c *fiber.Ctx) error {
		return apperr.InsufficientFunds("player:alice", decimal.RequireFromString("0.5"), decimal.RequireFromString("2"))
	})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db down") })

	status, body := decodeError(t, app, "/short", nil)
	if status != fiber.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", status)
	}
	if body.Kind != "insufficient_funds" || body.Have != "0.5" || body.Need != "2" {
		t.Fatalf("unexpected body %+v", body)
	}

	status, body = decodeError(t, app, "/boom", nil)
	if status != fiber.StatusInternalServerError || body.Message != "internal error" {
		t.Fatalf("expected opaque 500, got %d %+v", status, body)
	}
}

func TestJWTAuthSetsCharacter(t *testing.T) {
	app := newApp()
	app.Use(JWTAuth(staticVerifier{"good": "char-1"}))
	app.Get("/me", func(c *fiber.Ctx) error { return c.SendString(CharacterID(c)) })

	status, _ := decodeError(t, app, "/me", nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	status, _ = decodeError(t, app, "/me", map[string]string{"Authorization": "Bearer bad"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAdminToken(t *testing.T) {
	app := newApp()
	app.Get("/off", AdminToken(""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/on", AdminToken("s3cret"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	if status, _ := decodeError(t, app, "/off", map[string]string{adminTokenHeader: ""}); status != fiber.StatusForbidden {
		t.Fatalf("expected disabled admin route, got %d", status)
	}
	if status, _ := decodeError(t, app, "/on", map[string]string{adminTokenHeader: "nope"}); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for wrong token, got %d", status)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/on", nil)
	req.Header.Set(adminTokenHeader, "s3cret")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with admin token, got %v %v", resp, err)
	}
}

func TestRequestIDEchoesOrReplaces(t *testing.T) {
	app := newApp()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "trace-1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); got != "trace-1" {
		t.Fatalf("expected echoed id, got %q", got)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}
