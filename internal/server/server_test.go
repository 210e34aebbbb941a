package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/deepwater-mud/economy/internal/catalog"
	"github.com/deepwater-mud/economy/internal/config"
	"github.com/deepwater-mud/economy/internal/logging"
)

const adminToken = "harbourmaster"

func testConfig() config.Config {
	return config.Config{
		AppName:         "economy-test",
		AppEnv:          "test",
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		AdminToken:      adminToken,
		Economy: config.EconomyConfig{
			LoanMin:              decimal.RequireFromString("0.01"),
			LoanMax:              decimal.RequireFromString("5"),
			LoanDailyRate:        decimal.RequireFromString("0.05"),
			LoanTerm:             7 * 24 * time.Hour,
			AuctionTaxRate:       decimal.RequireFromString("0.05"),
			AuctionMinDuration:   time.Hour,
			AuctionMaxDuration:   72 * time.Hour,
			TradeMaxTTL:          72 * time.Hour,
			EmissionAnnualRate:   decimal.RequireFromString("0.07"),
			EmissionReserve:      decimal.RequireFromString("100"),
			PriceOracleRate:      decimal.NewFromInt(1),
			EnforcementCooldown:  20 * time.Hour,
			EnforcementBaseUnits: 1,
			JailPerUnit:          240 * time.Hour,
			JailMin:              time.Hour,
			JailMax:              72 * time.Hour,
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cat, err := catalog.Load("")
	require.NoError(t, err)
	srv, err := New(context.Background(), testConfig(), Infra{}, cat, logging.Discard())
	require.NoError(t, err)
	return srv
}

type call struct {
	method string
	path   string
	body   string
	token  string
	admin  bool
}

func (s *Server) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return res.StatusCode, out
}

func login(t *testing.T, s *Server, name string) string {
	t.Helper()
	status, _ := s.do(t, call{method: http.MethodPost, path: "/api/v1/characters/register", body: `{"name":"` + name + `","pin":"1234"}`})
	require.Equal(t, http.StatusCreated, status)
	status, body := s.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: `{"name":"` + name + `","pin":"1234"}`})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["accessToken"].(string)
	require.NotEmpty(t, token)
	return token
}

func walletBalance(t *testing.T, s *Server, token string) string {
	t.Helper()
	status, body := s.do(t, call{method: http.MethodGet, path: "/api/v1/economy/wallet", token: token})
	require.Equal(t, http.StatusOK, status)
	w, _ := body["wallet"].(map[string]any)
	amount, _ := w["balance"].(string)
	return amount
}

func TestPlayerFlow(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	require.Equal(t, "0", walletBalance(t, s, token))

	status, body := s.do(t, call{method: http.MethodPost, path: "/api/v1/economy/bank/loan", body: `{"amount":"0.5"}`, token: token})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.do(t, call{method: http.MethodPost, path: "/api/v1/economy/buy", body: `{"materialId":"kelp_fronds","quantity":2,"npcId":"fishmonger"}`, token: token})
	require.Equal(t, http.StatusOK, status, body)
	bought, _ := body["bought"].(map[string]any)
	require.Equal(t, "0.025", bought["totalPrice"])
	require.Equal(t, "0.475", walletBalance(t, s, token))

	status, body = s.do(t, call{method: http.MethodPost, path: "/api/v1/economy/sell", body: `{"materialId":"kelp_fronds","quantity":5,"npcId":"fishmonger"}`, token: token})
	require.Equal(t, http.StatusPaymentRequired, status)
	errBody, _ := body["error"].(map[string]any)
	require.Equal(t, "2", errBody["have"])
	require.Equal(t, "5", errBody["need"])

	status, body = s.do(t, call{method: http.MethodGet, path: "/api/v1/economy/reconcile", admin: true})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["balanced"])
}

func TestAuthBoundaries(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "bob")

	status, _ := s.do(t, call{method: http.MethodGet, path: "/api/v1/economy/wallet"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, call{method: http.MethodGet, path: "/api/v1/economy/reconcile", token: token})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, call{method: http.MethodPost, path: "/api/v1/economy/enforce", admin: true})
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, call{method: http.MethodGet, path: "/api/v1/characters/me", token: token})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "bob", body["name"])
}

func TestCreateBodiesAreSchemaChecked(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "carol")

	status, body := s.do(t, call{method: http.MethodPost, path: "/api/v1/economy/trades", body: `{"offeringUsdc":"-1"}`, token: token})
	require.Equal(t, http.StatusBadRequest, status)
	errBody, _ := body["error"].(map[string]any)
	require.Equal(t, "validation", errBody["kind"])

	status, _ = s.do(t, call{method: http.MethodPost, path: "/api/v1/economy/auctions", body: `{"itemType":"ship"}`, token: token})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestJobsAndHealth(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "dora")

	status, body := s.do(t, call{method: http.MethodGet, path: "/api/v1/economy/jobs", token: token})
	require.Equal(t, http.StatusOK, status)
	jobs, _ := body["jobs"].([]any)
	require.Len(t, jobs, 2)

	status, body = s.do(t, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, status)
	health, _ := body["status"].(map[string]any)
	require.Equal(t, "memory", health["postgres"])
}
