package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("load offer: %w", NotFound("offer %s", "abc"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.Is(err, ErrInvalidState) {
		t.Fatalf("did not expect invalid state match")
	}
}

func TestShortfallMessage(t *testing.T) {
	err := InsufficientFunds("player:1", decimal.RequireFromString("0.5"), decimal.RequireFromString("2"))
	want := "insufficient funds in player:1 (have 0.5, need 2)"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Validation("bad"):                     http.StatusBadRequest,
		InsufficientMaterials("a", "b", 1, 2): http.StatusPaymentRequired,
		InsufficientLiquidity("npc:x", decimal.Zero, decimal.NewFromInt(1)): http.StatusConflict,
		Expired("gone"):    http.StatusGone,
		Unauthorized("no"): http.StatusForbidden,
		errors.New("boom"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := HTTPStatus(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}
