package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/store"
)

func TestServiceProvisionAndBalance(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	led := ledger.New(logging.Discard(), ledger.Options{})
	svc := NewService(s, led, inventory.New())

	if _, err := svc.Balance(ctx, "alice"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found before provisioning, got %v", err)
	}

	w, err := svc.Provision(ctx, "alice")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if w.ID != "player:alice" || w.Kind != store.WalletPlayer {
		t.Fatalf("unexpected wallet %+v", w)
	}

	if err := ledger.SeedBalance(ctx, s, led, w.ID, "2.5"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	balance, err := svc.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount.String() != "2.5" {
		t.Fatalf("expected balance 2.5, got %s", balance.Amount)
	}

	history, err := svc.History(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Direction != "in" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestSetExternalAddressValidates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s, ledger.New(logging.Discard(), ledger.Options{}), inventory.New())

	if err := svc.SetExternalAddress(ctx, "alice", "not an address"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	addr := "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
	if err := svc.SetExternalAddress(ctx, "alice", addr); err != nil {
		t.Fatalf("set address: %v", err)
	}
	balance, err := svc.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.ExternalAddress != addr {
		t.Fatalf("address not stored: %+v", balance)
	}
}
