package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/catalog"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/store"
)

const testCatalog = `
materials:
  - id: kelp_fronds
    name: Kelp Fronds
    base_price: "0.01"
    tradeable: true
  - id: drowned_sigil
    name: Drowned Sigil
    base_price: "1"
npcs:
  - id: fishmonger
    name: Old Maren
    stock_modifier: "1.0"
    markup: "0.5"
    seed_balance: "0.03"
    stock:
      kelp_fronds: 1
`

type fixture struct {
	store *store.Memory
	led   *ledger.Ledger
	inv   *inventory.Inventory
	svc   *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	s := store.NewMemory()
	led := ledger.New(logging.Discard(), ledger.Options{})
	inv := inventory.New()
	require.NoError(t, catalog.Sync(ctx, s, cat, led, inv, logging.Discard()))
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetMaterialQuantity(ctx, "alice", "kelp_fronds", 3)
	}))
	return fixture{store: s, led: led, inv: inv, svc: NewService(s, led, inv, cat, logging.Discard())}
}

func (f fixture) quantity(t *testing.T, owner, material string) int64 {
	t.Helper()
	var q int64
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		q, err = f.inv.Quantity(ctx, tx, owner, material)
		return err
	}))
	return q
}

func (f fixture) balance(t *testing.T, wallet string) string {
	t.Helper()
	b, err := ledger.BalanceOf(context.Background(), f.store, f.led, wallet)
	require.NoError(t, err)
	return b.String()
}

func TestSellToMerchant(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.svc.Sell(context.Background(), Input{CharacterID: "alice", MaterialID: "kelp_fronds", Quantity: 2, NPCID: "fishmonger"})
	require.NoError(t, err)

	require.Equal(t, "0.02", receipt.TotalPrice.String())
	require.Equal(t, "0.01", receipt.PricePerUnit.String())
	require.Equal(t, "0.01", f.balance(t, "npc:fishmonger"))
	require.Equal(t, "0.02", f.balance(t, "player:alice"))
	require.EqualValues(t, 1, f.quantity(t, "alice", "kelp_fronds"))
	require.EqualValues(t, 3, f.quantity(t, "npc:fishmonger", "kelp_fronds"))
}

func TestSellFailsWhenMerchantIsShort(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Sell(context.Background(), Input{CharacterID: "alice", MaterialID: "kelp_fronds", Quantity: 3, NPCID: "fishmonger"})
	require.NoError(t, err)

	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetMaterialQuantity(ctx, "bob", "kelp_fronds", 5)
	}))
	_, err = f.svc.Sell(context.Background(), Input{CharacterID: "bob", MaterialID: "kelp_fronds", Quantity: 5, NPCID: "fishmonger"})
	require.True(t, errors.Is(err, apperr.ErrInsufficientLiquidity), "got %v", err)
	require.EqualValues(t, 5, f.quantity(t, "bob", "kelp_fronds"), "goods stay with the seller on failure")
}

func TestBuyAppliesMarkup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, ledger.SeedBalance(context.Background(), f.store, f.led, "player:alice", "1"))

	receipt, err := f.svc.Buy(context.Background(), Input{CharacterID: "alice", MaterialID: "kelp_fronds", Quantity: 1, NPCID: "fishmonger"})
	require.NoError(t, err)
	require.Equal(t, "0.015", receipt.TotalPrice.String())
	require.Equal(t, "0.985", f.balance(t, "player:alice"))

	_, err = f.svc.Buy(context.Background(), Input{CharacterID: "alice", MaterialID: "kelp_fronds", Quantity: 1, NPCID: "fishmonger"})
	require.True(t, errors.Is(err, apperr.ErrInsufficientMaterials), "merchant is out of stock")
}

func TestRejectsUntradeableAndUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Sell(context.Background(), Input{CharacterID: "alice", MaterialID: "drowned_sigil", Quantity: 1, NPCID: "fishmonger"})
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.Sell(context.Background(), Input{CharacterID: "alice", MaterialID: "kelp_fronds", Quantity: 1, NPCID: "kraken"})
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}
