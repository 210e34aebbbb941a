package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/store"
)

func TestDefaultCatalogParses(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, c.Materials)

	npc, ok := c.NPC("npc:fishmonger")
	require.True(t, ok)
	require.Equal(t, "1", npc.Modifier().String())

	job, ok := c.Job("mend_nets")
	require.True(t, ok)
	require.Equal(t, "0.005", job.PayAmount().String())
}

func TestParseRejectsUnknownStock(t *testing.T) {
	_, err := Parse([]byte(`
materials:
  - id: kelp_fronds
    base_price: "0.01"
npcs:
  - id: fishmonger
    stock:
      dragon_scale: 1
`))
	require.ErrorContains(t, err, "unknown material dragon_scale")
}

func TestParseRejectsBadPrice(t *testing.T) {
	_, err := Parse([]byte(`
materials:
  - id: kelp_fronds
    base_price: "cheap"
`))
	require.Error(t, err)
}

func TestSyncIsRepeatable(t *testing.T) {
	ctx := context.Background()
	c, err := Load("")
	require.NoError(t, err)
	s := store.NewMemory()
	led := ledger.New(logging.Discard(), ledger.Options{})
	inv := inventory.New()

	require.NoError(t, Sync(ctx, s, c, led, inv, logging.Discard()))
	require.NoError(t, Sync(ctx, s, c, led, inv, logging.Discard()))

	bank, err := ledger.BalanceOf(ctx, s, led, ledger.BankWallet)
	require.NoError(t, err)
	require.Equal(t, "100", bank.String())

	fish, err := ledger.BalanceOf(ctx, s, led, "npc:fishmonger")
	require.NoError(t, err)
	require.Equal(t, "5", fish.String())

	_ = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		q, err := inv.Quantity(ctx, tx, "npc:fishmonger", "kelp_fronds")
		require.NoError(t, err)
		require.EqualValues(t, 200, q)

		report, err := led.Reconcile(ctx, tx)
		require.NoError(t, err)
		require.True(t, report.Balanced)
		return nil
	})
}
