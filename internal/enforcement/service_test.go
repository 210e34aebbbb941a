package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/bank"
	mock_enforcement "github.com/deepwater-mud/economy/internal/enforcement/mock"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/notification"
	"github.com/deepwater-mud/economy/internal/store"
)

var epoch = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.Memory
	inv    *inventory.Inventory
	combat *mock_enforcement.MockCombat
	world  *mock_enforcement.MockWorld
	rec    *notification.Recorder
	svc    *Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	s := store.NewMemory()
	inv := inventory.New()
	f := &fixture{
		store:  s,
		inv:    inv,
		combat: mock_enforcement.NewMockCombat(ctrl),
		world:  mock_enforcement.NewMockWorld(ctrl),
		rec:    &notification.Recorder{},
		now:    epoch,
	}
	f.svc = NewService(s, inv, f.combat, f.world, f.rec, Config{
		Cooldown:         20 * time.Hour,
		EncounterTimeout: 2 * time.Hour,
		BaseUnits:        1,
		XPReward:         25,
		JailPerUnit:      240 * time.Hour,
		JailMin:          time.Hour,
		JailMax:          72 * time.Hour,
		ReleaseLocation:  "harbour_gate",
	}, logging.Discard())
	f.svc.Clock = func() time.Time { return f.now }

	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, m := range []store.Material{
			{ID: "coral_shard", Name: "Coral Shard", BasePrice: decimal.RequireFromString("0.1"), Tradeable: true},
			{ID: "kelp_fronds", Name: "Kelp Fronds", BasePrice: decimal.RequireFromString("0.01"), Tradeable: true},
			{ID: "drowned_sigil", Name: "Drowned Sigil", BasePrice: decimal.Zero},
		} {
			if err := tx.InsertMaterial(ctx, m); err != nil {
				return err
			}
		}
		return nil
	}))
	return f
}

// owe gives the character a 0.5 loan that fell due ten days ago.
func (f *fixture) owe(t *testing.T, characterID string, escapes int, lastEnforcement *time.Time) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		a, err := bank.Account(ctx, tx, characterID, f.now)
		if err != nil {
			return err
		}
		issued := f.now.Add(-17 * 24 * time.Hour)
		due := f.now.Add(-10 * 24 * time.Hour)
		a.LoanBalance = decimal.RequireFromString("0.5")
		a.LoanInterestRateDaily = decimal.RequireFromString("0.05")
		a.LoanIssuedAt = &issued
		a.LoanDueDate = &due
		a.EnforcementCount = escapes
		a.LastEnforcement = lastEnforcement
		return tx.UpdateBankAccount(ctx, a)
	}))
}

func (f *fixture) hold(t *testing.T, owner, material string, qty int64) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetMaterialQuantity(ctx, owner, material, qty)
	}))
}

func (f *fixture) quantity(t *testing.T, owner, material string) int64 {
	t.Helper()
	var q int64
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		q, err = f.inv.Quantity(ctx, tx, owner, material)
		return err
	}))
	return q
}

func (f *fixture) startEncounter(t *testing.T, characterID, encounterID string) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SaveCharacterStatus(ctx, store.CharacterStatus{CharacterID: characterID, ActiveEncounterID: encounterID, UpdatedAt: f.now})
	}))
}

func (f *fixture) account(t *testing.T, characterID string) store.BankAccount {
	t.Helper()
	var a store.BankAccount
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = bank.Account(ctx, tx, characterID, f.now)
		return err
	}))
	return a
}

func TestSweepSpawnsScaledEncounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 2, nil)

	f.world.EXPECT().InProtectedZone(gomock.Any(), "alice").Return(false, nil).Times(2)
	f.combat.EXPECT().SpawnEncounter(gomock.Any(), gomock.Any(), "alice", 3).Return(nil)

	results, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ActionEncounter, results[0].Action)
	require.Equal(t, 3, results[0].Units)
	require.Equal(t, "0.5", results[0].Debt.String())
	require.Len(t, f.rec.Messages(notification.KindEncounter), 1)

	results, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionSkipped, results[0].Action)
	require.Equal(t, "encounter_active", results[0].Reason)
}

func TestUnresolvedEncounterExpiresAndCollectionResumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 0, nil)

	var first, second string
	f.world.EXPECT().InProtectedZone(gomock.Any(), "alice").Return(false, nil).Times(4)
	gomock.InOrder(
		f.combat.EXPECT().SpawnEncounter(gomock.Any(), gomock.Any(), "alice", 1).
			DoAndReturn(func(_ context.Context, id, _ string, _ int) error { first = id; return nil }),
		f.combat.EXPECT().SpawnEncounter(gomock.Any(), gomock.Any(), "alice", 2).
			DoAndReturn(func(_ context.Context, id, _ string, _ int) error { second = id; return nil }),
	)

	results, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionEncounter, results[0].Action)

	f.now = f.now.Add(time.Hour)
	results, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, "encounter_active", results[0].Reason)

	f.now = f.now.Add(23 * time.Hour)
	results, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionExpired, results[0].Action)
	require.Equal(t, first, results[0].EncounterID)
	a := f.account(t, "alice")
	require.Equal(t, 1, a.EnforcementCount)
	require.NotNil(t, a.LastEnforcement)

	_, err = f.svc.ResolveEncounter(ctx, "alice", first, false)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	f.now = f.now.Add(21 * time.Hour)
	results, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionEncounter, results[0].Action)
	require.Equal(t, 2, results[0].Units)
	require.Equal(t, second, results[0].EncounterID)
	require.NotEqual(t, first, second)
}

func TestSweepSkipsJailedCoolingAndProtected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	recent := f.now.Add(-5 * time.Hour)
	f.owe(t, "bob", 0, nil)
	f.owe(t, "carol", 1, &recent)
	f.owe(t, "dave", 0, nil)
	jailedUntil := f.now.Add(time.Hour)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveCharacterStatus(ctx, store.CharacterStatus{CharacterID: "bob", JailedUntil: &jailedUntil, UpdatedAt: f.now})
	}))

	f.world.EXPECT().InProtectedZone(gomock.Any(), "bob").Return(false, nil)
	f.world.EXPECT().InProtectedZone(gomock.Any(), "carol").Return(false, nil)
	f.world.EXPECT().InProtectedZone(gomock.Any(), "dave").Return(true, nil)

	results, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	reasons := map[string]string{}
	for _, r := range results {
		require.Equal(t, ActionSkipped, r.Action)
		reasons[r.CharacterID] = r.Reason
	}
	require.Equal(t, map[string]string{"bob": "jailed", "carol": "cooldown", "dave": "protected_zone"}, reasons)
}

func TestSpawnFailureClearsEncounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 0, nil)

	f.world.EXPECT().InProtectedZone(gomock.Any(), "alice").Return(false, nil)
	f.combat.EXPECT().SpawnEncounter(gomock.Any(), gomock.Any(), "alice", 1).Return(errors.New("combat engine offline"))

	results, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionFailed, results[0].Action)

	view, err := f.svc.Status(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, view.ActiveEncounterID)
	require.True(t, view.Overdue)
}

func TestDefeatSeizesGoodsAndJailsForRemainder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 0, nil)
	f.hold(t, "alice", "coral_shard", 3)
	f.hold(t, "alice", "drowned_sigil", 1)
	f.startEncounter(t, "alice", "enc-1")

	res, err := f.svc.ResolveEncounter(ctx, "alice", "enc-1", false)
	require.NoError(t, err)
	require.Equal(t, "0.3", res.Collected.String())
	require.Equal(t, "0.2", res.RemainingLoan.String())
	require.False(t, res.PaidInFull)
	require.NotNil(t, res.JailedUntil)
	require.Equal(t, 48*time.Hour, res.JailedUntil.Sub(f.now), "0.2 owed at 240h a unit")

	require.EqualValues(t, 0, f.quantity(t, "alice", "coral_shard"))
	require.EqualValues(t, 3, f.quantity(t, ledger.BankWallet, "coral_shard"))
	require.EqualValues(t, 1, f.quantity(t, "alice", "drowned_sigil"), "worthless goods are left alone")
	require.Equal(t, "0.2", f.account(t, "alice").LoanBalance.String())
	require.Len(t, f.rec.Messages(notification.KindJailed), 1)

	f.world.EXPECT().InProtectedZone(gomock.Any(), "alice").Return(false, nil)
	results, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, "jailed", results[0].Reason)
}

func TestDefeatTakesMaterialsThenItemsUntilCovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 2, nil)
	f.hold(t, "alice", "coral_shard", 2)
	f.hold(t, "alice", "kelp_fronds", 10)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertItem(ctx, store.Item{ID: "conch-1", OwnerID: "alice", Name: "Singing Conch", Value: decimal.RequireFromString("0.25"), CreatedAt: f.now}); err != nil {
			return err
		}
		return tx.InsertItem(ctx, store.Item{ID: "pebble-1", OwnerID: "alice", Name: "Lucky Pebble", Value: decimal.RequireFromString("0.01"), CreatedAt: f.now})
	}))
	f.startEncounter(t, "alice", "enc-2")

	res, err := f.svc.ResolveEncounter(ctx, "alice", "enc-2", false)
	require.NoError(t, err)
	require.True(t, res.PaidInFull)
	require.Nil(t, res.JailedUntil)
	require.Equal(t, "0.55", res.Collected.String(), "the conch overshoots the last 0.2")
	require.Len(t, res.Seized, 3)
	require.Equal(t, "coral_shard", res.Seized[0].MaterialID)
	require.Equal(t, "kelp_fronds", res.Seized[1].MaterialID)
	require.Equal(t, "conch-1", res.Seized[2].ItemID)

	a := f.account(t, "alice")
	require.False(t, a.HasLoan())
	require.Zero(t, a.EnforcementCount)
	require.Nil(t, a.LoanDueDate)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		conch, err := f.inv.Item(ctx, tx, "conch-1")
		require.NoError(t, err)
		require.Equal(t, ledger.BankWallet, conch.OwnerID)
		pebble, err := f.inv.Item(ctx, tx, "pebble-1")
		require.NoError(t, err)
		require.Equal(t, "alice", pebble.OwnerID)
		return nil
	}))
}

func TestVictoryDelaysButKeepsDebt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 0, nil)
	f.startEncounter(t, "alice", "enc-3")
	f.combat.EXPECT().AwardXP(gomock.Any(), "alice", 25).Return(nil)

	res, err := f.svc.ResolveEncounter(ctx, "alice", "enc-3", true)
	require.NoError(t, err)
	require.Equal(t, "0.5", res.RemainingLoan.String())
	require.Equal(t, 1, res.EnforcementCount)

	view, err := f.svc.Status(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, view.CooldownUntil)
	require.Equal(t, f.now.Add(20*time.Hour), *view.CooldownUntil)

	_, err = f.svc.ResolveEncounter(ctx, "alice", "enc-3", true)
	require.True(t, errors.Is(err, apperr.ErrInvalidState), "an encounter resolves once")

	f.world.EXPECT().InProtectedZone(gomock.Any(), "alice").Return(false, nil)
	results, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, "cooldown", results[0].Reason)

	f.now = f.now.Add(21 * time.Hour)
	f.world.EXPECT().InProtectedZone(gomock.Any(), "alice").Return(false, nil)
	f.combat.EXPECT().SpawnEncounter(gomock.Any(), gomock.Any(), "alice", 2).Return(nil)
	results, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionEncounter, results[0].Action)
}

func TestCheckRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.owe(t, "alice", 0, nil)
	f.hold(t, "alice", "coral_shard", 3)
	f.startEncounter(t, "alice", "enc-4")
	_, err := f.svc.ResolveEncounter(ctx, "alice", "enc-4", false)
	require.NoError(t, err)

	rel, err := f.svc.CheckRelease(ctx, "alice")
	require.NoError(t, err)
	require.False(t, rel.Released)
	require.Equal(t, 48*time.Hour, rel.Remaining)

	f.now = f.now.Add(49 * time.Hour)
	f.world.EXPECT().Relocate(gomock.Any(), "alice", "harbour_gate").Return(nil)
	rel, err = f.svc.CheckRelease(ctx, "alice")
	require.NoError(t, err)
	require.True(t, rel.Released)
	require.Len(t, f.rec.Messages(notification.KindReleased), 1)

	_, err = f.svc.CheckRelease(ctx, "alice")
	require.True(t, errors.Is(err, apperr.ErrInvalidState))
}
