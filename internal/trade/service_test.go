package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/notification"
	"github.com/deepwater-mud/economy/internal/store"
)

var epoch = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Memory
	led   *ledger.Ledger
	inv   *inventory.Inventory
	rec   *notification.Recorder
	svc   *Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	led := ledger.New(logging.Discard(), ledger.Options{})
	inv := inventory.New()
	f := &fixture{store: s, led: led, inv: inv, rec: &notification.Recorder{}, now: epoch}
	f.svc = NewService(s, led, inv, f.rec, 72*time.Hour, logging.Discard())
	f.svc.Clock = func() time.Time { return f.now }

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, m := range []store.Material{
			{ID: "kelp_fronds", Name: "Kelp Fronds", BasePrice: decimal.RequireFromString("0.01"), Tradeable: true},
			{ID: "sea_glass", Name: "Sea Glass", BasePrice: decimal.RequireFromString("0.05"), Tradeable: true},
			{ID: "drowned_sigil", Name: "Drowned Sigil", BasePrice: decimal.RequireFromString("1")},
		} {
			if err := tx.InsertMaterial(ctx, m); err != nil {
				return err
			}
		}
		if err := tx.SetMaterialQuantity(ctx, "alice", "kelp_fronds", 4); err != nil {
			return err
		}
		if err := tx.SetMaterialQuantity(ctx, "alice", "drowned_sigil", 1); err != nil {
			return err
		}
		return tx.SetMaterialQuantity(ctx, "bob", "sea_glass", 3)
	}))
	require.NoError(t, ledger.SeedBalance(ctx, s, led, "player:alice", "10"))
	require.NoError(t, ledger.SeedBalance(ctx, s, led, "player:bob", "2"))
	return f
}

func (f *fixture) balance(t *testing.T, character string) string {
	t.Helper()
	b, err := ledger.BalanceOf(context.Background(), f.store, f.led, ledger.WalletFor(character))
	require.NoError(t, err)
	return b.String()
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

func (f *fixture) reconcile(t *testing.T) ledger.Report {
	t.Helper()
	var r ledger.Report
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = f.led.Reconcile(ctx, tx)
		return err
	}))
	return r
}

func lines(pairs ...any) []store.MaterialLine {
	var out []store.MaterialLine
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, store.MaterialLine{MaterialID: pairs[i].(string), Quantity: int64(pairs[i+1].(int))})
	}
	return out
}

func TestAcceptExchangesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.CreateOffer(ctx, CreateInput{
		FromID:            "alice",
		ToID:              "bob",
		OfferingCurrency:  decimal.RequireFromString("1.5"),
		OfferingMaterials: lines("kelp_fronds", 2),
		WantingCurrency:   decimal.RequireFromString("0.5"),
		WantingMaterials:  lines("sea_glass", 3),
		TTL:               time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, epoch.Add(time.Hour), created.ExpiresAt)
	require.Equal(t, "8.5", f.balance(t, "alice"))
	require.EqualValues(t, 2, f.quantity(t, "alice", "kelp_fronds"))
	require.Len(t, f.rec.Messages(notification.KindOfferReceived), 1)

	results, err := f.svc.AcceptOffer(ctx, created.OfferID, "bob")
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, "9", f.balance(t, "alice"))
	require.Equal(t, "3", f.balance(t, "bob"))
	require.EqualValues(t, 3, f.quantity(t, "alice", "sea_glass"))
	require.EqualValues(t, 2, f.quantity(t, "bob", "kelp_fronds"))
	require.EqualValues(t, 0, f.quantity(t, "bob", "sea_glass"))
	require.True(t, f.reconcile(t).Balanced)
	require.Len(t, f.rec.Messages(notification.KindOfferAccepted), 1)

	_, err = f.svc.AcceptOffer(ctx, created.OfferID, "bob")
	require.True(t, errors.Is(err, apperr.ErrInvalidState), "double accept")
}

func TestCreateOfferIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOffer(context.Background(), CreateInput{
		FromID:            "alice",
		OfferingCurrency:  decimal.RequireFromString("5"),
		OfferingMaterials: lines("kelp_fronds", 9),
		TTL:               time.Hour,
	})
	require.True(t, errors.Is(err, apperr.ErrInsufficientMaterials))
	require.Equal(t, "10", f.balance(t, "alice"), "currency lock rolled back")
	require.EqualValues(t, 4, f.quantity(t, "alice", "kelp_fronds"))

	_, err = f.svc.CreateOffer(context.Background(), CreateInput{
		FromID:            "alice",
		OfferingMaterials: lines("drowned_sigil", 1),
		TTL:               time.Hour,
	})
	require.True(t, errors.Is(err, apperr.ErrValidation), "untradeable material")

	_, err = f.svc.CreateOffer(context.Background(), CreateInput{FromID: "alice", OfferingCurrency: decimal.NewFromInt(1), TTL: 100 * time.Hour})
	require.True(t, errors.Is(err, apperr.ErrValidation), "ttl over the maximum")
}

func TestAcceptChecksParties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", ToID: "bob", OfferingCurrency: decimal.NewFromInt(1), TTL: time.Hour})
	require.NoError(t, err)

	_, err = f.svc.AcceptOffer(ctx, created.OfferID, "carol")
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))
	_, err = f.svc.AcceptOffer(ctx, created.OfferID, "alice")
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))
	_, err = f.svc.AcceptOffer(ctx, "missing", "bob")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAccepterMustCoverWantingSide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateOffer(ctx, CreateInput{
		FromID:           "alice",
		OfferingCurrency: decimal.NewFromInt(1),
		WantingCurrency:  decimal.NewFromInt(5),
		TTL:              time.Hour,
	})
	require.NoError(t, err)

	_, err = f.svc.AcceptOffer(ctx, created.OfferID, "bob")
	require.True(t, errors.Is(err, apperr.ErrInsufficientFunds))
	require.Equal(t, "2", f.balance(t, "bob"))

	offer, err := f.svc.GetOffer(ctx, created.OfferID, "bob")
	require.NoError(t, err)
	require.Equal(t, store.OfferPending, offer.Status)
}

func TestRejectAndCancelReturnEscrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", ToID: "bob", OfferingCurrency: decimal.NewFromInt(2), OfferingMaterials: lines("kelp_fronds", 4), TTL: time.Hour})
	require.NoError(t, err)
	_, err = f.svc.RejectOffer(ctx, first.OfferID, "carol")
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))

	offer, err := f.svc.RejectOffer(ctx, first.OfferID, "bob")
	require.NoError(t, err)
	require.Equal(t, store.OfferRejected, offer.Status)
	require.Equal(t, "10", f.balance(t, "alice"))
	require.EqualValues(t, 4, f.quantity(t, "alice", "kelp_fronds"))

	second, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", OfferingCurrency: decimal.NewFromInt(3), TTL: time.Hour})
	require.NoError(t, err)
	offer, err = f.svc.RejectOffer(ctx, second.OfferID, "alice")
	require.NoError(t, err)
	require.Equal(t, store.OfferCancelled, offer.Status)
	require.Equal(t, "10", f.balance(t, "alice"))
	require.True(t, f.reconcile(t).Balanced)
}

func TestOfferTimesOutOnFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", OfferingCurrency: decimal.NewFromInt(5), TTL: time.Minute})
	require.NoError(t, err)
	require.Equal(t, "5", f.balance(t, "alice"))

	f.now = epoch.Add(2 * time.Minute)
	offer, err := f.svc.GetOffer(ctx, created.OfferID, "bob")
	require.NoError(t, err)
	require.Equal(t, store.OfferExpired, offer.Status)
	require.Equal(t, "10", f.balance(t, "alice"))
	require.Equal(t, "2", f.balance(t, "bob"))

	_, err = f.svc.AcceptOffer(ctx, created.OfferID, "bob")
	require.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestAcceptAfterDeadlineExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", OfferingCurrency: decimal.NewFromInt(5), TTL: time.Minute})
	require.NoError(t, err)

	f.now = epoch.Add(2 * time.Minute)
	_, err = f.svc.AcceptOffer(ctx, created.OfferID, "bob")
	require.True(t, errors.Is(err, apperr.ErrExpired))
	require.Equal(t, "10", f.balance(t, "alice"), "expiry committed even though the accept failed")
	require.Equal(t, "2", f.balance(t, "bob"))
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", OfferingCurrency: decimal.NewFromInt(5), OfferingMaterials: lines("kelp_fronds", 1), TTL: time.Minute})
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, CreateInput{FromID: "bob", OfferingMaterials: lines("sea_glass", 1), TTL: time.Hour})
	require.NoError(t, err)

	f.now = epoch.Add(2 * time.Minute)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, "10", f.balance(t, "alice"))
	require.EqualValues(t, 4, f.quantity(t, "alice", "kelp_fronds"))
	require.EqualValues(t, 2, f.quantity(t, "bob", "sea_glass"), "unexpired offer keeps its escrow")
	require.True(t, f.reconcile(t).Balanced)
	require.Len(t, f.rec.Messages(notification.KindOfferExpired), 1)
}

func TestListOffersIncludesOpenOffers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", OfferingCurrency: decimal.NewFromInt(1), TTL: time.Hour})
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, CreateInput{FromID: "alice", ToID: "dave", OfferingCurrency: decimal.NewFromInt(1), TTL: time.Hour})
	require.NoError(t, err)

	offers, err := f.svc.ListOffers(ctx, "bob", "")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Empty(t, offers[0].ToID)

	offers, err = f.svc.ListOffers(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, offers, 2)
}
