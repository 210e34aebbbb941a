package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertWallet(ctx, Wallet{ID: "player:a", Kind: WalletPlayer, Balance: decimal.NewFromInt(5)}); err != nil {
			t.Fatalf("insert wallet: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetWallet(ctx, "player:a", false)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wallet to be rolled back, got %v", err)
	}
}

func TestMemoryCommitKeepsOfferLinesIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	lines := []MaterialLine{{MaterialID: "kelp_fronds", Quantity: 2}}

	err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertOffer(ctx, TradeOffer{ID: "o1", FromID: "a", OfferingMaterials: lines, Status: OfferPending})
	})
	if err != nil {
		t.Fatalf("insert offer: %v", err)
	}
	lines[0].Quantity = 99

	var got TradeOffer
	_ = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err = tx.GetOffer(ctx, "o1", true)
		return err
	})
	if got.OfferingMaterials[0].Quantity != 2 {
		t.Fatalf("offer lines aliased caller slice: %+v", got.OfferingMaterials)
	}
}

func TestZeroQuantityStackIsPruned(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_ = tx.SetMaterialQuantity(ctx, "a", "kelp_fronds", 3)
		_ = tx.SetMaterialQuantity(ctx, "a", "kelp_fronds", 0)
		stacks, _ := tx.ListStacks(ctx, "a")
		if len(stacks) != 0 {
			t.Fatalf("expected no stacks, got %+v", stacks)
		}
		return nil
	})
}

func TestPendingOutboxHonoursSchedule(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()
	_ = s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_ = tx.InsertOutbox(ctx, OutboxMessage{ID: "due", Status: OutboxPending, NextAttemptAt: now.Add(-time.Second)})
		_ = tx.InsertOutbox(ctx, OutboxMessage{ID: "later", Status: OutboxPending, NextAttemptAt: now.Add(time.Hour)})
		_ = tx.InsertOutbox(ctx, OutboxMessage{ID: "done", Status: OutboxSent, NextAttemptAt: now.Add(-time.Hour)})
		return nil
	})

	due, err := s.PendingOutbox(ctx, now, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("unexpected due messages: %+v", due)
	}
}

func TestStatusTransitions(t *testing.T) {
	if !OfferPending.CanTransition(OfferExpired) {
		t.Fatal("pending offers must be able to expire")
	}
	if OfferCompleted.CanTransition(OfferPending) || !OfferCompleted.Terminal() {
		t.Fatal("completed offers are terminal")
	}
	if AuctionSold.CanTransition(AuctionExpired) {
		t.Fatal("sold auctions are terminal")
	}
	if !AuctionActive.CanTransition(AuctionCancelled) {
		t.Fatal("active auctions can be cancelled")
	}
}

func TestMemoryLedgerFlowMatchesExactOrPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	d := decimal.RequireFromString
	entries := []LedgerTransaction{
		{ID: "1", FromWallet: "mint:emissions", ToWallet: "player:a", Amount: d("5")},
		{ID: "2", FromWallet: "player:a", ToWallet: "escrow:trade:o1", Amount: d("2")},
		{ID: "3", FromWallet: "player:a", ToWallet: "escrow:auction:x", Amount: d("1")},
		{ID: "4", FromWallet: "escrow:trade:o1", ToWallet: "player:b", Amount: d("0.5")},
	}

	err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, lt := range entries {
			if err := tx.InsertLedgerTransaction(ctx, lt); err != nil {
				return err
			}
		}
		one, err := tx.LedgerFlow(ctx, "escrow:trade:o1", false)
		if err != nil {
			return err
		}
		if !one.Net().Equal(d("1.5")) {
			t.Fatalf("escrow o1 net = %s", one.Net())
		}
		all, err := tx.LedgerFlow(ctx, "escrow:", true)
		if err != nil {
			return err
		}
		if !all.In.Equal(d("3")) || !all.Out.Equal(d("0.5")) {
			t.Fatalf("escrow flows = %+v", all)
		}
		mint, err := tx.LedgerFlow(ctx, "mint:emissions", false)
		if err != nil {
			return err
		}
		if !mint.Out.Equal(d("5")) || !mint.In.IsZero() {
			t.Fatalf("mint flows = %+v", mint)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ledger flow: %v", err)
	}
}

func TestLimitOrAllTreatsZeroAsUnbounded(t *testing.T) {
	if got := limitOrAll(0); got < 1<<20 {
		t.Fatalf("limitOrAll(0) = %d", got)
	}
	if got := limitOrAll(-1); got < 1<<20 {
		t.Fatalf("limitOrAll(-1) = %d", got)
	}
	if got := limitOrAll(25); got != 25 {
		t.Fatalf("limitOrAll(25) = %d", got)
	}
}
