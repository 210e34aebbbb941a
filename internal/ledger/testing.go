package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/store"
)

// SeedBalance is a test helper that funds a wallet through an audited mint so
// conservation checks still balance afterwards.
func SeedBalance(ctx context.Context, s store.Store, l *Ledger, walletID string, amount string) error {
	return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := l.Mint(ctx, tx, walletID, decimal.RequireFromString(amount), "seed")
		return err
	})
}

// BalanceOf reads a wallet balance in its own unit of work.
func BalanceOf(ctx context.Context, s store.Store, l *Ledger, walletID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		bal, err = l.Balance(ctx, tx, walletID)
		return err
	})
	return bal, err
}
