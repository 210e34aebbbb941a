package wallet

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/store"
)

const defaultHistoryLimit = 50

var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// Service exposes the read side of character wallets plus the settlement
// address used to mirror transfers.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	inv    *inventory.Inventory
}

// NewService builds a wallet service instance.
func NewService(s store.Store, led *ledger.Ledger, inv *inventory.Inventory) *Service {
	return &Service{store: s, ledger: led, inv: inv}
}

// Provision creates the character's wallet if it does not exist yet.
func (s *Service) Provision(ctx context.Context, characterID string) (store.Wallet, error) {
	var w store.Wallet
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		w, err = s.ledger.EnsureWallet(ctx, tx, ledger.WalletFor(characterID))
		return err
	})
	return w, err
}

// Balance returns the character's spendable balance. Escrowed funds are not
// included.
func (s *Service) Balance(ctx context.Context, characterID string) (Balance, error) {
	id := ledger.WalletFor(characterID)
	out := Balance{WalletID: id}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWallet(ctx, id, false)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("wallet %s not found", id)
			}
			return err
		}
		out.Amount = w.Balance
		out.ExternalAddress = w.ExternalAddress
		return nil
	})
	out.AsOf = time.Now().UTC()
	return out, err
}

// History lists the wallet's ledger transactions, newest first.
func (s *Service) History(ctx context.Context, characterID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	id := ledger.WalletFor(characterID)
	var entries []Entry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.ListLedgerTransactions(ctx, id, limit)
		if err != nil {
			return err
		}
		entries = make([]Entry, 0, len(rows))
		for _, r := range rows {
			dir := "in"
			if r.FromWallet == id {
				dir = "out"
			}
			entries = append(entries, Entry{
				ID: r.ID, Type: r.Type, From: r.FromWallet, To: r.ToWallet, Amount: r.Amount,
				Direction: dir, Description: r.Description, At: r.CreatedAt,
			})
		}
		return nil
	})
	return entries, err
}

// Holdings lists the character's materials and items.
func (s *Service) Holdings(ctx context.Context, characterID string) (Holdings, error) {
	var h Holdings
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		h.Materials, h.Items, err = s.inv.Holdings(ctx, tx, characterID)
		return err
	})
	if h.Materials == nil {
		h.Materials = []store.MaterialStack{}
	}
	if h.Items == nil {
		h.Items = []store.Item{}
	}
	return h, err
}

// SetExternalAddress records where mirrored transfers to this character are
// settled. An empty address stops mirroring.
func (s *Service) SetExternalAddress(ctx context.Context, characterID, address string) error {
	if address != "" && !addressPattern.MatchString(address) {
		return apperr.Validation("settlement address is not a valid base58 account")
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := s.ledger.EnsureWallet(ctx, tx, ledger.WalletFor(characterID))
		if err != nil {
			return err
		}
		w.ExternalAddress = address
		w.UpdatedAt = time.Now().UTC()
		return tx.UpdateWallet(ctx, w)
	})
}
