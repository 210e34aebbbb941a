package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Tx getters when the row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert collides with an existing key.
	ErrConflict = errors.New("record already exists")
)

// Store runs units of work. Every economy operation executes inside one
// WithTx call; the function's error rolls back every write it made.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// PendingOutbox and UpdateOutbox run outside business transactions and
	// are used only by the outbox dispatcher.
	PendingOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	UpdateOutbox(ctx context.Context, msg OutboxMessage) error
}

// Tx is the set of reads and writes available inside a unit of work.
// Getters taking a lock flag hold the row until the transaction ends.
type Tx interface {
	GetWallet(ctx context.Context, id string, lock bool) (Wallet, error)
	InsertWallet(ctx context.Context, w Wallet) error
	UpdateWallet(ctx context.Context, w Wallet) error
	ListWallets(ctx context.Context, kind WalletKind) ([]Wallet, error)

	InsertLedgerTransaction(ctx context.Context, t LedgerTransaction) error
	// ListLedgerTransactions returns newest first. An empty walletID lists all.
	ListLedgerTransactions(ctx context.Context, walletID string, limit int) ([]LedgerTransaction, error)
	// LedgerFlow totals every posting into and out of ref over the whole
	// ledger. With prefix set it matches every reference starting with ref.
	LedgerFlow(ctx context.Context, ref string, prefix bool) (LedgerFlow, error)

	GetMaterial(ctx context.Context, id string) (Material, error)
	InsertMaterial(ctx context.Context, m Material) error
	UpdateMaterial(ctx context.Context, m Material) error
	ListMaterials(ctx context.Context) ([]Material, error)

	MaterialQuantity(ctx context.Context, characterID, materialID string) (int64, error)
	// SetMaterialQuantity deletes the stack when quantity is zero.
	SetMaterialQuantity(ctx context.Context, characterID, materialID string, quantity int64) error
	ListStacks(ctx context.Context, characterID string) ([]MaterialStack, error)

	GetItem(ctx context.Context, id string, lock bool) (Item, error)
	InsertItem(ctx context.Context, it Item) error
	UpdateItem(ctx context.Context, it Item) error
	ListItems(ctx context.Context, ownerID string) ([]Item, error)

	GetBankAccount(ctx context.Context, ownerType, ownerID string, lock bool) (BankAccount, error)
	InsertBankAccount(ctx context.Context, a BankAccount) error
	UpdateBankAccount(ctx context.Context, a BankAccount) error
	ListOverdueLoans(ctx context.Context, now time.Time) ([]BankAccount, error)

	InsertOffer(ctx context.Context, o TradeOffer) error
	GetOffer(ctx context.Context, id string, lock bool) (TradeOffer, error)
	UpdateOffer(ctx context.Context, o TradeOffer) error
	ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListOffers(ctx context.Context, f OfferFilter) ([]TradeOffer, error)

	InsertAuction(ctx context.Context, a Auction) error
	GetAuction(ctx context.Context, id string, lock bool) (Auction, error)
	UpdateAuction(ctx context.Context, a Auction) error
	InsertBid(ctx context.Context, b AuctionBid) error
	ListBids(ctx context.Context, auctionID string) ([]AuctionBid, error)
	ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListActiveAuctions(ctx context.Context, f AuctionFilter) ([]Auction, error)

	GetCharacterStatus(ctx context.Context, characterID string, lock bool) (CharacterStatus, error)
	SaveCharacterStatus(ctx context.Context, s CharacterStatus) error

	InsertJobAssignment(ctx context.Context, j JobAssignment) error
	GetJobAssignment(ctx context.Context, id string, lock bool) (JobAssignment, error)
	UpdateJobAssignment(ctx context.Context, j JobAssignment) error

	InsertOutbox(ctx context.Context, msg OutboxMessage) error
}
