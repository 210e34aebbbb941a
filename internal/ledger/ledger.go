package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/outbox"
	"github.com/deepwater-mud/economy/internal/store"
)

// Well-known wallets and external references.
const (
	BankWallet     = "bank:central"
	TreasuryWallet = "treasury:main"
	MintSource     = "mint:emissions"
	BurnSink       = "burn:tax"
	escrowPrefix   = "escrow:"
)

// Outbox topics written by postings.
const (
	TopicSettlement = "settlement.transfer"
	TopicAudit      = "audit.ledger"
)

// Scale is the number of decimal places currency amounts carry.
const Scale = 6

// Type labels a ledger transaction.
type Type string

const (
	TypeTransfer      Type = "transfer"
	TypeMint          Type = "mint"
	TypeBurn          Type = "burn"
	TypeSale          Type = "sale"
	TypePurchase      Type = "purchase"
	TypeJobPay        Type = "job_pay"
	TypeLoanIssue     Type = "loan_issue"
	TypeLoanRepay     Type = "loan_repay"
	TypeDeposit       Type = "deposit"
	TypeWithdraw      Type = "withdraw"
	TypeEscrowLock    Type = "escrow_lock"
	TypeEscrowRelease Type = "escrow_release"
	TypeTradeSettle   Type = "trade_settle"
	TypeAuctionSettle Type = "auction_settle"
	TypeEmission      Type = "emission"
)

// Posting is one balanced movement of currency between two references.
// Mirror asks for the transfer to be copied to the settlement rail when the
// receiving wallet has an external address.
type Posting struct {
	Type        Type
	From        string
	To          string
	Amount      decimal.Decimal
	Description string
	Mirror      bool
}

// SettlementRequest is the outbox payload for a mirrored transfer.
type SettlementRequest struct {
	TransactionID string          `json:"transactionId"`
	FromWallet    string          `json:"fromWallet"`
	ToWallet      string          `json:"toWallet"`
	Destination   string          `json:"destination"`
	Amount        decimal.Decimal `json:"amount"`
}

// AuditDocument is the outbox payload indexed for every posting.
type AuditDocument struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	FromWallet  string          `json:"fromWallet"`
	ToWallet    string          `json:"toWallet"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Options toggles the side effects recorded with each posting.
type Options struct {
	AuditIndex bool
}

// Ledger is the single mutation path for currency. It holds no state; every
// call runs against the unit of work it is handed.
type Ledger struct {
	logger *slog.Logger
	opts   Options
	Clock  func() time.Time
}

// New constructs a ledger.
func New(logger *slog.Logger, opts Options) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{logger: logger, opts: opts, Clock: time.Now}
}

func (l *Ledger) now() time.Time {
	return l.Clock().UTC()
}

// Round normalizes an amount to ledger precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// WalletFor maps an actor id to its wallet id. Ids that already carry a
// wallet prefix are returned unchanged; anything else is a character.
func WalletFor(actorID string) string {
	if _, ok := kindOf(actorID); ok {
		return actorID
	}
	return string(store.WalletPlayer) + ":" + actorID
}

// IsPlayer reports whether the id names a character wallet.
func IsPlayer(walletID string) bool {
	kind, ok := kindOf(walletID)
	return ok && kind == store.WalletPlayer
}

// EscrowRef names the escrow holding currency for a trade offer or auction.
func EscrowRef(kind, id string) string {
	return escrowPrefix + kind + ":" + id
}

func kindOf(id string) (store.WalletKind, bool) {
	prefix, _, found := strings.Cut(id, ":")
	if !found {
		return "", false
	}
	switch kind := store.WalletKind(prefix); kind {
	case store.WalletPlayer, store.WalletNPC, store.WalletBank, store.WalletTreasury:
		return kind, true
	}
	return "", false
}

func isExternal(ref string) bool {
	return ref == MintSource || ref == BurnSink || strings.HasPrefix(ref, escrowPrefix)
}

// EnsureWallet returns the wallet, creating an empty one on first use. The
// row is locked for the rest of the unit of work.
func (l *Ledger) EnsureWallet(ctx context.Context, tx store.Tx, id string) (store.Wallet, error) {
	kind, ok := kindOf(id)
	if !ok {
		return store.Wallet{}, apperr.Validation("unknown wallet %q", id)
	}
	w, err := tx.GetWallet(ctx, id, true)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Wallet{}, fmt.Errorf("load wallet %s: %w", id, err)
	}
	now := l.now()
	_, owner, _ := strings.Cut(id, ":")
	w = store.Wallet{ID: id, Kind: kind, OwnerID: owner, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	if err := tx.InsertWallet(ctx, w); err != nil {
		return store.Wallet{}, fmt.Errorf("create wallet %s: %w", id, err)
	}
	return w, nil
}

// Balance returns the wallet balance, zero for wallets never used.
func (l *Ledger) Balance(ctx context.Context, tx store.Tx, id string) (decimal.Decimal, error) {
	w, err := tx.GetWallet(ctx, id, false)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (l *Ledger) validate(p Posting) error {
	if !p.Amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if p.From == p.To {
		return apperr.Validation("cannot post from %s to itself", p.From)
	}
	if (p.From == MintSource) != (p.Type == TypeMint) {
		return apperr.Validation("mint source is reserved for mint postings")
	}
	if (p.To == BurnSink) != (p.Type == TypeBurn) {
		return apperr.Validation("burn sink is reserved for burn postings")
	}
	for _, ref := range []string{p.From, p.To} {
		if isExternal(ref) {
			continue
		}
		if _, ok := kindOf(ref); !ok {
			return apperr.Validation("unknown wallet %q", ref)
		}
	}
	return nil
}

// Post applies one posting: both wallets are locked in id order, the debit
// side is checked before anything is written, and the audit row is inserted
// in the same unit of work.
func (l *Ledger) Post(ctx context.Context, tx store.Tx, p Posting) (store.LedgerTransaction, error) {
	p.Amount = Round(p.Amount)
	if err := l.validate(p); err != nil {
		return store.LedgerTransaction{}, err
	}

	if strings.HasPrefix(p.From, escrowPrefix) {
		held, err := l.EscrowBalance(ctx, tx, p.From)
		if err != nil {
			return store.LedgerTransaction{}, err
		}
		if held.LessThan(p.Amount) {
			return store.LedgerTransaction{}, apperr.InvalidState("%s holds %s, cannot release %s", p.From, held, p.Amount)
		}
	}

	refs := make([]string, 0, 2)
	for _, ref := range []string{p.From, p.To} {
		if !isExternal(ref) {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	wallets := make(map[string]store.Wallet, len(refs))
	for _, ref := range refs {
		w, err := l.EnsureWallet(ctx, tx, ref)
		if err != nil {
			return store.LedgerTransaction{}, err
		}
		wallets[ref] = w
	}

	now := l.now()
	if from, ok := wallets[p.From]; ok {
		if from.Balance.LessThan(p.Amount) {
			if from.Kind == store.WalletPlayer {
				return store.LedgerTransaction{}, apperr.InsufficientFunds(from.ID, from.Balance, p.Amount)
			}
			return store.LedgerTransaction{}, apperr.InsufficientLiquidity(from.ID, from.Balance, p.Amount)
		}
		from.Balance = from.Balance.Sub(p.Amount)
		from.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, from); err != nil {
			return store.LedgerTransaction{}, fmt.Errorf("debit %s: %w", from.ID, err)
		}
	}
	to, credited := wallets[p.To]
	if credited {
		to.Balance = to.Balance.Add(p.Amount)
		to.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, to); err != nil {
			return store.LedgerTransaction{}, fmt.Errorf("credit %s: %w", to.ID, err)
		}
	}

	entry := store.LedgerTransaction{
		ID:          uuid.NewString(),
		Type:        string(p.Type),
		FromWallet:  p.From,
		ToWallet:    p.To,
		Amount:      p.Amount,
		Description: p.Description,
		CreatedAt:   now,
	}
	if err := tx.InsertLedgerTransaction(ctx, entry); err != nil {
		return store.LedgerTransaction{}, fmt.Errorf("record ledger transaction: %w", err)
	}

	if p.Mirror && credited && to.ExternalAddress != "" {
		req := SettlementRequest{
			TransactionID: entry.ID,
			FromWallet:    p.From,
			ToWallet:      p.To,
			Destination:   to.ExternalAddress,
			Amount:        p.Amount,
		}
		if err := outbox.Enqueue(ctx, tx, TopicSettlement, entry.ID, req, now); err != nil {
			return store.LedgerTransaction{}, err
		}
	}
	if l.opts.AuditIndex {
		doc := AuditDocument{
			ID:          entry.ID,
			Type:        entry.Type,
			FromWallet:  entry.FromWallet,
			ToWallet:    entry.ToWallet,
			Amount:      entry.Amount,
			Description: entry.Description,
			CreatedAt:   entry.CreatedAt,
		}
		if err := outbox.Enqueue(ctx, tx, TopicAudit, entry.ID, doc, now); err != nil {
			return store.LedgerTransaction{}, err
		}
	}

	l.logger.DebugContext(ctx, "ledger posting",
		"tx_id", entry.ID, "type", entry.Type, "from", p.From, "to", p.To, "amount", p.Amount.String())
	return entry, nil
}

// Transfer moves currency between two wallets.
func (l *Ledger) Transfer(ctx context.Context, tx store.Tx, typ Type, from, to string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	return l.Post(ctx, tx, Posting{Type: typ, From: from, To: to, Amount: amount, Description: description, Mirror: true})
}

// Credit pays currency into a wallet from an external source: the mint or
// an escrow.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, typ Type, source, to string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	if !isExternal(source) {
		return store.LedgerTransaction{}, apperr.Validation("%s is not a credit source", source)
	}
	return l.Post(ctx, tx, Posting{Type: typ, From: source, To: to, Amount: amount, Description: description, Mirror: typ != TypeMint})
}

// Debit takes currency out of a wallet into an external sink: the burn sink
// or an escrow.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, typ Type, from, sink string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	if !isExternal(sink) {
		return store.LedgerTransaction{}, apperr.Validation("%s is not a debit sink", sink)
	}
	return l.Post(ctx, tx, Posting{Type: typ, From: from, To: sink, Amount: amount, Description: description})
}

// Mint creates currency in a wallet. It is the only way new currency enters
// the economy.
func (l *Ledger) Mint(ctx context.Context, tx store.Tx, to string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	return l.Credit(ctx, tx, TypeMint, MintSource, to, amount, description)
}

// Burn destroys currency held by a wallet.
func (l *Ledger) Burn(ctx context.Context, tx store.Tx, from string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	return l.Debit(ctx, tx, TypeBurn, from, BurnSink, amount, description)
}

// Lock moves currency out of a wallet into an escrow reference.
func (l *Ledger) Lock(ctx context.Context, tx store.Tx, from, escrow string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	return l.Debit(ctx, tx, TypeEscrowLock, from, escrow, amount, description)
}

// Release pays escrowed currency out to a wallet.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, escrow, to string, amount decimal.Decimal, description string) (store.LedgerTransaction, error) {
	return l.Credit(ctx, tx, TypeEscrowRelease, escrow, to, amount, description)
}

// Report summarizes a conservation check.
type Report struct {
	WalletTotal decimal.Decimal `json:"walletTotal"`
	Escrowed    decimal.Decimal `json:"escrowed"`
	Minted      decimal.Decimal `json:"minted"`
	Burned      decimal.Decimal `json:"burned"`
	Balanced    bool            `json:"balanced"`
}

// Reconcile checks that every unit of currency in wallets or escrow is
// accounted for by mints net of burns.
func (l *Ledger) Reconcile(ctx context.Context, tx store.Tx) (Report, error) {
	wallets, err := tx.ListWallets(ctx, "")
	if err != nil {
		return Report{}, err
	}
	minted, err := tx.LedgerFlow(ctx, MintSource, false)
	if err != nil {
		return Report{}, err
	}
	burned, err := tx.LedgerFlow(ctx, BurnSink, false)
	if err != nil {
		return Report{}, err
	}
	escrowed, err := tx.LedgerFlow(ctx, escrowPrefix, true)
	if err != nil {
		return Report{}, err
	}
	r := Report{WalletTotal: decimal.Zero, Escrowed: escrowed.Net(), Minted: minted.Out, Burned: burned.In}
	for _, w := range wallets {
		if w.Balance.IsNegative() && w.Kind != store.WalletPlayer {
			l.logger.ErrorContext(ctx, "negative liquidity", "wallet", w.ID, "balance", w.Balance.String())
		}
		r.WalletTotal = r.WalletTotal.Add(w.Balance)
	}
	r.Balanced = r.WalletTotal.Add(r.Escrowed).Equal(r.Minted.Sub(r.Burned))
	return r, nil
}

// EscrowBalance returns the currency currently held by an escrow reference.
func (l *Ledger) EscrowBalance(ctx context.Context, tx store.Tx, escrow string) (decimal.Decimal, error) {
	f, err := tx.LedgerFlow(ctx, escrow, false)
	if err != nil {
		return decimal.Zero, err
	}
	return f.Net(), nil
}
