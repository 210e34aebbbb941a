package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryState struct {
	wallets     map[string]Wallet
	ledger      []LedgerTransaction
	materials   map[string]Material
	stacks      map[stackKey]int64
	items       map[string]Item
	accounts    map[accountKey]BankAccount
	offers      map[string]TradeOffer
	auctions    map[string]Auction
	bids        []AuctionBid
	statuses    map[string]CharacterStatus
	jobs        map[string]JobAssignment
	outbox      map[string]OutboxMessage
	outboxOrder []string
}

type stackKey struct{ character, material string }

type accountKey struct{ ownerType, ownerID string }

func newMemoryState() *memoryState {
	return &memoryState{
		wallets:   make(map[string]Wallet),
		materials: make(map[string]Material),
		stacks:    make(map[stackKey]int64),
		items:     make(map[string]Item),
		accounts:  make(map[accountKey]BankAccount),
		offers:    make(map[string]TradeOffer),
		auctions:  make(map[string]Auction),
		statuses:  make(map[string]CharacterStatus),
		jobs:      make(map[string]JobAssignment),
		outbox:    make(map[string]OutboxMessage),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.ledger = append([]LedgerTransaction(nil), s.ledger...)
	for k, v := range s.materials {
		c.materials[k] = v
	}
	for k, v := range s.stacks {
		c.stacks[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = cloneOffer(v)
	}
	for k, v := range s.auctions {
		c.auctions[k] = v
	}
	c.bids = append([]AuctionBid(nil), s.bids...)
	for k, v := range s.statuses {
		c.statuses[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	c.outboxOrder = append([]string(nil), s.outboxOrder...)
	return c
}

func cloneOffer(o TradeOffer) TradeOffer {
	o.OfferingMaterials = append([]MaterialLine(nil), o.OfferingMaterials...)
	o.WantingMaterials = append([]MaterialLine(nil), o.WantingMaterials...)
	return o
}

// Memory is an in-process Store. Units of work are serialized and applied
// to a private copy of the state that replaces the live state on commit.
type Memory struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemory constructs an empty in-memory store for tests and local runs.
func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, &memoryTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) PendingOutbox(_ context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxMessage
	for _, id := range m.state.outboxOrder {
		msg := m.state.outbox[id]
		if msg.Status != OutboxPending || msg.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) UpdateOutbox(_ context.Context, msg OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.outbox[msg.ID]; !ok {
		return ErrNotFound
	}
	m.state.outbox[msg.ID] = msg
	return nil
}

type memoryTx struct {
	s *memoryState
}

func (t *memoryTx) GetWallet(_ context.Context, id string, _ bool) (Wallet, error) {
	w, ok := t.s.wallets[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (t *memoryTx) InsertWallet(_ context.Context, w Wallet) error {
	if _, ok := t.s.wallets[w.ID]; ok {
		return ErrConflict
	}
	t.s.wallets[w.ID] = w
	return nil
}

func (t *memoryTx) UpdateWallet(_ context.Context, w Wallet) error {
	if _, ok := t.s.wallets[w.ID]; !ok {
		return ErrNotFound
	}
	t.s.wallets[w.ID] = w
	return nil
}

func (t *memoryTx) ListWallets(_ context.Context, kind WalletKind) ([]Wallet, error) {
	var out []Wallet
	for _, w := range t.s.wallets {
		if kind == "" || w.Kind == kind {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) InsertLedgerTransaction(_ context.Context, lt LedgerTransaction) error {
	t.s.ledger = append(t.s.ledger, lt)
	return nil
}

func (t *memoryTx) ListLedgerTransactions(_ context.Context, walletID string, limit int) ([]LedgerTransaction, error) {
	var out []LedgerTransaction
	for i := len(t.s.ledger) - 1; i >= 0; i-- {
		lt := t.s.ledger[i]
		if walletID != "" && lt.FromWallet != walletID && lt.ToWallet != walletID {
			continue
		}
		out = append(out, lt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memoryTx) LedgerFlow(_ context.Context, ref string, prefix bool) (LedgerFlow, error) {
	match := func(id string) bool {
		if prefix {
			return strings.HasPrefix(id, ref)
		}
		return id == ref
	}
	f := LedgerFlow{In: decimal.Zero, Out: decimal.Zero}
	for _, lt := range t.s.ledger {
		if match(lt.ToWallet) {
			f.In = f.In.Add(lt.Amount)
		}
		if match(lt.FromWallet) {
			f.Out = f.Out.Add(lt.Amount)
		}
	}
	return f, nil
}

func (t *memoryTx) GetMaterial(_ context.Context, id string) (Material, error) {
	m, ok := t.s.materials[id]
	if !ok {
		return Material{}, ErrNotFound
	}
	return m, nil
}

func (t *memoryTx) InsertMaterial(_ context.Context, m Material) error {
	if _, ok := t.s.materials[m.ID]; ok {
		return ErrConflict
	}
	t.s.materials[m.ID] = m
	return nil
}

func (t *memoryTx) UpdateMaterial(_ context.Context, m Material) error {
	if _, ok := t.s.materials[m.ID]; !ok {
		return ErrNotFound
	}
	t.s.materials[m.ID] = m
	return nil
}

func (t *memoryTx) ListMaterials(_ context.Context) ([]Material, error) {
	out := make([]Material, 0, len(t.s.materials))
	for _, m := range t.s.materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) MaterialQuantity(_ context.Context, characterID, materialID string) (int64, error) {
	return t.s.stacks[stackKey{characterID, materialID}], nil
}

func (t *memoryTx) SetMaterialQuantity(_ context.Context, characterID, materialID string, quantity int64) error {
	key := stackKey{characterID, materialID}
	if quantity == 0 {
		delete(t.s.stacks, key)
		return nil
	}
	t.s.stacks[key] = quantity
	return nil
}

func (t *memoryTx) ListStacks(_ context.Context, characterID string) ([]MaterialStack, error) {
	var out []MaterialStack
	for k, q := range t.s.stacks {
		if k.character == characterID {
			out = append(out, MaterialStack{CharacterID: k.character, MaterialID: k.material, Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out, nil
}

func (t *memoryTx) GetItem(_ context.Context, id string, _ bool) (Item, error) {
	it, ok := t.s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (t *memoryTx) InsertItem(_ context.Context, it Item) error {
	if _, ok := t.s.items[it.ID]; ok {
		return ErrConflict
	}
	t.s.items[it.ID] = it
	return nil
}

func (t *memoryTx) UpdateItem(_ context.Context, it Item) error {
	if _, ok := t.s.items[it.ID]; !ok {
		return ErrNotFound
	}
	t.s.items[it.ID] = it
	return nil
}

func (t *memoryTx) ListItems(_ context.Context, ownerID string) ([]Item, error) {
	var out []Item
	for _, it := range t.s.items {
		if it.OwnerID == ownerID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) GetBankAccount(_ context.Context, ownerType, ownerID string, _ bool) (BankAccount, error) {
	a, ok := t.s.accounts[accountKey{ownerType, ownerID}]
	if !ok {
		return BankAccount{}, ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) InsertBankAccount(_ context.Context, a BankAccount) error {
	key := accountKey{a.OwnerType, a.OwnerID}
	if _, ok := t.s.accounts[key]; ok {
		return ErrConflict
	}
	t.s.accounts[key] = a
	return nil
}

func (t *memoryTx) UpdateBankAccount(_ context.Context, a BankAccount) error {
	key := accountKey{a.OwnerType, a.OwnerID}
	if _, ok := t.s.accounts[key]; !ok {
		return ErrNotFound
	}
	t.s.accounts[key] = a
	return nil
}

func (t *memoryTx) ListOverdueLoans(_ context.Context, now time.Time) ([]BankAccount, error) {
	var out []BankAccount
	for _, a := range t.s.accounts {
		if a.HasLoan() && a.LoanDueDate != nil && a.LoanDueDate.Before(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (t *memoryTx) InsertOffer(_ context.Context, o TradeOffer) error {
	if _, ok := t.s.offers[o.ID]; ok {
		return ErrConflict
	}
	t.s.offers[o.ID] = cloneOffer(o)
	return nil
}

func (t *memoryTx) GetOffer(_ context.Context, id string, _ bool) (TradeOffer, error) {
	o, ok := t.s.offers[id]
	if !ok {
		return TradeOffer{}, ErrNotFound
	}
	return cloneOffer(o), nil
}

func (t *memoryTx) UpdateOffer(_ context.Context, o TradeOffer) error {
	if _, ok := t.s.offers[o.ID]; !ok {
		return ErrNotFound
	}
	t.s.offers[o.ID] = cloneOffer(o)
	return nil
}

func (t *memoryTx) ListExpiredOffers(_ context.Context, now time.Time, limit int) ([]string, error) {
	var out []TradeOffer
	for _, o := range t.s.offers {
		if o.Status == OfferPending && !now.Before(o.ExpiresAt) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return offerIDs(out, limit), nil
}

func offerIDs(offers []TradeOffer, limit int) []string {
	ids := make([]string, 0, len(offers))
	for _, o := range offers {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids
}

func (t *memoryTx) ListOffers(_ context.Context, f OfferFilter) ([]TradeOffer, error) {
	var out []TradeOffer
	for _, o := range t.s.offers {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ParticipantID != "" && o.FromID != f.ParticipantID && o.ToID != f.ParticipantID {
			continue
		}
		out = append(out, cloneOffer(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memoryTx) InsertAuction(_ context.Context, a Auction) error {
	if _, ok := t.s.auctions[a.ID]; ok {
		return ErrConflict
	}
	t.s.auctions[a.ID] = a
	return nil
}

func (t *memoryTx) GetAuction(_ context.Context, id string, _ bool) (Auction, error) {
	a, ok := t.s.auctions[id]
	if !ok {
		return Auction{}, ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) UpdateAuction(_ context.Context, a Auction) error {
	if _, ok := t.s.auctions[a.ID]; !ok {
		return ErrNotFound
	}
	t.s.auctions[a.ID] = a
	return nil
}

func (t *memoryTx) InsertBid(_ context.Context, b AuctionBid) error {
	t.s.bids = append(t.s.bids, b)
	return nil
}

func (t *memoryTx) ListBids(_ context.Context, auctionID string) ([]AuctionBid, error) {
	var out []AuctionBid
	for _, b := range t.s.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memoryTx) ListEndedAuctions(_ context.Context, now time.Time, limit int) ([]string, error) {
	var ended []Auction
	for _, a := range t.s.auctions {
		if a.Status == AuctionActive && !now.Before(a.EndsAt) {
			ended = append(ended, a)
		}
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i].EndsAt.Before(ended[j].EndsAt) })
	ids := make([]string, 0, len(ended))
	for _, a := range ended {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (t *memoryTx) ListActiveAuctions(_ context.Context, f AuctionFilter) ([]Auction, error) {
	var out []Auction
	for _, a := range t.s.auctions {
		if a.Status != AuctionActive {
			continue
		}
		if f.ItemType != "" && a.ItemType != f.ItemType {
			continue
		}
		if f.BuyoutOnly && !a.BuyoutPrice.Valid {
			continue
		}
		if f.ExcludeSeller != "" && a.SellerID == f.ExcludeSeller {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	return out, nil
}

func (t *memoryTx) GetCharacterStatus(_ context.Context, characterID string, _ bool) (CharacterStatus, error) {
	s, ok := t.s.statuses[characterID]
	if !ok {
		return CharacterStatus{}, ErrNotFound
	}
	return s, nil
}

func (t *memoryTx) SaveCharacterStatus(_ context.Context, s CharacterStatus) error {
	t.s.statuses[s.CharacterID] = s
	return nil
}

func (t *memoryTx) InsertJobAssignment(_ context.Context, j JobAssignment) error {
	if _, ok := t.s.jobs[j.ID]; ok {
		return ErrConflict
	}
	t.s.jobs[j.ID] = j
	return nil
}

func (t *memoryTx) GetJobAssignment(_ context.Context, id string, _ bool) (JobAssignment, error) {
	j, ok := t.s.jobs[id]
	if !ok {
		return JobAssignment{}, ErrNotFound
	}
	return j, nil
}

func (t *memoryTx) UpdateJobAssignment(_ context.Context, j JobAssignment) error {
	if _, ok := t.s.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	t.s.jobs[j.ID] = j
	return nil
}

func (t *memoryTx) InsertOutbox(_ context.Context, msg OutboxMessage) error {
	if _, ok := t.s.outbox[msg.ID]; ok {
		return ErrConflict
	}
	t.s.outbox[msg.ID] = msg
	t.s.outboxOrder = append(t.s.outboxOrder, msg.ID)
	return nil
}
