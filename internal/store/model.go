package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletKind identifies who owns a wallet.
type WalletKind string

const (
	WalletPlayer   WalletKind = "player"
	WalletNPC      WalletKind = "npc"
	WalletBank     WalletKind = "bank"
	WalletTreasury WalletKind = "treasury"
)

// Wallet is a currency balance held by one account.
type Wallet struct {
	ID              string
	Kind            WalletKind
	OwnerID         string
	Balance         decimal.Decimal
	ExternalAddress string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LedgerTransaction is an append-only audit record. It is never updated.
type LedgerTransaction struct {
	ID          string
	Type        string
	FromWallet  string
	ToWallet    string
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// LedgerFlow is the sum of postings into and out of a reference.
type LedgerFlow struct {
	In  decimal.Decimal
	Out decimal.Decimal
}

// Net is what the reference still holds.
func (f LedgerFlow) Net() decimal.Decimal {
	return f.In.Sub(f.Out)
}

// Material is a fungible tradeable good.
type Material struct {
	ID        string
	Name      string
	BasePrice decimal.Decimal
	Tradeable bool
}

// MaterialStack is the quantity of one material held by one character.
type MaterialStack struct {
	CharacterID string `json:"characterId"`
	MaterialID  string `json:"materialId"`
	Quantity    int64  `json:"quantity"`
}

// MaterialLine is one material/quantity pair on an offer.
type MaterialLine struct {
	MaterialID string `json:"materialId"`
	Quantity   int64  `json:"quantity"`
}

// Item is a unique, non-fungible possession. OwnerID is empty while the item
// is held in escrow by an auction.
type Item struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BankAccount tracks deposits and the single outstanding loan of an owner.
type BankAccount struct {
	OwnerType             string
	OwnerID               string
	DepositedBalance      decimal.Decimal
	LoanBalance           decimal.Decimal
	LoanInterestRateDaily decimal.Decimal
	LoanIssuedAt          *time.Time
	LoanDueDate           *time.Time
	EnforcementCount      int
	LastEnforcement       *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasLoan reports whether a loan balance is outstanding.
func (a BankAccount) HasLoan() bool {
	return a.LoanBalance.IsPositive()
}

// OfferStatus is the lifecycle state of a trade offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferCompleted OfferStatus = "completed"
	OfferRejected  OfferStatus = "rejected"
	OfferCancelled OfferStatus = "cancelled"
	OfferExpired   OfferStatus = "expired"
)

var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferPending: {OfferCompleted, OfferRejected, OfferCancelled, OfferExpired},
}

// CanTransition reports whether an offer may move from s to next.
func (s OfferStatus) CanTransition(next OfferStatus) bool {
	for _, allowed := range offerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OfferStatus) Terminal() bool {
	return len(offerTransitions[s]) == 0
}

// TradeOffer is a peer-to-peer exchange proposal. ToID is empty for open offers.
type TradeOffer struct {
	ID                string
	FromID            string
	ToID              string
	OfferingCurrency  decimal.Decimal
	OfferingMaterials []MaterialLine
	WantingCurrency   decimal.Decimal
	WantingMaterials  []MaterialLine
	Status            OfferStatus
	ExpiresAt         time.Time
	CreatedAt         time.Time
	ResolvedAt        *time.Time
	ResolvedBy        string
}

// ItemType says what an auction listing refers to.
type ItemType string

const (
	ItemMaterial ItemType = "material"
	ItemUnique   ItemType = "item"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "active"
	AuctionSold      AuctionStatus = "sold"
	AuctionExpired   AuctionStatus = "expired"
	AuctionCancelled AuctionStatus = "cancelled"
)

var auctionTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionActive: {AuctionSold, AuctionExpired, AuctionCancelled},
}

// CanTransition reports whether an auction may move from s to next.
func (s AuctionStatus) CanTransition(next AuctionStatus) bool {
	for _, allowed := range auctionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Auction is a timed listing. CurrentBidderID is empty until the first bid.
type Auction struct {
	ID              string
	SellerID        string
	ItemType        ItemType
	ItemID          string
	Quantity        int64
	StartingBid     decimal.Decimal
	BuyoutPrice     decimal.NullDecimal
	CurrentBid      decimal.Decimal
	CurrentBidderID string
	Status          AuctionStatus
	EndsAt          time.Time
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// UnitBuyout returns the buyout price per unit, or false when no buyout is set.
func (a Auction) UnitBuyout() (decimal.Decimal, bool) {
	if !a.BuyoutPrice.Valid || a.Quantity <= 0 {
		return decimal.Zero, false
	}
	return a.BuyoutPrice.Decimal.Div(decimal.NewFromInt(a.Quantity)), true
}

// AuctionBid is one accepted bid, kept for audit.
type AuctionBid struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AuctionFilter narrows ListActiveAuctions.
type AuctionFilter struct {
	ItemType      ItemType
	BuyoutOnly    bool
	ExcludeSeller string
}

// OfferFilter narrows ListOffers. Empty fields match everything.
type OfferFilter struct {
	Status        OfferStatus
	ParticipantID string
}

// CharacterStatus holds transient enforcement state for one character.
type CharacterStatus struct {
	CharacterID        string
	JailedUntil        *time.Time
	JailReason         string
	ActiveEncounterID  string
	EncounterStartedAt *time.Time
	UpdatedAt          time.Time
}

// Jailed reports whether the character is serving a sentence at now.
func (s CharacterStatus) Jailed(now time.Time) bool {
	return s.JailedUntil != nil && now.Before(*s.JailedUntil)
}

// JobStatus is the lifecycle state of a job assignment.
type JobStatus string

const (
	JobAssigned JobStatus = "assigned"
	JobPaid     JobStatus = "paid"
)

// JobAssignment records a character taking a job and being paid for it.
type JobAssignment struct {
	ID             string
	JobID          string
	CharacterID    string
	EmployerWallet string
	Pay            decimal.Decimal
	Status         JobStatus
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxMessage is a side effect recorded in the business transaction and
// shipped after commit.
type OutboxMessage struct {
	ID            string
	Topic         string
	Key           string
	Payload       []byte
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	Reference     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
