package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/notification"
	"github.com/deepwater-mud/economy/internal/store"
)

const sweepBatch = 200

// Config holds auction house policy.
type Config struct {
	TaxRate     decimal.Decimal
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Service runs timed listings. Listed goods leave the seller's inventory at
// creation; bids are checked for affordability but not escrowed, so only the
// winning transfer moves currency.
type Service struct {
	store    store.Store
	ledger   *ledger.Ledger
	inv      *inventory.Inventory
	notifier notification.Notifier
	cfg      Config
	logger   *slog.Logger
	Clock    func() time.Time
}

// NewService constructs the auction house.
func NewService(s store.Store, led *ledger.Ledger, inv *inventory.Inventory, notifier notification.Notifier, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: s, ledger: led, inv: inv, notifier: notifier, cfg: cfg, logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.Clock().UTC()
}

// CreateInput describes a new listing. BuyoutPrice is the price for the
// whole lot.
type CreateInput struct {
	SellerID    string
	ItemType    store.ItemType
	ItemID      string
	Quantity    int64
	StartingBid decimal.Decimal
	BuyoutPrice decimal.NullDecimal
	Duration    time.Duration
}

func (in *CreateInput) normalize(cfg Config) error {
	if in.ItemID == "" {
		return apperr.Validation("item id is required")
	}
	switch in.ItemType {
	case store.ItemMaterial:
		if in.Quantity <= 0 {
			return apperr.Validation("quantity must be positive")
		}
	case store.ItemUnique:
		if in.Quantity > 1 {
			return apperr.Validation("unique items are listed one at a time")
		}
		in.Quantity = 1
	default:
		return apperr.Validation("unknown item type %q", in.ItemType)
	}
	if in.Duration < cfg.MinDuration || (cfg.MaxDuration > 0 && in.Duration > cfg.MaxDuration) {
		return apperr.Validation("duration must be between %s and %s", cfg.MinDuration, cfg.MaxDuration)
	}
	in.StartingBid = ledger.Round(in.StartingBid)
	if !in.StartingBid.IsPositive() {
		return apperr.Validation("starting bid must be positive")
	}
	if in.BuyoutPrice.Valid {
		in.BuyoutPrice.Decimal = ledger.Round(in.BuyoutPrice.Decimal)
		if in.BuyoutPrice.Decimal.LessThan(in.StartingBid) {
			return apperr.Validation("buyout price may not be below the starting bid")
		}
	}
	return nil
}

// Created reports a new listing.
type Created struct {
	AuctionID string    `json:"auctionId"`
	EndsAt    time.Time `json:"endsAt"`
}

// Create escrows the listed goods and opens the auction.
func (s *Service) Create(ctx context.Context, in CreateInput) (Created, error) {
	if err := in.normalize(s.cfg); err != nil {
		return Created{}, err
	}
	now := s.now()
	a := store.Auction{
		ID:          uuid.NewString(),
		SellerID:    in.SellerID,
		ItemType:    in.ItemType,
		ItemID:      in.ItemID,
		Quantity:    in.Quantity,
		StartingBid: in.StartingBid,
		BuyoutPrice: in.BuyoutPrice,
		CurrentBid:  decimal.Zero,
		Status:      store.AuctionActive,
		EndsAt:      now.Add(in.Duration),
		CreatedAt:   now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if a.ItemType == store.ItemMaterial {
			lot := []store.MaterialLine{{MaterialID: a.ItemID, Quantity: a.Quantity}}
			if err := s.inv.RequireTradeable(ctx, tx, lot); err != nil {
				return err
			}
			if err := s.inv.Take(ctx, tx, a.SellerID, lot); err != nil {
				return err
			}
		} else if _, err := s.inv.TakeItem(ctx, tx, a.SellerID, a.ItemID); err != nil {
			return err
		}
		return tx.InsertAuction(ctx, a)
	})
	if err != nil {
		return Created{}, err
	}
	s.logger.InfoContext(ctx, "auction created", "auction_id", a.ID, "character_id", a.SellerID,
		"item_type", a.ItemType, "item_id", a.ItemID, "quantity", a.Quantity, "ends_at", a.EndsAt)
	return Created{AuctionID: a.ID, EndsAt: a.EndsAt}, nil
}

func loadAuction(ctx context.Context, tx store.Tx, id string) (store.Auction, error) {
	a, err := tx.GetAuction(ctx, id, true)
	if errors.Is(err, store.ErrNotFound) {
		return store.Auction{}, apperr.NotFound("auction %s not found", id)
	}
	return a, err
}

// returnGoods hands the escrowed lot to owner.
func (s *Service) returnGoods(ctx context.Context, tx store.Tx, a store.Auction, owner string) error {
	if a.ItemType == store.ItemMaterial {
		return s.inv.Give(ctx, tx, owner, []store.MaterialLine{{MaterialID: a.ItemID, Quantity: a.Quantity}})
	}
	return s.inv.GiveItem(ctx, tx, a.ItemID, owner)
}

func (s *Service) transition(ctx context.Context, tx store.Tx, a *store.Auction, next store.AuctionStatus, now time.Time) error {
	if !a.Status.CanTransition(next) {
		return apperr.InvalidState("auction %s is %s", a.ID, a.Status)
	}
	a.Status = next
	a.ResolvedAt = &now
	return tx.UpdateAuction(ctx, *a)
}

// Sale describes a completed auction.
type Sale struct {
	AuctionID string          `json:"auctionId"`
	SellerID  string          `json:"sellerId"`
	BuyerID   string          `json:"buyerId"`
	Price     decimal.Decimal `json:"price"`
	Tax       decimal.Decimal `json:"tax"`
	ItemType  store.ItemType  `json:"itemType"`
	ItemID    string          `json:"itemId"`
	Quantity  int64           `json:"quantity"`
}

// settle pays the seller, burns the house tax from the proceeds and delivers
// the lot to the buyer. buyer is an actor id: a character id or npc:<id>.
func (s *Service) settle(ctx context.Context, tx store.Tx, a *store.Auction, buyer string, price decimal.Decimal, now time.Time) (Sale, error) {
	desc := fmt.Sprintf("auction %s", a.ID)
	if _, err := s.ledger.Transfer(ctx, tx, ledger.TypeAuctionSettle, ledger.WalletFor(buyer), ledger.WalletFor(a.SellerID), price, desc); err != nil {
		return Sale{}, err
	}
	tax := ledger.Round(price.Mul(s.cfg.TaxRate))
	if tax.IsPositive() {
		if _, err := s.ledger.Burn(ctx, tx, ledger.WalletFor(a.SellerID), tax, desc+" tax"); err != nil {
			return Sale{}, err
		}
	}
	if err := s.returnGoods(ctx, tx, *a, buyer); err != nil {
		return Sale{}, err
	}
	a.CurrentBid = price
	a.CurrentBidderID = buyer
	if err := s.transition(ctx, tx, a, store.AuctionSold, now); err != nil {
		return Sale{}, err
	}
	return Sale{
		AuctionID: a.ID,
		SellerID:  a.SellerID,
		BuyerID:   buyer,
		Price:     price,
		Tax:       tax,
		ItemType:  a.ItemType,
		ItemID:    a.ItemID,
		Quantity:  a.Quantity,
	}, nil
}

// outcome is what a unit of work did to an auction, used for notifications
// after commit.
type outcome struct {
	auction  store.Auction
	sale     *Sale
	outbid   string
	finished bool
}

func (o outcome) messages() []notification.Message {
	var out []notification.Message
	a := o.auction
	if o.outbid != "" {
		out = append(out, notification.Message{
			Kind:        notification.KindOutbid,
			Destination: o.outbid,
			Body:        fmt.Sprintf("you were outbid on auction %s; current bid %s", a.ID, a.CurrentBid),
		})
	}
	if o.sale != nil {
		out = append(out,
			notification.Message{
				Kind:        notification.KindAuctionSold,
				Destination: o.sale.SellerID,
				Body:        fmt.Sprintf("auction %s sold for %s", a.ID, o.sale.Price),
			},
			notification.Message{
				Kind:        notification.KindAuctionWon,
				Destination: o.sale.BuyerID,
				Body:        fmt.Sprintf("you won auction %s for %s", a.ID, o.sale.Price),
			})
	} else if o.finished && a.Status == store.AuctionExpired {
		out = append(out, notification.Message{
			Kind:        notification.KindAuctionUnsold,
			Destination: a.SellerID,
			Body:        fmt.Sprintf("auction %s ended without a sale; the lot was returned", a.ID),
		})
	}
	return out
}

// finalize closes an active auction past its end time. Without a bidder, or
// when the winning bidder can no longer pay, the lot goes back to the seller.
func (s *Service) finalize(ctx context.Context, tx store.Tx, a *store.Auction, now time.Time) (outcome, error) {
	if a.Status != store.AuctionActive || now.Before(a.EndsAt) {
		return outcome{auction: *a}, nil
	}
	if a.CurrentBidderID != "" {
		bal, err := s.ledger.Balance(ctx, tx, ledger.WalletFor(a.CurrentBidderID))
		if err != nil {
			return outcome{}, err
		}
		if !bal.LessThan(a.CurrentBid) {
			sale, err := s.settle(ctx, tx, a, a.CurrentBidderID, a.CurrentBid, now)
			if err != nil {
				return outcome{}, err
			}
			return outcome{auction: *a, sale: &sale, finished: true}, nil
		}
		s.logger.WarnContext(ctx, "winning bidder cannot pay", "auction_id", a.ID,
			"character_id", a.CurrentBidderID, "have", bal.String(), "need", a.CurrentBid.String())
	}
	if err := s.returnGoods(ctx, tx, *a, a.SellerID); err != nil {
		return outcome{}, err
	}
	if err := s.transition(ctx, tx, a, store.AuctionExpired, now); err != nil {
		return outcome{}, err
	}
	return outcome{auction: *a, finished: true}, nil
}

// run executes fn on the locked auction after lazily finalizing it. When the
// auction had ended, the finalization commits and fn is not called; the
// caller gets an Expired error instead.
func (s *Service) run(ctx context.Context, auctionID string, fn func(ctx context.Context, tx store.Tx, a *store.Auction, now time.Time) (outcome, error)) (outcome, error) {
	var res outcome
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := loadAuction(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		res, err = s.finalize(ctx, tx, &a, now)
		if err != nil || res.finished || fn == nil {
			return err
		}
		res, err = fn(ctx, tx, &a, now)
		return err
	})
	if err != nil {
		return outcome{}, err
	}
	notification.Deliver(ctx, s.notifier, s.logger, res.messages()...)
	if res.finished && fn != nil {
		return res, apperr.Expired("auction %s ended at %s", auctionID, res.auction.EndsAt.Format(time.RFC3339))
	}
	return res, nil
}

// BidResult reports an accepted bid. Buyout is set when the bid met the
// buyout price and closed the auction.
type BidResult struct {
	Bid    decimal.Decimal `json:"bid"`
	EndsAt time.Time       `json:"endsAt"`
	Buyout bool            `json:"buyout"`
	Sale   *Sale           `json:"sale,omitempty"`
}

// PlaceBid records a new highest bid. A bid at or above the buyout price is
// turned into a buyout.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidder string, amount decimal.Decimal) (BidResult, error) {
	amount = ledger.Round(amount)
	if !amount.IsPositive() {
		return BidResult{}, apperr.Validation("bid must be positive")
	}
	res, err := s.run(ctx, auctionID, func(ctx context.Context, tx store.Tx, a *store.Auction, now time.Time) (outcome, error) {
		if a.Status != store.AuctionActive {
			return outcome{}, apperr.InvalidState("auction %s is %s", a.ID, a.Status)
		}
		if bidder == a.SellerID {
			return outcome{}, apperr.Unauthorized("cannot bid on your own auction")
		}
		if price := a.BuyoutPrice; price.Valid && !amount.LessThan(price.Decimal) {
			sale, err := s.buyout(ctx, tx, a, bidder, now)
			if err != nil {
				return outcome{}, err
			}
			return outcome{auction: *a, sale: &sale}, nil
		}
		if amount.LessThan(a.StartingBid) {
			return outcome{}, apperr.Validation("bid must be at least the starting bid of %s", a.StartingBid)
		}
		if !amount.GreaterThan(a.CurrentBid) {
			return outcome{}, apperr.InvalidState("bid must exceed the current bid of %s", a.CurrentBid)
		}
		bal, err := s.ledger.Balance(ctx, tx, ledger.WalletFor(bidder))
		if err != nil {
			return outcome{}, err
		}
		if bal.LessThan(amount) {
			return outcome{}, apperr.InsufficientFunds(ledger.WalletFor(bidder), bal, amount)
		}
		previous := a.CurrentBidderID
		if err := tx.InsertBid(ctx, store.AuctionBid{
			ID: uuid.NewString(), AuctionID: a.ID, BidderID: bidder, Amount: amount, CreatedAt: now,
		}); err != nil {
			return outcome{}, err
		}
		a.CurrentBid = amount
		a.CurrentBidderID = bidder
		if err := tx.UpdateAuction(ctx, *a); err != nil {
			return outcome{}, err
		}
		if previous == bidder {
			previous = ""
		}
		return outcome{auction: *a, outbid: previous}, nil
	})
	if err != nil {
		return BidResult{}, err
	}
	if res.sale != nil {
		s.logger.InfoContext(ctx, "auction bought out by bid", "auction_id", auctionID, "character_id", bidder, "amount", res.sale.Price.String())
		return BidResult{Bid: res.sale.Price, EndsAt: res.auction.EndsAt, Buyout: true, Sale: res.sale}, nil
	}
	s.logger.InfoContext(ctx, "auction bid placed", "auction_id", auctionID, "character_id", bidder, "amount", amount.String())
	return BidResult{Bid: amount, EndsAt: res.auction.EndsAt}, nil
}

func (s *Service) buyout(ctx context.Context, tx store.Tx, a *store.Auction, buyer string, now time.Time) (Sale, error) {
	if a.Status != store.AuctionActive {
		return Sale{}, apperr.InvalidState("auction %s is %s", a.ID, a.Status)
	}
	if !now.Before(a.EndsAt) {
		return Sale{}, apperr.Expired("auction %s has ended", a.ID)
	}
	if !a.BuyoutPrice.Valid {
		return Sale{}, apperr.InvalidState("auction %s has no buyout price", a.ID)
	}
	if buyer == a.SellerID {
		return Sale{}, apperr.Unauthorized("cannot buy your own auction")
	}
	price := a.BuyoutPrice.Decimal
	if err := tx.InsertBid(ctx, store.AuctionBid{
		ID: uuid.NewString(), AuctionID: a.ID, BidderID: buyer, Amount: price, CreatedAt: now,
	}); err != nil {
		return Sale{}, err
	}
	return s.settle(ctx, tx, a, buyer, price, now)
}

// Buyout buys the whole lot at its buyout price.
func (s *Service) Buyout(ctx context.Context, auctionID, buyer string) (Sale, error) {
	res, err := s.run(ctx, auctionID, func(ctx context.Context, tx store.Tx, a *store.Auction, now time.Time) (outcome, error) {
		outbid := a.CurrentBidderID
		sale, err := s.buyout(ctx, tx, a, buyer, now)
		if err != nil {
			return outcome{}, err
		}
		if outbid == buyer {
			outbid = ""
		}
		return outcome{auction: *a, sale: &sale, outbid: outbid}, nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.logger.InfoContext(ctx, "auction bought out", "auction_id", auctionID, "character_id", buyer, "amount", res.sale.Price.String())
	return *res.sale, nil
}

// BuyoutInTx buys an auction inside the caller's unit of work. NPC buyers
// pass their wallet id (npc:<id>) as buyer.
func (s *Service) BuyoutInTx(ctx context.Context, tx store.Tx, auctionID, buyer string) (Sale, error) {
	a, err := loadAuction(ctx, tx, auctionID)
	if err != nil {
		return Sale{}, err
	}
	return s.buyout(ctx, tx, &a, buyer, s.now())
}

// NotifySale tells both parties about a sale completed through BuyoutInTx.
func (s *Service) NotifySale(ctx context.Context, sale Sale) {
	o := outcome{auction: store.Auction{ID: sale.AuctionID}, sale: &sale}
	notification.Deliver(ctx, s.notifier, s.logger, o.messages()...)
}

// Cancel withdraws a listing that has no bids and returns the lot.
func (s *Service) Cancel(ctx context.Context, auctionID, seller string) (store.Auction, error) {
	res, err := s.run(ctx, auctionID, func(ctx context.Context, tx store.Tx, a *store.Auction, now time.Time) (outcome, error) {
		if a.SellerID != seller {
			return outcome{}, apperr.Unauthorized("only the seller may cancel auction %s", a.ID)
		}
		if a.Status != store.AuctionActive {
			return outcome{}, apperr.InvalidState("auction %s is %s", a.ID, a.Status)
		}
		if a.CurrentBidderID != "" {
			return outcome{}, apperr.InvalidState("auction %s already has bids", a.ID)
		}
		if err := s.returnGoods(ctx, tx, *a, a.SellerID); err != nil {
			return outcome{}, err
		}
		if err := s.transition(ctx, tx, a, store.AuctionCancelled, now); err != nil {
			return outcome{}, err
		}
		return outcome{auction: *a}, nil
	})
	if err != nil {
		return store.Auction{}, err
	}
	s.logger.InfoContext(ctx, "auction cancelled", "auction_id", auctionID, "character_id", seller)
	return res.auction, nil
}

// Finalize closes the auction if it has ended. It is safe to call any number
// of times.
func (s *Service) Finalize(ctx context.Context, auctionID string) (store.Auction, error) {
	res, err := s.run(ctx, auctionID, nil)
	return res.auction, err
}

// Detail is an auction with its bid history.
type Detail struct {
	Auction store.Auction
	Bids    []store.AuctionBid
}

// Get returns the auction, finalizing it first when it has ended.
func (s *Service) Get(ctx context.Context, auctionID string) (Detail, error) {
	a, err := s.Finalize(ctx, auctionID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Auction: a}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		d.Bids, err = tx.ListBids(ctx, auctionID)
		return err
	})
	return d, err
}

// ListActive returns open auctions that have not yet reached their end time.
func (s *Service) ListActive(ctx context.Context, f store.AuctionFilter) ([]store.Auction, error) {
	var out []store.Auction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListActiveAuctions(ctx, f)
		if err != nil {
			return err
		}
		now := s.now()
		for _, a := range all {
			if now.Before(a.EndsAt) {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// SweepEnded finalizes every active auction past its end time, one unit of
// work per auction.
func (s *Service) SweepEnded(ctx context.Context) (int, error) {
	var ids []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.ListEndedAuctions(ctx, s.now(), sweepBatch)
		return err
	})
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		res, err := s.run(ctx, id, nil)
		if err != nil {
			s.logger.WarnContext(ctx, "auction sweep failed", "auction_id", id, "error", err)
			continue
		}
		if res.finished {
			closed++
		}
	}
	if closed > 0 {
		s.logger.InfoContext(ctx, "auctions finalized", "count", closed)
	}
	return closed, nil
}
