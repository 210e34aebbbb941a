package trade

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

const (
	escrowKind = "trade"
	sweepBatch = 200
)

// Service runs the peer-to-peer offer state machine. Offered currency sits in
// an escrow reference and offered materials leave the offerer's stacks until
// the offer reaches a terminal status.
type Service struct {
	store    store.Store
	ledger   *ledger.Ledger
	inv      *inventory.Inventory
	notifier notification.Notifier
	maxTTL   time.Duration
	logger   *slog.Logger
	Clock    func() time.Time
}

// NewService constructs the trade escrow.
func NewService(s store.Store, led *ledger.Ledger, inv *inventory.Inventory, notifier notification.Notifier, maxTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{store: s, ledger: led, inv: inv, notifier: notifier, maxTTL: maxTTL, logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.Clock().UTC()
}

// CreateInput describes a new offer. ToID is empty for an open offer.
type CreateInput struct {
	FromID            string
	ToID              string
	OfferingCurrency  decimal.Decimal
	OfferingMaterials []store.MaterialLine
	WantingCurrency   decimal.Decimal
	WantingMaterials  []store.MaterialLine
	TTL               time.Duration
}

// Locked is what an offer holds in escrow.
type Locked struct {
	Currency  decimal.Decimal      `json:"currency"`
	Materials []store.MaterialLine `json:"materials"`
}

// Created reports a newly escrowed offer.
type Created struct {
	OfferID   string    `json:"offerId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Locked    Locked    `json:"locked"`
}

func (in *CreateInput) normalize(maxTTL time.Duration) error {
	if in.TTL <= 0 {
		return apperr.Validation("expiry must be positive")
	}
	if maxTTL > 0 && in.TTL > maxTTL {
		return apperr.Validation("expiry may not exceed %s", maxTTL)
	}
	if in.ToID == in.FromID {
		return apperr.Validation("cannot trade with yourself")
	}
	in.OfferingCurrency = ledger.Round(in.OfferingCurrency)
	in.WantingCurrency = ledger.Round(in.WantingCurrency)
	if in.OfferingCurrency.IsNegative() || in.WantingCurrency.IsNegative() {
		return apperr.Validation("currency amounts may not be negative")
	}
	var err error
	if in.OfferingMaterials, err = inventory.Normalize(in.OfferingMaterials); err != nil {
		return err
	}
	if in.WantingMaterials, err = inventory.Normalize(in.WantingMaterials); err != nil {
		return err
	}
	if in.OfferingCurrency.IsZero() && len(in.OfferingMaterials) == 0 {
		return apperr.Validation("an offer must include currency or materials")
	}
	return nil
}

// CreateOffer escrows everything offered and records a pending offer. Any
// shortfall fails the whole operation.
func (s *Service) CreateOffer(ctx context.Context, in CreateInput) (Created, error) {
	if err := in.normalize(s.maxTTL); err != nil {
		return Created{}, err
	}
	now := s.now()
	offer := store.TradeOffer{
		ID:                uuid.NewString(),
		FromID:            in.FromID,
		ToID:              in.ToID,
		OfferingCurrency:  in.OfferingCurrency,
		OfferingMaterials: in.OfferingMaterials,
		WantingCurrency:   in.WantingCurrency,
		WantingMaterials:  in.WantingMaterials,
		Status:            store.OfferPending,
		ExpiresAt:         now.Add(in.TTL),
		CreatedAt:         now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.inv.RequireTradeable(ctx, tx, offer.OfferingMaterials); err != nil {
			return err
		}
		if err := s.inv.RequireTradeable(ctx, tx, offer.WantingMaterials); err != nil {
			return err
		}
		if offer.OfferingCurrency.IsPositive() {
			if _, err := s.ledger.Lock(ctx, tx, ledger.WalletFor(offer.FromID), ledger.EscrowRef(escrowKind, offer.ID),
				offer.OfferingCurrency, "trade offer "+offer.ID); err != nil {
				return err
			}
		}
		if err := s.inv.Take(ctx, tx, offer.FromID, offer.OfferingMaterials); err != nil {
			return err
		}
		return tx.InsertOffer(ctx, offer)
	})
	if err != nil {
		return Created{}, err
	}
	s.logger.InfoContext(ctx, "trade offer created", "offer_id", offer.ID, "character_id", offer.FromID,
		"to", offer.ToID, "currency", offer.OfferingCurrency.String(), "expires_at", offer.ExpiresAt)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindOfferReceived,
		Destination: offer.ToID,
		Body:        fmt.Sprintf("%s sent you trade offer %s", offer.FromID, offer.ID),
	})
	return Created{
		OfferID:   offer.ID,
		ExpiresAt: offer.ExpiresAt,
		Locked:    Locked{Currency: offer.OfferingCurrency, Materials: offer.OfferingMaterials},
	}, nil
}

// Delivery is one side of a completed exchange.
type Delivery struct {
	Recipient string               `json:"recipient"`
	Currency  decimal.Decimal      `json:"currency"`
	Materials []store.MaterialLine `json:"materials"`
}

// loadOffer locks the offer inside the unit of work.
func loadOffer(ctx context.Context, tx store.Tx, id string) (store.TradeOffer, error) {
	o, err := tx.GetOffer(ctx, id, true)
	if errors.Is(err, store.ErrNotFound) {
		return store.TradeOffer{}, apperr.NotFound("trade offer %s not found", id)
	}
	return o, err
}

// resolve returns the escrowed offering side to the offerer and moves the
// offer to a terminal status.
func (s *Service) resolve(ctx context.Context, tx store.Tx, o *store.TradeOffer, next store.OfferStatus, by string, now time.Time) error {
	if !o.Status.CanTransition(next) {
		return apperr.InvalidState("offer %s is %s", o.ID, o.Status)
	}
	if o.OfferingCurrency.IsPositive() {
		if _, err := s.ledger.Release(ctx, tx, ledger.EscrowRef(escrowKind, o.ID), ledger.WalletFor(o.FromID),
			o.OfferingCurrency, fmt.Sprintf("trade offer %s %s", o.ID, next)); err != nil {
			return err
		}
	}
	if err := s.inv.Give(ctx, tx, o.FromID, o.OfferingMaterials); err != nil {
		return err
	}
	o.Status = next
	o.ResolvedAt = &now
	o.ResolvedBy = by
	return tx.UpdateOffer(ctx, *o)
}

// expireIfDue lazily expires a pending offer past its deadline. It reports
// whether the offer was expired by this call.
func (s *Service) expireIfDue(ctx context.Context, tx store.Tx, o *store.TradeOffer, now time.Time) (bool, error) {
	if o.Status != store.OfferPending || now.Before(o.ExpiresAt) {
		return false, nil
	}
	if err := s.resolve(ctx, tx, o, store.OfferExpired, "", now); err != nil {
		return false, err
	}
	return true, nil
}

// AcceptOffer completes the exchange: the accepter pays the wanting side
// directly to the offerer and receives the escrowed offering side.
func (s *Service) AcceptOffer(ctx context.Context, offerID, accepter string) ([]Delivery, error) {
	var (
		offer    store.TradeOffer
		expired  bool
		delivery []Delivery
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		var err error
		if offer, err = loadOffer(ctx, tx, offerID); err != nil {
			return err
		}
		if expired, err = s.expireIfDue(ctx, tx, &offer, now); err != nil || expired {
			return err
		}
		if offer.Status != store.OfferPending {
			return apperr.InvalidState("offer %s is %s", offer.ID, offer.Status)
		}
		if accepter == offer.FromID {
			return apperr.Unauthorized("cannot accept your own offer")
		}
		if offer.ToID != "" && offer.ToID != accepter {
			return apperr.Unauthorized("offer %s is addressed to someone else", offer.ID)
		}

		if offer.WantingCurrency.IsPositive() {
			if _, err := s.ledger.Transfer(ctx, tx, ledger.TypeTradeSettle, ledger.WalletFor(accepter), ledger.WalletFor(offer.FromID),
				offer.WantingCurrency, "trade offer "+offer.ID); err != nil {
				return err
			}
		}
		if err := s.inv.Take(ctx, tx, accepter, offer.WantingMaterials); err != nil {
			return err
		}
		if err := s.inv.Give(ctx, tx, offer.FromID, offer.WantingMaterials); err != nil {
			return err
		}

		if offer.OfferingCurrency.IsPositive() {
			if _, err := s.ledger.Release(ctx, tx, ledger.EscrowRef(escrowKind, offer.ID), ledger.WalletFor(accepter),
				offer.OfferingCurrency, "trade offer "+offer.ID); err != nil {
				return err
			}
		}
		if err := s.inv.Give(ctx, tx, accepter, offer.OfferingMaterials); err != nil {
			return err
		}

		offer.Status = store.OfferCompleted
		offer.ResolvedAt = &now
		offer.ResolvedBy = accepter
		delivery = []Delivery{
			{Recipient: accepter, Currency: offer.OfferingCurrency, Materials: offer.OfferingMaterials},
			{Recipient: offer.FromID, Currency: offer.WantingCurrency, Materials: offer.WantingMaterials},
		}
		return tx.UpdateOffer(ctx, offer)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.logger.InfoContext(ctx, "trade offer expired", "offer_id", offerID)
		return nil, apperr.Expired("offer %s expired at %s", offerID, offer.ExpiresAt.Format(time.RFC3339))
	}
	s.logger.InfoContext(ctx, "trade offer accepted", "offer_id", offerID, "character_id", accepter)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindOfferAccepted,
		Destination: offer.FromID,
		Body:        fmt.Sprintf("%s accepted trade offer %s", accepter, offer.ID),
	})
	return delivery, nil
}

// RejectOffer lets the offerer cancel or the target reject a pending offer.
// Either way the escrow goes back to the offerer.
func (s *Service) RejectOffer(ctx context.Context, offerID, caller string) (store.TradeOffer, error) {
	var (
		offer   store.TradeOffer
		expired bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		var err error
		if offer, err = loadOffer(ctx, tx, offerID); err != nil {
			return err
		}
		if expired, err = s.expireIfDue(ctx, tx, &offer, now); err != nil || expired {
			return err
		}
		var next store.OfferStatus
		switch {
		case caller == offer.FromID:
			next = store.OfferCancelled
		case offer.ToID != "" && caller == offer.ToID:
			next = store.OfferRejected
		default:
			return apperr.Unauthorized("not a party to offer %s", offer.ID)
		}
		return s.resolve(ctx, tx, &offer, next, caller, now)
	})
	if err != nil {
		return store.TradeOffer{}, err
	}
	if expired {
		return store.TradeOffer{}, apperr.Expired("offer %s expired at %s", offerID, offer.ExpiresAt.Format(time.RFC3339))
	}
	s.logger.InfoContext(ctx, "trade offer closed", "offer_id", offerID, "status", offer.Status, "character_id", caller)
	if offer.Status == store.OfferRejected {
		notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
			Kind:        notification.KindOfferRejected,
			Destination: offer.FromID,
			Body:        fmt.Sprintf("%s rejected trade offer %s", caller, offer.ID),
		})
	}
	return offer, nil
}

// GetOffer returns an offer visible to the caller, expiring it first when
// its deadline has passed.
func (s *Service) GetOffer(ctx context.Context, offerID, caller string) (store.TradeOffer, error) {
	var offer store.TradeOffer
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if offer, err = loadOffer(ctx, tx, offerID); err != nil {
			return err
		}
		if offer.ToID != "" && caller != offer.FromID && caller != offer.ToID {
			return apperr.Unauthorized("not a party to offer %s", offer.ID)
		}
		_, err = s.expireIfDue(ctx, tx, &offer, s.now())
		return err
	})
	return offer, err
}

// ListOffers returns the caller's offers plus open offers from others.
// Offers past their deadline are reported as they are stored until a fetch
// or sweep resolves them.
func (s *Service) ListOffers(ctx context.Context, participant string, status store.OfferStatus) ([]store.TradeOffer, error) {
	var out []store.TradeOffer
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		mine, err := tx.ListOffers(ctx, store.OfferFilter{Status: status, ParticipantID: participant})
		if err != nil {
			return err
		}
		out = mine
		if status != "" && status != store.OfferPending {
			return nil
		}
		pending, err := tx.ListOffers(ctx, store.OfferFilter{Status: store.OfferPending})
		if err != nil {
			return err
		}
		for _, o := range pending {
			if o.ToID == "" && o.FromID != participant {
				out = append(out, o)
			}
		}
		return nil
	})
	return out, err
}

// SweepExpired expires every pending offer past its deadline, one unit of
// work per offer. Offers already resolved are skipped, so reruns never
// return escrow twice.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	var ids []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.ListExpiredOffers(ctx, s.now(), sweepBatch)
		return err
	})
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		var (
			offer store.TradeOffer
			done  bool
		)
		err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			if offer, err = loadOffer(ctx, tx, id); err != nil {
				return err
			}
			done, err = s.expireIfDue(ctx, tx, &offer, s.now())
			return err
		})
		if err != nil {
			s.logger.WarnContext(ctx, "trade sweep failed", "offer_id", id, "error", err)
			continue
		}
		if done {
			expired++
			notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
				Kind:        notification.KindOfferExpired,
				Destination: offer.FromID,
				Body:        fmt.Sprintf("trade offer %s expired and its escrow was returned", offer.ID),
			})
		}
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "trade offers expired", "count", expired)
	}
	return expired, nil
}
