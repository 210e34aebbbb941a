package emissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/auction"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/store"
)

var daysPerYear = decimal.NewFromInt(365)

// Marketplace is the part of the auction house NPC buyers use.
type Marketplace interface {
	ListActive(ctx context.Context, f store.AuctionFilter) ([]store.Auction, error)
	BuyoutInTx(ctx context.Context, tx store.Tx, auctionID, buyer string) (auction.Sale, error)
	NotifySale(ctx context.Context, sale auction.Sale)
}

// Service runs the daily emission cycle: the bank pays the reserve's yield
// out to NPC wallets, then NPCs spend it on player material listings.
type Service struct {
	store      store.Store
	ledger     *ledger.Ledger
	market     Marketplace
	oracle     PriceOracle
	reserve    ReserveSource
	annualRate decimal.Decimal
	npcs       []string
	logger     *slog.Logger
}

// NewService builds an emission service. npcs are NPC wallet ids.
func NewService(s store.Store, led *ledger.Ledger, market Marketplace, oracle PriceOracle, reserve ReserveSource, annualRate decimal.Decimal, npcs []string, logger *slog.Logger) *Service {
	return &Service{
		store:      s,
		ledger:     led,
		market:     market,
		oracle:     oracle,
		reserve:    reserve,
		annualRate: annualRate,
		npcs:       npcs,
		logger:     logger,
	}
}

// Distribution is one NPC's share of a cycle.
type Distribution struct {
	NPC           string          `json:"npc"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
}

// Report summarizes a completed cycle.
type Report struct {
	Yield         decimal.Decimal `json:"yield"`
	PerNPC        decimal.Decimal `json:"perNpc"`
	Distributions []Distribution  `json:"distributions"`
	Purchases     []auction.Sale  `json:"purchases"`
	Spent         decimal.Decimal `json:"spent"`
}

// Yield computes reserve × annualRate/365 × oracle rate.
func (s *Service) Yield(ctx context.Context) (decimal.Decimal, error) {
	reserve, err := s.reserve.Reserve(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read reserve: %w", err)
	}
	rate, err := s.oracle.Rate(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read price oracle: %w", err)
	}
	return ledger.Round(reserve.Mul(s.annualRate).Div(daysPerYear).Mul(rate)), nil
}

// Run executes one cycle. When the bank cannot cover the yield nothing is
// distributed and an InsufficientLiquidity error is returned; the cycle is
// not retried.
func (s *Service) Run(ctx context.Context) (Report, error) {
	report := Report{Yield: decimal.Zero, PerNPC: decimal.Zero, Spent: decimal.Zero}
	if len(s.npcs) == 0 {
		return report, apperr.InvalidState("no npc wallets to distribute to")
	}
	yield, err := s.Yield(ctx)
	if err != nil {
		return report, err
	}
	report.Yield = yield
	report.PerNPC = yield.Div(decimal.NewFromInt(int64(len(s.npcs)))).Truncate(ledger.Scale)
	if !report.PerNPC.IsPositive() {
		s.logger.InfoContext(ctx, "emission cycle skipped", "yield", yield.String())
		return report, nil
	}

	if err := s.distribute(ctx, &report); err != nil {
		s.logger.WarnContext(ctx, "emission distribution aborted", "yield", yield.String(), "error", err)
		return report, err
	}
	s.logger.InfoContext(ctx, "emission distributed", "yield", yield.String(),
		"per_npc", report.PerNPC.String(), "npcs", len(s.npcs))

	if err := s.purchase(ctx, &report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Service) distribute(ctx context.Context, report *Report) error {
	need := report.PerNPC.Mul(decimal.NewFromInt(int64(len(s.npcs))))
	var out []Distribution
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out = out[:0]
		bank, err := tx.GetWallet(ctx, ledger.BankWallet, true)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.InsufficientLiquidity(ledger.BankWallet, decimal.Zero, need)
		}
		if err != nil {
			return err
		}
		if bank.Balance.LessThan(need) {
			return apperr.InsufficientLiquidity(ledger.BankWallet, bank.Balance, need)
		}
		for _, npc := range s.npcs {
			entry, err := s.ledger.Transfer(ctx, tx, ledger.TypeEmission, ledger.BankWallet, npc, report.PerNPC, "daily emission")
			if err != nil {
				return err
			}
			out = append(out, Distribution{NPC: npc, Amount: report.PerNPC, TransactionID: entry.ID})
		}
		return nil
	})
	if err != nil {
		return err
	}
	report.Distributions = out
	return nil
}

type listing struct {
	auction store.Auction
	unit    decimal.Decimal
}

// purchase lets each NPC buy material listings, cheapest unit price first,
// spending at most its share of this cycle. Every purchase is its own unit of
// work; a listing that sold or ended in the meantime is skipped.
func (s *Service) purchase(ctx context.Context, report *Report) error {
	active, err := s.market.ListActive(ctx, store.AuctionFilter{ItemType: store.ItemMaterial, BuyoutOnly: true})
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}
	listings := make([]listing, 0, len(active))
	for _, a := range active {
		if unit, ok := a.UnitBuyout(); ok {
			listings = append(listings, listing{auction: a, unit: unit})
		}
	}
	sort.SliceStable(listings, func(i, j int) bool { return listings[i].unit.LessThan(listings[j].unit) })

	taken := make(map[string]bool, len(listings))
	for _, npc := range s.npcs {
		budget := report.PerNPC
		for _, l := range listings {
			price := l.auction.BuyoutPrice.Decimal
			if taken[l.auction.ID] || price.GreaterThan(budget) {
				continue
			}
			var sale auction.Sale
			err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				var err error
				sale, err = s.market.BuyoutInTx(ctx, tx, l.auction.ID, npc)
				return err
			})
			if err != nil {
				if apperr.KindOf(err) == "" {
					return fmt.Errorf("npc purchase of auction %s: %w", l.auction.ID, err)
				}
				s.logger.InfoContext(ctx, "npc purchase skipped", "npc", npc, "auction_id", l.auction.ID, "error", err)
				continue
			}
			taken[l.auction.ID] = true
			budget = budget.Sub(sale.Price)
			report.Spent = report.Spent.Add(sale.Price)
			report.Purchases = append(report.Purchases, sale)
			s.market.NotifySale(ctx, sale)
			s.logger.InfoContext(ctx, "npc bought listing", "npc", npc, "auction_id", sale.AuctionID,
				"item_id", sale.ItemID, "quantity", sale.Quantity, "amount", sale.Price.String())
		}
	}
	return nil
}
