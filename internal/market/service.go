package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/catalog"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/store"
)

// Service trades materials between characters and NPC merchants. NPCs pay
// only from what their wallet holds.
type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	inv     *inventory.Inventory
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewService constructs a market service.
func NewService(s store.Store, led *ledger.Ledger, inv *inventory.Inventory, cat *catalog.Catalog, logger *slog.Logger) *Service {
	return &Service{store: s, ledger: led, inv: inv, catalog: cat, logger: logger}
}

// Input names a material, a quantity and the merchant on the other side.
type Input struct {
	CharacterID string
	MaterialID  string
	Quantity    int64
	NPCID       string
}

// Receipt describes a completed sale or purchase.
type Receipt struct {
	Material      string          `json:"material"`
	Quantity      int64           `json:"quantity"`
	PricePerUnit  decimal.Decimal `json:"pricePerUnit"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	TransactionID string          `json:"transactionId"`
}

func (s *Service) quote(ctx context.Context, tx store.Tx, in Input, markup bool) (catalog.NPCDef, decimal.Decimal, decimal.Decimal, error) {
	if in.Quantity <= 0 {
		return catalog.NPCDef{}, decimal.Zero, decimal.Zero, apperr.Validation("quantity must be positive")
	}
	npc, ok := s.catalog.NPC(in.NPCID)
	if !ok {
		return catalog.NPCDef{}, decimal.Zero, decimal.Zero, apperr.NotFound("merchant %s not found", in.NPCID)
	}
	m, err := s.inv.Material(ctx, tx, in.MaterialID)
	if err != nil {
		return catalog.NPCDef{}, decimal.Zero, decimal.Zero, err
	}
	if !m.Tradeable {
		return catalog.NPCDef{}, decimal.Zero, decimal.Zero, apperr.Validation("%s cannot be traded", m.ID)
	}
	unit := m.BasePrice.Mul(npc.Modifier())
	if markup {
		unit = unit.Mul(decimal.NewFromInt(1).Add(npc.MarkupRate()))
	}
	unit = ledger.Round(unit)
	total := ledger.Round(unit.Mul(decimal.NewFromInt(in.Quantity)))
	if !total.IsPositive() {
		return catalog.NPCDef{}, decimal.Zero, decimal.Zero, apperr.Validation("%s has no market value", m.ID)
	}
	return npc, unit, total, nil
}

// Sell moves goods from the character to the merchant and pays the character
// from the merchant's wallet.
func (s *Service) Sell(ctx context.Context, in Input) (Receipt, error) {
	var receipt Receipt
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		npc, unit, total, err := s.quote(ctx, tx, in, false)
		if err != nil {
			return err
		}
		if err := s.inv.Move(ctx, tx, in.CharacterID, npc.WalletID(), in.MaterialID, in.Quantity); err != nil {
			return err
		}
		entry, err := s.ledger.Post(ctx, tx, ledger.Posting{
			Type:        ledger.TypeSale,
			From:        npc.WalletID(),
			To:          ledger.WalletFor(in.CharacterID),
			Amount:      total,
			Description: fmt.Sprintf("sold %d %s to %s", in.Quantity, in.MaterialID, npc.Name),
			Mirror:      true,
		})
		if err != nil {
			return err
		}
		receipt = Receipt{Material: in.MaterialID, Quantity: in.Quantity, PricePerUnit: unit, TotalPrice: total, TransactionID: entry.ID}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.logger.InfoContext(ctx, "material sold", "character_id", in.CharacterID, "npc_id", in.NPCID,
		"material_id", in.MaterialID, "quantity", in.Quantity, "amount", receipt.TotalPrice.String())
	return receipt, nil
}

// Buy pays the merchant its marked-up price and delivers goods from its stock.
func (s *Service) Buy(ctx context.Context, in Input) (Receipt, error) {
	var receipt Receipt
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		npc, unit, total, err := s.quote(ctx, tx, in, true)
		if err != nil {
			return err
		}
		if err := s.inv.Move(ctx, tx, npc.WalletID(), in.CharacterID, in.MaterialID, in.Quantity); err != nil {
			return err
		}
		entry, err := s.ledger.Transfer(ctx, tx, ledger.TypePurchase, ledger.WalletFor(in.CharacterID), npc.WalletID(), total,
			fmt.Sprintf("bought %d %s from %s", in.Quantity, in.MaterialID, npc.Name))
		if err != nil {
			return err
		}
		receipt = Receipt{Material: in.MaterialID, Quantity: in.Quantity, PricePerUnit: unit, TotalPrice: total, TransactionID: entry.ID}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.logger.InfoContext(ctx, "material bought", "character_id", in.CharacterID, "npc_id", in.NPCID,
		"material_id", in.MaterialID, "quantity", in.Quantity, "amount", receipt.TotalPrice.String())
	return receipt, nil
}
