package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/store"
)

// Inventory adjusts fungible material stacks and the custody of unique
// items. Escrow is modelled as ordinary adjustments: goods leave the owner's
// stack when an offer or auction is created and come back when it ends.
type Inventory struct{}

// New constructs an inventory.
func New() *Inventory {
	return &Inventory{}
}

// Normalize merges duplicate lines and rejects empty ids or non-positive
// quantities. The result is sorted by material id.
func Normalize(lines []store.MaterialLine) ([]store.MaterialLine, error) {
	totals := make(map[string]int64, len(lines))
	for _, l := range lines {
		if l.MaterialID == "" {
			return nil, apperr.Validation("material id is required")
		}
		if l.Quantity <= 0 {
			return nil, apperr.Validation("quantity for %s must be positive", l.MaterialID)
		}
		totals[l.MaterialID] += l.Quantity
	}
	out := make([]store.MaterialLine, 0, len(totals))
	for id, q := range totals {
		out = append(out, store.MaterialLine{MaterialID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out, nil
}

// Material loads a material definition.
func (inv *Inventory) Material(ctx context.Context, tx store.Tx, materialID string) (store.Material, error) {
	m, err := tx.GetMaterial(ctx, materialID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Material{}, apperr.NotFound("material %s not found", materialID)
	}
	return m, err
}

// RequireTradeable fails unless every line names a known tradeable material.
func (inv *Inventory) RequireTradeable(ctx context.Context, tx store.Tx, lines []store.MaterialLine) error {
	for _, l := range lines {
		m, err := inv.Material(ctx, tx, l.MaterialID)
		if err != nil {
			return err
		}
		if !m.Tradeable {
			return apperr.Validation("%s cannot be traded", m.ID)
		}
	}
	return nil
}

// Quantity returns how much of a material the owner holds.
func (inv *Inventory) Quantity(ctx context.Context, tx store.Tx, ownerID, materialID string) (int64, error) {
	return tx.MaterialQuantity(ctx, ownerID, materialID)
}

// Adjust applies delta to one stack and returns the new quantity. A result
// below zero fails with insufficient materials and writes nothing.
func (inv *Inventory) Adjust(ctx context.Context, tx store.Tx, ownerID, materialID string, delta int64) (int64, error) {
	if _, err := inv.Material(ctx, tx, materialID); err != nil {
		return 0, err
	}
	have, err := tx.MaterialQuantity(ctx, ownerID, materialID)
	if err != nil {
		return 0, fmt.Errorf("load stack %s/%s: %w", ownerID, materialID, err)
	}
	next := have + delta
	if next < 0 {
		return have, apperr.InsufficientMaterials(ownerID, materialID, have, -delta)
	}
	if delta == 0 {
		return have, nil
	}
	if err := tx.SetMaterialQuantity(ctx, ownerID, materialID, next); err != nil {
		return 0, fmt.Errorf("store stack %s/%s: %w", ownerID, materialID, err)
	}
	return next, nil
}

// Take removes every line from the owner. The first shortfall aborts; the
// caller's unit of work discards any lines already taken.
func (inv *Inventory) Take(ctx context.Context, tx store.Tx, ownerID string, lines []store.MaterialLine) error {
	for _, l := range lines {
		if _, err := inv.Adjust(ctx, tx, ownerID, l.MaterialID, -l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Give adds every line to the owner.
func (inv *Inventory) Give(ctx context.Context, tx store.Tx, ownerID string, lines []store.MaterialLine) error {
	for _, l := range lines {
		if _, err := inv.Adjust(ctx, tx, ownerID, l.MaterialID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Move transfers a quantity of one material between owners.
func (inv *Inventory) Move(ctx context.Context, tx store.Tx, from, to, materialID string, quantity int64) error {
	if _, err := inv.Adjust(ctx, tx, from, materialID, -quantity); err != nil {
		return err
	}
	_, err := inv.Adjust(ctx, tx, to, materialID, quantity)
	return err
}

// Item loads a unique item and locks it.
func (inv *Inventory) Item(ctx context.Context, tx store.Tx, itemID string) (store.Item, error) {
	it, err := tx.GetItem(ctx, itemID, true)
	if errors.Is(err, store.ErrNotFound) {
		return store.Item{}, apperr.NotFound("item %s not found", itemID)
	}
	return it, err
}

// TakeItem moves an item out of its owner's possession into escrow.
func (inv *Inventory) TakeItem(ctx context.Context, tx store.Tx, ownerID, itemID string) (store.Item, error) {
	it, err := inv.Item(ctx, tx, itemID)
	if err != nil {
		return store.Item{}, err
	}
	if it.OwnerID != ownerID {
		return store.Item{}, apperr.Unauthorized("item %s does not belong to %s", itemID, ownerID)
	}
	it.OwnerID = ""
	if err := tx.UpdateItem(ctx, it); err != nil {
		return store.Item{}, fmt.Errorf("escrow item %s: %w", itemID, err)
	}
	return it, nil
}

// GiveItem hands an item to a new owner.
func (inv *Inventory) GiveItem(ctx context.Context, tx store.Tx, itemID, ownerID string) error {
	it, err := inv.Item(ctx, tx, itemID)
	if err != nil {
		return err
	}
	it.OwnerID = ownerID
	if err := tx.UpdateItem(ctx, it); err != nil {
		return fmt.Errorf("deliver item %s: %w", itemID, err)
	}
	return nil
}

// Holdings lists everything an owner possesses.
func (inv *Inventory) Holdings(ctx context.Context, tx store.Tx, ownerID string) ([]store.MaterialStack, []store.Item, error) {
	stacks, err := tx.ListStacks(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	items, err := tx.ListItems(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return stacks, items, nil
}
