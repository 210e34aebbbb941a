package enforcement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/bank"
	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/notification"
	"github.com/deepwater-mud/economy/internal/store"
)

// Config tunes debt collection.
type Config struct {
	Cooldown time.Duration
	// EncounterTimeout is how long an unresolved encounter pins a debtor.
	// After it the debtor is treated as having escaped. Zero waits forever.
	EncounterTimeout time.Duration
	BaseUnits        int
	XPReward         int
	JailPerUnit      time.Duration
	JailMin          time.Duration
	JailMax          time.Duration
	ReleaseLocation  string
}

// Service sends the loan shark after overdue borrowers, seizes goods from
// those who lose and jails whoever still owes.
type Service struct {
	store    store.Store
	inv      *inventory.Inventory
	combat   Combat
	world    World
	notifier notification.Notifier
	cfg      Config
	logger   *slog.Logger
	Clock    func() time.Time
}

// NewService constructs an enforcement service.
func NewService(s store.Store, inv *inventory.Inventory, combat Combat, world World, notifier notification.Notifier, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: s, inv: inv, combat: combat, world: world, notifier: notifier, cfg: cfg, logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.Clock().UTC()
}

func loadStatus(ctx context.Context, tx store.Tx, characterID string) (store.CharacterStatus, error) {
	st, err := tx.GetCharacterStatus(ctx, characterID, true)
	if errors.Is(err, store.ErrNotFound) {
		return store.CharacterStatus{CharacterID: characterID}, nil
	}
	if err != nil {
		return store.CharacterStatus{}, fmt.Errorf("load status %s: %w", characterID, err)
	}
	return st, nil
}

// Sweep outcomes.
const (
	ActionEncounter = "encounter"
	ActionExpired   = "expired"
	ActionSkipped   = "skipped"
	ActionFailed    = "failed"
)

// SweepResult reports what the sweep did about one overdue account.
type SweepResult struct {
	CharacterID string          `json:"characterId"`
	Action      string          `json:"action"`
	Reason      string          `json:"reason,omitempty"`
	EncounterID string          `json:"encounterId,omitempty"`
	Units       int             `json:"units,omitempty"`
	Debt        decimal.Decimal `json:"debt"`
}

// Sweep spawns an encounter for every overdue borrower who is not jailed,
// already fighting, protected or cooling down. Reinforcements grow with the
// number of previous escapes.
func (s *Service) Sweep(ctx context.Context) ([]SweepResult, error) {
	var overdue []store.BankAccount
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		overdue, err = tx.ListOverdueLoans(ctx, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}

	results := make([]SweepResult, 0, len(overdue))
	for _, a := range overdue {
		res, err := s.pursue(ctx, a.OwnerID)
		if err != nil {
			s.logger.WarnContext(ctx, "enforcement failed", "character_id", a.OwnerID, "error", err)
			res = SweepResult{CharacterID: a.OwnerID, Action: ActionFailed, Reason: err.Error(), Debt: a.LoanBalance}
		}
		results = append(results, res)
	}
	s.logger.InfoContext(ctx, "enforcement sweep finished", "overdue", len(overdue))
	return results, nil
}

func (s *Service) pursue(ctx context.Context, characterID string) (SweepResult, error) {
	protected, err := s.world.InProtectedZone(ctx, characterID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("check zone: %w", err)
	}

	res := SweepResult{CharacterID: characterID, Action: ActionSkipped}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := bank.Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		res.Debt = a.LoanBalance
		if !a.HasLoan() || a.LoanDueDate == nil || !a.LoanDueDate.Before(now) {
			res.Reason = "not_overdue"
			return nil
		}
		st, err := loadStatus(ctx, tx, characterID)
		if err != nil {
			return err
		}
		if s.stale(st, now) {
			res.Action = ActionExpired
			res.EncounterID = st.ActiveEncounterID
			return s.expire(ctx, tx, &st, &a, now)
		}
		switch {
		case st.Jailed(now):
			res.Reason = "jailed"
		case st.ActiveEncounterID != "":
			res.Reason = "encounter_active"
		case a.LastEnforcement != nil && now.Sub(*a.LastEnforcement) < s.cfg.Cooldown:
			res.Reason = "cooldown"
		case protected:
			res.Reason = "protected_zone"
		}
		if res.Reason != "" {
			return nil
		}
		res.Action = ActionEncounter
		res.EncounterID = uuid.NewString()
		res.Units = s.cfg.BaseUnits + a.EnforcementCount
		st.ActiveEncounterID = res.EncounterID
		st.EncounterStartedAt = &now
		st.UpdatedAt = now
		return tx.SaveCharacterStatus(ctx, st)
	})
	if err != nil || res.Action == ActionSkipped {
		return res, err
	}
	if res.Action == ActionExpired {
		s.logger.WarnContext(ctx, "encounter never resolved, counted as escape", "character_id", characterID,
			"encounter_id", res.EncounterID, "timeout", s.cfg.EncounterTimeout.String())
		return res, nil
	}

	if err := s.combat.SpawnEncounter(ctx, res.EncounterID, characterID, res.Units); err != nil {
		if clearErr := s.abandon(ctx, characterID, res.EncounterID); clearErr != nil {
			s.logger.ErrorContext(ctx, "could not clear failed encounter", "character_id", characterID,
				"encounter_id", res.EncounterID, "error", clearErr)
		}
		return SweepResult{}, fmt.Errorf("spawn encounter: %w", err)
	}
	s.logger.InfoContext(ctx, "loan shark dispatched", "character_id", characterID,
		"encounter_id", res.EncounterID, "units", res.Units, "debt", res.Debt.String())
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindEncounter,
		Destination: characterID,
		Body:        fmt.Sprintf("the loan shark's collectors have found you; you owe %s", res.Debt),
	})
	return res, nil
}

func (s *Service) stale(st store.CharacterStatus, now time.Time) bool {
	if st.ActiveEncounterID == "" || s.cfg.EncounterTimeout <= 0 || st.EncounterStartedAt == nil {
		return false
	}
	return now.Sub(*st.EncounterStartedAt) >= s.cfg.EncounterTimeout
}

// expire closes an encounter the combat engine never reported on. The debtor
// got away, so it counts like a victory without the XP: reinforcements grow
// and the cooldown restarts.
func (s *Service) expire(ctx context.Context, tx store.Tx, st *store.CharacterStatus, a *store.BankAccount, now time.Time) error {
	st.ActiveEncounterID = ""
	st.EncounterStartedAt = nil
	st.UpdatedAt = now
	a.EnforcementCount++
	a.LastEnforcement = &now
	a.UpdatedAt = now
	if err := tx.UpdateBankAccount(ctx, *a); err != nil {
		return err
	}
	return tx.SaveCharacterStatus(ctx, *st)
}

// abandon clears an encounter the combat engine never started.
func (s *Service) abandon(ctx context.Context, characterID, encounterID string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := loadStatus(ctx, tx, characterID)
		if err != nil || st.ActiveEncounterID != encounterID {
			return err
		}
		st.ActiveEncounterID = ""
		st.EncounterStartedAt = nil
		st.UpdatedAt = s.now()
		return tx.SaveCharacterStatus(ctx, st)
	})
}

// Seized is one lot taken into the bank's custody.
type Seized struct {
	MaterialID string          `json:"materialId,omitempty"`
	ItemID     string          `json:"itemId,omitempty"`
	Quantity   int64           `json:"quantity"`
	Value      decimal.Decimal `json:"value"`
}

// Resolution reports the outcome of an encounter.
type Resolution struct {
	EncounterID      string          `json:"encounterId"`
	Victory          bool            `json:"victory"`
	Seized           []Seized        `json:"seized"`
	Collected        decimal.Decimal `json:"collected"`
	RemainingLoan    decimal.Decimal `json:"remainingLoan"`
	PaidInFull       bool            `json:"paidInFull"`
	EnforcementCount int             `json:"enforcementCount"`
	JailedUntil      *time.Time      `json:"jailedUntil,omitempty"`
}

// ResolveEncounter applies the combat outcome. A victory never clears the
// debt; it only delays collection. A defeat seizes goods up to the debt and
// jails the character for whatever remains.
func (s *Service) ResolveEncounter(ctx context.Context, characterID, encounterID string, victory bool) (Resolution, error) {
	res := Resolution{EncounterID: encounterID, Victory: victory, Seized: []Seized{}, Collected: decimal.Zero}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		st, err := loadStatus(ctx, tx, characterID)
		if err != nil {
			return err
		}
		if st.ActiveEncounterID == "" || st.ActiveEncounterID != encounterID {
			return apperr.InvalidState("encounter %s is not active for %s", encounterID, characterID)
		}
		st.ActiveEncounterID = ""
		st.EncounterStartedAt = nil
		st.UpdatedAt = now

		a, err := bank.Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		if a.HasLoan() {
			if victory {
				a.EnforcementCount++
			} else {
				if err := s.collect(ctx, tx, &a, &res); err != nil {
					return err
				}
				if !a.HasLoan() {
					bank.ClearLoan(&a)
					res.PaidInFull = true
				} else {
					until := now.Add(s.jailTerm(a.LoanBalance))
					st.JailedUntil = &until
					st.JailReason = fmt.Sprintf("unpaid debt of %s", a.LoanBalance)
					res.JailedUntil = &until
				}
			}
			if a.HasLoan() {
				a.LastEnforcement = &now
			}
			a.UpdatedAt = now
			if err := tx.UpdateBankAccount(ctx, a); err != nil {
				return err
			}
		}
		res.RemainingLoan = a.LoanBalance
		res.EnforcementCount = a.EnforcementCount
		return tx.SaveCharacterStatus(ctx, st)
	})
	if err != nil {
		return Resolution{}, err
	}

	if victory {
		s.logger.InfoContext(ctx, "debtor escaped the loan shark", "character_id", characterID,
			"encounter_id", encounterID, "enforcement_count", res.EnforcementCount)
		if s.cfg.XPReward > 0 {
			if err := s.combat.AwardXP(ctx, characterID, s.cfg.XPReward); err != nil {
				s.logger.WarnContext(ctx, "xp award failed", "character_id", characterID, "error", err)
			}
		}
		return res, nil
	}
	s.logger.InfoContext(ctx, "debt collected", "character_id", characterID, "encounter_id", encounterID,
		"collected", res.Collected.String(), "remaining", res.RemainingLoan.String(), "paid_in_full", res.PaidInFull)
	if res.JailedUntil != nil {
		notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
			Kind:        notification.KindJailed,
			Destination: characterID,
			Body:        fmt.Sprintf("jailed until %s for an unpaid debt of %s", res.JailedUntil.Format(time.RFC3339), res.RemainingLoan),
		})
	}
	return res, nil
}

type lot struct {
	materialID string
	itemID     string
	quantity   int64
	unit       decimal.Decimal
}

// collect seizes materials, then items, most valuable first, until the loan
// balance is covered. Goods are taken whole, so the last lot may overshoot
// the debt; the overshoot is not refunded.
func (s *Service) collect(ctx context.Context, tx store.Tx, a *store.BankAccount, res *Resolution) error {
	stacks, items, err := s.inv.Holdings(ctx, tx, a.OwnerID)
	if err != nil {
		return err
	}
	var materials, uniques []lot
	for _, st := range stacks {
		m, err := s.inv.Material(ctx, tx, st.MaterialID)
		if err != nil {
			return err
		}
		if m.BasePrice.IsPositive() {
			materials = append(materials, lot{materialID: m.ID, quantity: st.Quantity, unit: m.BasePrice})
		}
	}
	for _, it := range items {
		if it.Value.IsPositive() {
			uniques = append(uniques, lot{itemID: it.ID, quantity: 1, unit: it.Value})
		}
	}
	byValue := func(lots []lot) {
		sort.SliceStable(lots, func(i, j int) bool { return lots[i].unit.GreaterThan(lots[j].unit) })
	}
	byValue(materials)
	byValue(uniques)

	remaining := a.LoanBalance
	for _, l := range append(materials, uniques...) {
		if !remaining.IsPositive() {
			break
		}
		take := l.quantity
		if l.materialID != "" {
			need := remaining.Div(l.unit).Ceil().IntPart()
			if need < take {
				take = need
			}
			if err := s.inv.Move(ctx, tx, a.OwnerID, ledger.BankWallet, l.materialID, take); err != nil {
				return err
			}
		} else {
			if _, err := s.inv.TakeItem(ctx, tx, a.OwnerID, l.itemID); err != nil {
				return err
			}
			if err := s.inv.GiveItem(ctx, tx, l.itemID, ledger.BankWallet); err != nil {
				return err
			}
		}
		value := ledger.Round(l.unit.Mul(decimal.NewFromInt(take)))
		res.Seized = append(res.Seized, Seized{MaterialID: l.materialID, ItemID: l.itemID, Quantity: take, Value: value})
		res.Collected = res.Collected.Add(value)
		remaining = remaining.Sub(value)
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	a.LoanBalance = remaining
	return nil
}

// jailTerm scales with the unpaid remainder, clamped to the configured bounds.
func (s *Service) jailTerm(remaining decimal.Decimal) time.Duration {
	term := time.Duration(remaining.Mul(decimal.NewFromInt(int64(s.cfg.JailPerUnit))).IntPart())
	if term < s.cfg.JailMin {
		term = s.cfg.JailMin
	}
	if s.cfg.JailMax > 0 && term > s.cfg.JailMax {
		term = s.cfg.JailMax
	}
	return term
}

// Release reports a jail check.
type Release struct {
	Released         bool          `json:"released"`
	JailedUntil      *time.Time    `json:"jailedUntil,omitempty"`
	Remaining        time.Duration `json:"-"`
	RemainingSeconds int64         `json:"remainingSeconds"`
}

// CheckRelease frees a character whose sentence is over and moves them to the
// release location; otherwise it reports the time left.
func (s *Service) CheckRelease(ctx context.Context, characterID string) (Release, error) {
	var rel Release
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		st, err := loadStatus(ctx, tx, characterID)
		if err != nil {
			return err
		}
		if st.JailedUntil == nil {
			return apperr.InvalidState("%s is not jailed", characterID)
		}
		if st.Jailed(now) {
			left := st.JailedUntil.Sub(now)
			rel = Release{JailedUntil: st.JailedUntil, Remaining: left, RemainingSeconds: int64(left / time.Second)}
			return nil
		}
		rel = Release{Released: true}
		st.JailedUntil = nil
		st.JailReason = ""
		st.UpdatedAt = now
		return tx.SaveCharacterStatus(ctx, st)
	})
	if err != nil || !rel.Released {
		return rel, err
	}

	if err := s.world.Relocate(ctx, characterID, s.cfg.ReleaseLocation); err != nil {
		s.logger.WarnContext(ctx, "relocation after release failed", "character_id", characterID, "error", err)
	}
	s.logger.InfoContext(ctx, "character released", "character_id", characterID)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindReleased,
		Destination: characterID,
		Body:        "you have served your sentence and are free to go",
	})
	return rel, nil
}

// View is a character's standing with the loan shark.
type View struct {
	LoanBalance       decimal.Decimal `json:"loanBalance"`
	OwedNow           decimal.Decimal `json:"owedNow"`
	DueDate           *time.Time      `json:"dueDate,omitempty"`
	Overdue           bool            `json:"overdue"`
	EnforcementCount  int             `json:"enforcementCount"`
	LastEnforcement   *time.Time      `json:"lastEnforcement,omitempty"`
	CooldownUntil     *time.Time      `json:"cooldownUntil,omitempty"`
	Jailed            bool            `json:"jailed"`
	JailedUntil       *time.Time      `json:"jailedUntil,omitempty"`
	ActiveEncounterID string          `json:"activeEncounterId,omitempty"`
}

// Status reports the character's debt and enforcement state.
func (s *Service) Status(ctx context.Context, characterID string) (View, error) {
	var v View
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := bank.Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		st, err := loadStatus(ctx, tx, characterID)
		if err != nil {
			return err
		}
		v = View{
			LoanBalance:       a.LoanBalance,
			OwedNow:           bank.TotalOwed(a, now),
			DueDate:           a.LoanDueDate,
			Overdue:           a.HasLoan() && a.LoanDueDate != nil && a.LoanDueDate.Before(now),
			EnforcementCount:  a.EnforcementCount,
			LastEnforcement:   a.LastEnforcement,
			Jailed:            st.Jailed(now),
			ActiveEncounterID: st.ActiveEncounterID,
		}
		if v.Jailed {
			v.JailedUntil = st.JailedUntil
		}
		if a.LastEnforcement != nil {
			until := a.LastEnforcement.Add(s.cfg.Cooldown)
			if now.Before(until) {
				v.CooldownUntil = &until
			}
		}
		return nil
	})
	return v, err
}
