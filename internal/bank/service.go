package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/store"
)

// OwnerCharacter is the owner type of player bank accounts.
const OwnerCharacter = "character"

const day = 24 * time.Hour

// Config holds loan policy.
type Config struct {
	LoanMin   decimal.Decimal
	LoanMax   decimal.Decimal
	DailyRate decimal.Decimal
	Term      time.Duration
}

// Service implements deposits, withdrawals and loans against the central
// bank wallet.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	cfg    Config
	logger *slog.Logger
	Clock  func() time.Time
}

// NewService constructs a banking service.
func NewService(s store.Store, led *ledger.Ledger, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: s, ledger: led, cfg: cfg, logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	return s.Clock().UTC()
}

// Account loads the character's bank account, creating it on first use.
func Account(ctx context.Context, tx store.Tx, characterID string, now time.Time) (store.BankAccount, error) {
	a, err := tx.GetBankAccount(ctx, OwnerCharacter, characterID, true)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.BankAccount{}, fmt.Errorf("load bank account %s: %w", characterID, err)
	}
	a = store.BankAccount{
		OwnerType:             OwnerCharacter,
		OwnerID:               characterID,
		DepositedBalance:      decimal.Zero,
		LoanBalance:           decimal.Zero,
		LoanInterestRateDaily: decimal.Zero,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := tx.InsertBankAccount(ctx, a); err != nil {
		return store.BankAccount{}, fmt.Errorf("create bank account %s: %w", characterID, err)
	}
	return a, nil
}

// ElapsedDays counts whole days since the loan's interest anchor.
func ElapsedDays(a store.BankAccount, now time.Time) int64 {
	if a.LoanIssuedAt == nil || now.Before(*a.LoanIssuedAt) {
		return 0
	}
	return int64(now.Sub(*a.LoanIssuedAt) / day)
}

// TotalOwed compounds the loan balance daily from its anchor:
// balance × (1 + rate)^days, rounded to ledger precision. It depends only on
// the stored account and now.
func TotalOwed(a store.BankAccount, now time.Time) decimal.Decimal {
	if !a.HasLoan() {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(1).Add(a.LoanInterestRateDaily)
	owed := a.LoanBalance
	for d := ElapsedDays(a, now); d > 0; d-- {
		owed = owed.Mul(factor)
	}
	return ledger.Round(owed)
}

// ClearLoan resets every loan and enforcement field after full repayment.
func ClearLoan(a *store.BankAccount) {
	a.LoanBalance = decimal.Zero
	a.LoanIssuedAt = nil
	a.LoanDueDate = nil
	a.EnforcementCount = 0
	a.LastEnforcement = nil
}

func requirePositive(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = ledger.Round(amount)
	if !amount.IsPositive() {
		return decimal.Zero, apperr.Validation("amount must be positive")
	}
	return amount, nil
}

// DepositResult reports a completed deposit.
type DepositResult struct {
	Deposited  decimal.Decimal `json:"deposited"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// Deposit moves currency from the character's wallet into the bank.
func (s *Service) Deposit(ctx context.Context, characterID string, amount decimal.Decimal) (DepositResult, error) {
	amount, err := requirePositive(amount)
	if err != nil {
		return DepositResult{}, err
	}
	var res DepositResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		if _, err := s.ledger.Transfer(ctx, tx, ledger.TypeDeposit, ledger.WalletFor(characterID), ledger.BankWallet, amount, "bank deposit"); err != nil {
			return err
		}
		a.DepositedBalance = a.DepositedBalance.Add(amount)
		a.UpdatedAt = now
		res = DepositResult{Deposited: amount, NewBalance: a.DepositedBalance}
		return tx.UpdateBankAccount(ctx, a)
	})
	if err != nil {
		return DepositResult{}, err
	}
	s.logger.InfoContext(ctx, "bank deposit", "character_id", characterID, "amount", amount.String())
	return res, nil
}

// WithdrawResult reports a completed withdrawal.
type WithdrawResult struct {
	Withdrawn  decimal.Decimal `json:"withdrawn"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// Withdraw returns deposited currency to the character's wallet.
func (s *Service) Withdraw(ctx context.Context, characterID string, amount decimal.Decimal) (WithdrawResult, error) {
	amount, err := requirePositive(amount)
	if err != nil {
		return WithdrawResult{}, err
	}
	var res WithdrawResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		if amount.GreaterThan(a.DepositedBalance) {
			return apperr.InsufficientFunds("bank account "+characterID, a.DepositedBalance, amount)
		}
		if _, err := s.ledger.Transfer(ctx, tx, ledger.TypeWithdraw, ledger.BankWallet, ledger.WalletFor(characterID), amount, "bank withdrawal"); err != nil {
			return err
		}
		a.DepositedBalance = a.DepositedBalance.Sub(amount)
		a.UpdatedAt = now
		res = WithdrawResult{Withdrawn: amount, NewBalance: a.DepositedBalance}
		return tx.UpdateBankAccount(ctx, a)
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	s.logger.InfoContext(ctx, "bank withdrawal", "character_id", characterID, "amount", amount.String())
	return res, nil
}

// LoanResult reports an issued loan.
type LoanResult struct {
	Loan      decimal.Decimal `json:"loan"`
	DailyRate decimal.Decimal `json:"dailyRate"`
	DueDate   time.Time       `json:"dueDate"`
}

// TakeLoan lends bank currency to the character. Only one loan may be
// outstanding at a time.
func (s *Service) TakeLoan(ctx context.Context, characterID string, amount decimal.Decimal) (LoanResult, error) {
	amount, err := requirePositive(amount)
	if err != nil {
		return LoanResult{}, err
	}
	if amount.LessThan(s.cfg.LoanMin) || amount.GreaterThan(s.cfg.LoanMax) {
		return LoanResult{}, apperr.Validation("loan must be between %s and %s", s.cfg.LoanMin, s.cfg.LoanMax)
	}
	var res LoanResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		if a.HasLoan() {
			return apperr.InvalidState("an outstanding loan of %s must be repaid first", a.LoanBalance)
		}
		if _, err := s.ledger.Transfer(ctx, tx, ledger.TypeLoanIssue, ledger.BankWallet, ledger.WalletFor(characterID), amount, "loan issued"); err != nil {
			return err
		}
		due := now.Add(s.cfg.Term)
		issued := now
		a.LoanBalance = amount
		a.LoanInterestRateDaily = s.cfg.DailyRate
		a.LoanIssuedAt = &issued
		a.LoanDueDate = &due
		a.UpdatedAt = now
		res = LoanResult{Loan: amount, DailyRate: s.cfg.DailyRate, DueDate: due}
		return tx.UpdateBankAccount(ctx, a)
	})
	if err != nil {
		return LoanResult{}, err
	}
	s.logger.InfoContext(ctx, "loan issued", "character_id", characterID, "amount", amount.String(), "due_date", res.DueDate)
	return res, nil
}

// RepayResult reports a loan repayment.
type RepayResult struct {
	Paid          decimal.Decimal `json:"paid"`
	RemainingLoan decimal.Decimal `json:"remainingLoan"`
	PaidInFull    bool            `json:"paidInFull"`
}

// Repay pays down the loan. A nil amount repays everything owed; larger
// amounts are capped at the total owed. A partial payment re-anchors the
// balance at what is still owed as of the last whole day.
func (s *Service) Repay(ctx context.Context, characterID string, amount *decimal.Decimal) (RepayResult, error) {
	if amount != nil {
		a, err := requirePositive(*amount)
		if err != nil {
			return RepayResult{}, err
		}
		amount = &a
	}
	var res RepayResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		if !a.HasLoan() {
			return apperr.InvalidState("no outstanding loan")
		}
		owed := TotalOwed(a, now)
		pay := owed
		if amount != nil && amount.LessThan(owed) {
			pay = *amount
		}
		if _, err := s.ledger.Transfer(ctx, tx, ledger.TypeLoanRepay, ledger.WalletFor(characterID), ledger.BankWallet, pay, "loan repayment"); err != nil {
			return err
		}
		remaining := owed.Sub(pay)
		if remaining.IsZero() {
			ClearLoan(&a)
		} else {
			anchor := a.LoanIssuedAt.Add(time.Duration(ElapsedDays(a, now)) * day)
			a.LoanBalance = remaining
			a.LoanIssuedAt = &anchor
		}
		a.UpdatedAt = now
		res = RepayResult{Paid: pay, RemainingLoan: remaining, PaidInFull: remaining.IsZero()}
		return tx.UpdateBankAccount(ctx, a)
	})
	if err != nil {
		return RepayResult{}, err
	}
	s.logger.InfoContext(ctx, "loan repayment", "character_id", characterID, "amount", res.Paid.String(), "paid_in_full", res.PaidInFull)
	return res, nil
}

// View is a bank account together with what its loan costs right now.
type View struct {
	DepositedBalance decimal.Decimal `json:"depositedBalance"`
	LoanBalance      decimal.Decimal `json:"loanBalance"`
	DailyRate        decimal.Decimal `json:"dailyRate"`
	OwedNow          decimal.Decimal `json:"owedNow"`
	DueDate          *time.Time      `json:"dueDate,omitempty"`
	Overdue          bool            `json:"overdue"`
	EnforcementCount int             `json:"enforcementCount"`
}

// Status returns the character's bank account as of now.
func (s *Service) Status(ctx context.Context, characterID string) (View, error) {
	var v View
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		a, err := Account(ctx, tx, characterID, now)
		if err != nil {
			return err
		}
		v = View{
			DepositedBalance: a.DepositedBalance,
			LoanBalance:      a.LoanBalance,
			DailyRate:        a.LoanInterestRateDaily,
			OwedNow:          TotalOwed(a, now),
			DueDate:          a.LoanDueDate,
			Overdue:          a.HasLoan() && a.LoanDueDate != nil && a.LoanDueDate.Before(now),
			EnforcementCount: a.EnforcementCount,
		}
		return nil
	})
	return v, err
}
