package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result is the outcome of one settlement attempt. It is advisory: the local
// ledger transaction has already committed whatever it says.
type Result struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Adapter mirrors a committed transfer onto an external rail.
type Adapter interface {
	AttemptTransfer(ctx context.Context, secret, destination string, amount decimal.Decimal) (Result, error)
}

// StaticAdapter approves every transfer with a synthetic reference.
type StaticAdapter struct{}

// AttemptTransfer approves the transfer.
func (StaticAdapter) AttemptTransfer(_ context.Context, _, _ string, _ decimal.Decimal) (Result, error) {
	return Result{Success: true, Reference: uuid.NewString()}, nil
}

// DisabledAdapter is used when no rail is configured. Every attempt reports
// failure without contacting anything.
type DisabledAdapter struct{}

// AttemptTransfer declines the transfer.
func (DisabledAdapter) AttemptTransfer(_ context.Context, _, _ string, _ decimal.Decimal) (Result, error) {
	return Result{Success: false, Error: "settlement rail disabled"}, nil
}
