package emissions

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle converts one unit of the reserve asset into the game currency.
type PriceOracle interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// ReserveSource reports the bank's staked reserve that produces yield.
type ReserveSource interface {
	Reserve(ctx context.Context) (decimal.Decimal, error)
}

// StaticOracle returns a configured conversion rate.
type StaticOracle struct {
	Value decimal.Decimal
}

func (o StaticOracle) Rate(context.Context) (decimal.Decimal, error) {
	return o.Value, nil
}

// StaticReserve returns a configured reserve balance.
type StaticReserve struct {
	Value decimal.Decimal
}

func (r StaticReserve) Reserve(context.Context) (decimal.Decimal, error) {
	return r.Value, nil
}
