package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/deepwater-mud/economy/internal/store"
)

// Balance encapsulates available funds for a character wallet.
type Balance struct {
	WalletID        string          `json:"walletId"`
	Amount          decimal.Decimal `json:"balance"`
	ExternalAddress string          `json:"externalAddress,omitempty"`
	AsOf            time.Time       `json:"asOf"`
}

// Holdings lists everything a character owns outside its wallet.
type Holdings struct {
	Materials []store.MaterialStack `json:"materials"`
	Items     []store.Item          `json:"items"`
}

// Entry is one ledger transaction as seen from a wallet.
type Entry struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   string          `json:"direction"`
	Description string          `json:"description"`
	At          time.Time       `json:"at"`
}
