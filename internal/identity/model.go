package identity

import "time"

// Character is a registered player character that can hold a wallet.
type Character struct {
	ID           string
	Name         string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
	Name string
	PIN  string
}
