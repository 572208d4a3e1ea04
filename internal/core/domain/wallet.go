package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a user's custodial on-chain wallet. One active wallet per user;
// the address never changes while the wallet is active, and deactivation is
// a soft flag.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Address   string    `json:"address"`
	ChainID   int64     `json:"chain_id"`
	Label     string    `json:"label"`
	CustodyID string    `json:"-"` // identifier at the custody/signing engine
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
