package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentKey is the scoped credential an autonomous agent presents to spend
// from a user's wallet. Only the SHA-256 digest of the raw secret is stored.
type AgentKey struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	WalletID  uuid.UUID  `json:"wallet_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"` // first characters of the raw key, for display
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsUsable reports whether the key may authenticate a request at the given
// instant.
func (k *AgentKey) IsUsable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}
