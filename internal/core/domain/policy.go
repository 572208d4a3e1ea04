package domain

import (
	"time"

	"github.com/google/uuid"
)

// SpendingPolicy caps what an agent key may spend. One active policy per
// agent key; superseded policies are deactivated, never deleted.
// Amounts are 6-decimal strings.
type SpendingPolicy struct {
	ID               uuid.UUID `json:"id"`
	AgentKeyID       uuid.UUID `json:"agent_key_id"`
	WalletID         uuid.UUID `json:"wallet_id"`
	Name             string    `json:"name"`
	MaxPerTx         string    `json:"max_per_tx"`
	DailyLimit       string    `json:"daily_limit"`
	MonthlyLimit     *string   `json:"monthly_limit,omitempty"`
	AllowedMerchants []string  `json:"allowed_merchants,omitempty"` // nil = all merchants
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AllowsMerchant reports whether the policy permits spending at the given
// merchant. An empty allow-list permits every merchant.
func (p *SpendingPolicy) AllowsMerchant(merchantID uuid.UUID) bool {
	if len(p.AllowedMerchants) == 0 {
		return true
	}
	id := merchantID.String()
	for _, m := range p.AllowedMerchants {
		if m == id {
			return true
		}
	}
	return false
}

// DenialCode identifies which limit a spending evaluation tripped.
type DenialCode string

const (
	DenialPerTxExceeded        DenialCode = "PER_TX_EXCEEDED"
	DenialDailyLimitExceeded   DenialCode = "DAILY_LIMIT_EXCEEDED"
	DenialMonthlyLimitExceeded DenialCode = "MONTHLY_LIMIT_EXCEEDED"
	DenialMerchantNotAllowed   DenialCode = "MERCHANT_NOT_ALLOWED"
)

// Period returns the human-readable limit period for the denial code.
func (c DenialCode) Period() string {
	switch c {
	case DenialDailyLimitExceeded:
		return "daily"
	case DenialMonthlyLimitExceeded:
		return "monthly"
	default:
		return "per-transaction"
	}
}

// SpendingDenial carries the figures of a denied evaluation.
type SpendingDenial struct {
	Code      DenialCode `json:"code"`
	Limit     string     `json:"limit"`
	Current   string     `json:"current"`
	Requested string     `json:"requested"`
}

// SpendingEvaluation is the Evaluator's verdict. Denial is nil when Allowed.
type SpendingEvaluation struct {
	Allowed bool            `json:"allowed"`
	Denial  *SpendingDenial `json:"denial,omitempty"`
}
