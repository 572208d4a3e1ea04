package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Merchant is a store the agent can buy from. PayoutAddress receives
// facilitator settlements; ConnectedAccountID (when linked) is the
// destination for the card-network bridge.
type Merchant struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	ShopDomain         string    `json:"shop_domain"`
	AccessToken        string    `json:"-"` // store order-API credential
	PayoutAddress      string    `json:"payout_address"`
	ConnectedAccountID *string   `json:"connected_account_id,omitempty"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StoreURL returns the merchant's storefront URL. Domains carrying an
// explicit scheme (local dev stores) are returned as-is.
func (m *Merchant) StoreURL() string {
	if strings.HasPrefix(m.ShopDomain, "http://") || strings.HasPrefix(m.ShopDomain, "https://") {
		return m.ShopDomain
	}
	return "https://" + m.ShopDomain
}

// SettlementDestination names where a settlement strategy moves value.
type SettlementDestination struct {
	MerchantID         uuid.UUID
	PayoutAddress      string
	ConnectedAccountID string // empty when the merchant has no linked account
}

// Destination builds the settlement destination for this merchant.
func (m *Merchant) Destination() SettlementDestination {
	d := SettlementDestination{
		MerchantID:    m.ID,
		PayoutAddress: m.PayoutAddress,
	}
	if m.ConnectedAccountID != nil {
		d.ConnectedAccountID = *m.ConnectedAccountID
	}
	return d
}
