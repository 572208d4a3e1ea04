package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the merchant-side bookkeeping state of a purchase.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order records the merchant-side order for a settled Transaction, at most
// one per Transaction. A failed Order never rolls the Transaction back; the
// money already moved.
type Order struct {
	ID              uuid.UUID   `json:"id"`
	TransactionID   uuid.UUID   `json:"transaction_id"`
	WalletID        uuid.UUID   `json:"wallet_id"`
	MerchantOrderID *string     `json:"merchant_order_id,omitempty"`
	OrderNumber     *string     `json:"order_number,omitempty"`
	Status          OrderStatus `json:"status"`
	MerchantID      uuid.UUID   `json:"merchant_id"`
	ProductID       string      `json:"product_id"`
	ProductName     string      `json:"product_name"`
	VariantID       *string     `json:"variant_id,omitempty"`
	Quantity        int         `json:"quantity"`
	UnitPriceUSDC   string      `json:"unit_price_usdc"`
	TotalUSDC       string      `json:"total_usdc"`
	StoreURL        string      `json:"store_url"`
	ErrorMessage    *string     `json:"error_message,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
