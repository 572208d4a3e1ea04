package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeFund     TransactionType = "fund"
	TransactionTypeRefund   TransactionType = "refund"
)

// TransactionStatus represents the lifecycle state of a transaction.
// Status only moves pending -> settled or pending -> failed, never backward.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSettling TransactionStatus = "settling"
	TransactionStatusSettled  TransactionStatus = "settled"
	TransactionStatusFailed   TransactionStatus = "failed"
)

// Transaction is one money-movement attempt. AmountUSDC is immutable once
// set; only the orchestrator that created the row mutates its status.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	WalletID     uuid.UUID         `json:"wallet_id"`
	AgentKeyID   uuid.UUID         `json:"agent_key_id"`
	Type         TransactionType   `json:"type"`
	Status       TransactionStatus `json:"status"`
	AmountUSDC   string            `json:"amount_usdc"`
	TxHash       *string           `json:"tx_hash,omitempty"`
	MerchantID   *uuid.UUID        `json:"merchant_id,omitempty"`
	ProductID    *string           `json:"product_id,omitempty"`
	ProductName  *string           `json:"product_name,omitempty"`
	StoreURL     *string           `json:"store_url,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	InitiatedAt  time.Time         `json:"initiated_at"`
	SettledAt    *time.Time        `json:"settled_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// IsTerminal returns true if the transaction reached a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSettled || t.Status == TransactionStatusFailed
}

// CanTransitionTo enforces the forward-only status lattice.
func (t *Transaction) CanTransitionTo(next TransactionStatus) bool {
	switch t.Status {
	case TransactionStatusPending:
		return next == TransactionStatusSettling ||
			next == TransactionStatusSettled ||
			next == TransactionStatusFailed
	case TransactionStatusSettling:
		return next == TransactionStatusSettled || next == TransactionStatusFailed
	default:
		return false
	}
}

// SettlementResult is a settlement strategy's transient output; it is folded
// into the Transaction on success and never persisted on its own.
type SettlementResult struct {
	PaymentReference string    `json:"payment_reference"`
	TxHash           string    `json:"tx_hash"`
	SettledAt        time.Time `json:"settled_at"`
}
