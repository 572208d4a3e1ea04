package ports

import (
	"context"
	"time"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for custodial wallets.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
}

// AgentKeyRepository defines persistence operations for agent API keys.
type AgentKeyRepository interface {
	Create(ctx context.Context, key *domain.AgentKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AgentKey, error)
	// GetByKeyHash looks up a key by the SHA-256 digest of the raw secret.
	GetByKeyHash(ctx context.Context, keyHash string) (*domain.AgentKey, error)
}

// PolicyRepository defines persistence operations for spending policies.
// GetActiveByAgentKey runs inside the reservation transaction so the policy
// read participates in serializable isolation.
type PolicyRepository interface {
	Create(ctx context.Context, policy *domain.SpendingPolicy) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SpendingPolicy, error)
	GetActiveByAgentKey(ctx context.Context, tx pgx.Tx, agentKeyID uuid.UUID) (*domain.SpendingPolicy, error)
}

// TransactionRepository defines persistence operations for transactions.
// Methods accepting pgx.Tx are used inside the serializable reservation block.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// SumSpentSince returns the total non-failed USDC spend for the agent
	// key with initiated_at >= since, as a decimal string ("0" when empty).
	// Pending and settling rows count: a reservation holds budget until it fails.
	SumSpentSince(ctx context.Context, tx pgx.Tx, agentKeyID uuid.UUID, since time.Time) (string, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error
	MarkSettled(ctx context.Context, id uuid.UUID, txHash string, settledAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	WalletID uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	From     *int64 // Unix timestamp
	To       *int64 // Unix timestamp
	Page     int
	PageSize int
}

// OrderRepository defines persistence operations for merchant orders.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.Order, error)
}

// MerchantRepository defines persistence operations for connected merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	ListActive(ctx context.Context) ([]domain.Merchant, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	// BeginSerializable opens a transaction at SERIALIZABLE isolation.
	// Callers must be prepared to re-run on serialization failure (SQLSTATE 40001).
	BeginSerializable(ctx context.Context) (pgx.Tx, error)
}
