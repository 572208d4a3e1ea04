package ports

import (
	"context"
	"math/big"
	"time"

	"agentpay/internal/core/domain"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ChainClient reads on-chain state for custodial wallets.
type ChainClient interface {
	// TokenBalance returns the USDC balance of an address in base units (6 decimals).
	TokenBalance(ctx context.Context, address string) (*big.Int, error)
	// NativeBalance returns the native token balance of an address in wei.
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
}

// CustodyService talks to the key-custody engine. Private keys never leave it;
// callers reference wallets by their custody identifier.
type CustodyService interface {
	// SignTypedData produces an EIP-712 signature (0x-prefixed hex).
	SignTypedData(ctx context.Context, custodyID string, typedData apitypes.TypedData) (string, error)
	// Transfer enqueues an on-chain USDC transfer and returns the queue reference.
	Transfer(ctx context.Context, custodyID string, to string, amountBaseUnits *big.Int) (string, error)
	// WaitForHash blocks until the queued transfer is broadcast and returns its tx hash.
	WaitForHash(ctx context.Context, queueID string) (string, error)
}

// SettlementStrategy moves funds from a custodial wallet to a merchant
// destination. Implementations decide the rail (facilitator, card network).
type SettlementStrategy interface {
	Settle(ctx context.Context, wallet *domain.Wallet, amountUSDC string, dest domain.SettlementDestination) (*domain.SettlementResult, error)
	Name() string
}

// ProductCatalog fetches product data from a merchant's store.
type ProductCatalog interface {
	GetProduct(ctx context.Context, merchant *domain.Merchant, productID string) (*domain.Product, error)
}

// OrderAPI creates fulfillment orders on a merchant's store.
type OrderAPI interface {
	CreateOrder(ctx context.Context, merchant *domain.Merchant, req OrderRequest) (*OrderConfirmation, error)
}

// OrderRequest holds the input for merchant order creation. SettlementRef is
// the payment reference of the settled transaction; it travels in the order
// note and is attached to order-creation failures for reconciliation.
type OrderRequest struct {
	ProductID     string
	VariantID     *string
	Quantity      int
	TotalUSDC     string
	CustomerNote  string
	SettlementRef string
}

// OrderConfirmation holds the merchant's order identifiers.
type OrderConfirmation struct {
	OrderID     string
	OrderNumber string
}

// ProductCache caches merchant product lookups with a stale fallback copy.
type ProductCache interface {
	Get(ctx context.Context, merchantID uuid.UUID, productID string) (*domain.Product, error) // nil, nil on miss
	Set(ctx context.Context, merchantID uuid.UUID, productID string, product *domain.Product, ttl time.Duration) error
	// GetStale returns the long-lived fallback copy used when the merchant API is down.
	GetStale(ctx context.Context, merchantID uuid.UUID, productID string) (*domain.Product, error)
}

// --- Service Ports (Business Logic) ---

// PurchaseService orchestrates the full purchase flow: price, reserve,
// settle, record, order.
type PurchaseService interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
}

// PurchaseRequest holds validated input for a purchase.
type PurchaseRequest struct {
	AgentKeyID uuid.UUID
	WalletID   uuid.UUID
	MerchantID uuid.UUID
	ProductID  string
	VariantID  *string
	Quantity   int
}

// PurchaseResult is the terminal outcome of a successful purchase. OrderID is
// the merchant-side order identifier; it is nil when order creation failed
// after settlement.
type PurchaseResult struct {
	TransactionID uuid.UUID
	TxHash        string
	OrderID       *string
	OrderNumber   *string
	Product       PurchasedProduct
	AmountUSDC    string
	Status        domain.TransactionStatus
}

// PurchasedProduct identifies what was bought.
type PurchasedProduct struct {
	ID        string
	Name      string
	VariantID *string
}

// SpendingService evaluates a proposed spend against the agent key's policy.
// Evaluate runs inside the caller's reservation transaction.
type SpendingService interface {
	Evaluate(ctx context.Context, tx pgx.Tx, agentKeyID uuid.UUID, merchantID uuid.UUID, amountUSDC string) (*domain.SpendingEvaluation, error)
}

// WalletService exposes wallet balances and transaction history.
type WalletService interface {
	GetBalance(ctx context.Context, walletID uuid.UUID) (*WalletBalance, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// WalletBalance is the live on-chain view of a wallet.
type WalletBalance struct {
	WalletID  uuid.UUID
	Address   string
	USDC      string // decimal string, 6 fraction digits
	NativeWei string
	CheckedAt time.Time
}

// CatalogService resolves merchant products through the cache layer.
type CatalogService interface {
	GetProduct(ctx context.Context, merchantID uuid.UUID, productID string) (*domain.Product, error)
}
