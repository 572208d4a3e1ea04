package postgres

import (
	"context"
	"errors"
	"fmt"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts an order record. Called after settlement regardless of
// whether the merchant order succeeded, so the outcome is always recorded.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, transaction_id, wallet_id, merchant_order_id, order_number, status,
		merchant_id, product_id, product_name, variant_id, quantity, unit_price_usdc, total_usdc, store_url,
		error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.TransactionID, o.WalletID, o.MerchantOrderID, o.OrderNumber, o.Status,
		o.MerchantID, o.ProductID, o.ProductName, o.VariantID, o.Quantity,
		o.UnitPriceUSDC, o.TotalUSDC, o.StoreURL, o.ErrorMessage, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID fetches an order by its UUID.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT id, transaction_id, wallet_id, merchant_order_id, order_number, status,
		merchant_id, product_id, product_name, variant_id, quantity, unit_price_usdc, total_usdc, store_url,
		error_message, created_at, updated_at
		FROM orders WHERE id = $1`

	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

// GetByTransactionID fetches the order created for a settlement transaction.
func (r *OrderRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.Order, error) {
	query := `SELECT id, transaction_id, wallet_id, merchant_order_id, order_number, status,
		merchant_id, product_id, product_name, variant_id, quantity, unit_price_usdc, total_usdc, store_url,
		error_message, created_at, updated_at
		FROM orders WHERE transaction_id = $1`

	return scanOrder(r.pool.QueryRow(ctx, query, transactionID))
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.TransactionID, &o.WalletID, &o.MerchantOrderID, &o.OrderNumber, &o.Status,
		&o.MerchantID, &o.ProductID, &o.ProductName, &o.VariantID, &o.Quantity,
		&o.UnitPriceUSDC, &o.TotalUSDC, &o.StoreURL, &o.ErrorMessage, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
