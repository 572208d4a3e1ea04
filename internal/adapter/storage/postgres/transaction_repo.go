package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction. The pending
// purchase row is written here as part of the serializable reservation block.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, wallet_id, agent_key_id, type, status, amount_usdc,
		tx_hash, merchant_id, product_id, product_name, store_url, error_message, initiated_at, settled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.AgentKeyID, t.Type, t.Status, t.AmountUSDC,
		t.TxHash, t.MerchantID, t.ProductID, t.ProductName, t.StoreURL,
		t.ErrorMessage, t.InitiatedAt, t.SettledAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT id, wallet_id, agent_key_id, type, status, amount_usdc,
		tx_hash, merchant_id, product_id, product_name, store_url, error_message, initiated_at, settled_at, created_at
		FROM transactions WHERE id = $1`

	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// SumSpentSince totals non-failed spend for an agent key with
// initiated_at >= since. Runs inside the reservation transaction so
// concurrent reservations serialize against each other.
func (r *TransactionRepo) SumSpentSince(ctx context.Context, tx pgx.Tx, agentKeyID uuid.UUID, since time.Time) (string, error) {
	query := `SELECT COALESCE(SUM(amount_usdc), 0)::text FROM transactions
		WHERE agent_key_id = $1 AND initiated_at >= $2 AND status != 'failed'`

	var total string
	if err := tx.QueryRow(ctx, query, agentKeyID, since).Scan(&total); err != nil {
		return "", fmt.Errorf("sum reserved spend: %w", err)
	}
	return total, nil
}

// UpdateStatus moves a transaction to a new status.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// MarkSettled records the settlement hash and timestamp.
func (r *TransactionRepo) MarkSettled(ctx context.Context, id uuid.UUID, txHash string, settledAt time.Time) error {
	query := `UPDATE transactions SET status = 'settled', tx_hash = $1, settled_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, txHash, settledAt, id)
	if err != nil {
		return fmt.Errorf("mark transaction settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// MarkFailed records a terminal failure with its reason.
func (r *TransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `UPDATE transactions SET status = 'failed', error_message = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, errorMessage, id)
	if err != nil {
		return fmt.Errorf("mark transaction failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// List fetches transactions with filtering and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
	args = append(args, params.WalletID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("initiated_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("initiated_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT id, wallet_id, agent_key_id, type, status, amount_usdc,
		tx_hash, merchant_id, product_id, product_name, store_url, error_message, initiated_at, settled_at, created_at
		FROM transactions %s ORDER BY initiated_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.WalletID, &t.AgentKeyID, &t.Type, &t.Status, &t.AmountUSDC,
			&t.TxHash, &t.MerchantID, &t.ProductID, &t.ProductName, &t.StoreURL,
			&t.ErrorMessage, &t.InitiatedAt, &t.SettledAt, &t.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.WalletID, &t.AgentKeyID, &t.Type, &t.Status, &t.AmountUSDC,
		&t.TxHash, &t.MerchantID, &t.ProductID, &t.ProductName, &t.StoreURL,
		&t.ErrorMessage, &t.InitiatedAt, &t.SettledAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
