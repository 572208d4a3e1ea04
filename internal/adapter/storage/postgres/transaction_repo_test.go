package postgres

import (
	"context"
	"testing"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestTransaction(walletID, agentKeyID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	merchantID := uuid.New()
	return &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    walletID,
		AgentKeyID:  agentKeyID,
		Type:        domain.TransactionTypePurchase,
		Status:      domain.TransactionStatusPending,
		AmountUSDC:  "24.990000",
		TxHash:      nil,
		MerchantID:  &merchantID,
		ProductID:   strPtr("prod-1"),
		ProductName: strPtr("Mechanical Keyboard"),
		StoreURL:    strPtr("https://demo-shop.example.com"),
		InitiatedAt: now,
		CreatedAt:   now,
	}
}

func txColumns() []string {
	return []string{"id", "wallet_id", "agent_key_id", "type", "status", "amount_usdc",
		"tx_hash", "merchant_id", "product_id", "product_name", "store_url", "error_message",
		"initiated_at", "settled_at", "created_at"}
}

func txRow(t *domain.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(txColumns()).AddRow(
		t.ID, t.WalletID, t.AgentKeyID, t.Type, t.Status, t.AmountUSDC,
		t.TxHash, t.MerchantID, t.ProductID, t.ProductName, t.StoreURL,
		t.ErrorMessage, t.InitiatedAt, t.SettledAt, t.CreatedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			txn.ID, txn.WalletID, txn.AgentKeyID, txn.Type, txn.Status, txn.AmountUSDC,
			txn.TxHash, txn.MerchantID, txn.ProductID, txn.ProductName, txn.StoreURL,
			txn.ErrorMessage, txn.InitiatedAt, txn.SettledAt, txn.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New(), uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(txRow(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, txn.AmountUSDC, result.AmountUSDC)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SumSpentSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	agentKeyID := uuid.New()
	since := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_usdc\), 0\)`).
		WithArgs(agentKeyID, since).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow("42.500000"))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	total, err := repo.SumSpentSince(context.Background(), dbTx, agentKeyID, since)
	require.NoError(t, err)
	assert.Equal(t, "42.500000", total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_MarkSettled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()
	settledAt := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("UPDATE transactions SET status = 'settled'").
		WithArgs("0xabc123", settledAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.MarkSettled(context.Background(), id, "0xabc123", settledAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_MarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE transactions SET status = 'failed'").
		WithArgs("settlement timed out", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.MarkFailed(context.Background(), id, "settlement timed out")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_MarkFailed_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE transactions SET status = 'failed'").
		WithArgs("boom", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.MarkFailed(context.Background(), id, "boom")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	txn := newTestTransaction(walletID, uuid.New())
	txn.WalletID = walletID
	status := domain.TransactionStatusSettled

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(walletID, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM transactions").
		WithArgs(walletID, status, 20, 0).
		WillReturnRows(txRow(txn))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
		Status:   &status,
		Page:     1,
		PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
