package postgres

import (
	"context"
	"testing"
	"time"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(agentKeyID, walletID uuid.UUID) *domain.SpendingPolicy {
	now := time.Now().UTC().Truncate(time.Microsecond)
	monthly := "500.000000"
	return &domain.SpendingPolicy{
		ID:               uuid.New(),
		AgentKeyID:       agentKeyID,
		WalletID:         walletID,
		Name:             "default",
		MaxPerTx:         "25.000000",
		DailyLimit:       "100.000000",
		MonthlyLimit:     &monthly,
		AllowedMerchants: []string{uuid.NewString()},
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func policyColumns() []string {
	return []string{"id", "agent_key_id", "wallet_id", "name", "max_per_tx", "daily_limit",
		"monthly_limit", "allowed_merchants", "is_active", "created_at", "updated_at"}
}

func policyRow(p *domain.SpendingPolicy) *pgxmock.Rows {
	return pgxmock.NewRows(policyColumns()).AddRow(
		p.ID, p.AgentKeyID, p.WalletID, p.Name,
		p.MaxPerTx, p.DailyLimit, p.MonthlyLimit, p.AllowedMerchants,
		p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
}

func TestPolicyRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPolicyRepo(mock)
	p := newTestPolicy(uuid.New(), uuid.New())

	mock.ExpectExec("INSERT INTO spending_policies").
		WithArgs(p.ID, p.AgentKeyID, p.WalletID, p.Name,
			p.MaxPerTx, p.DailyLimit, p.MonthlyLimit, p.AllowedMerchants,
			p.IsActive, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_GetActiveByAgentKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPolicyRepo(mock)
	p := newTestPolicy(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM spending_policies WHERE agent_key_id").
		WithArgs(p.AgentKeyID).
		WillReturnRows(policyRow(p))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetActiveByAgentKey(context.Background(), dbTx, p.AgentKeyID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.MaxPerTx, result.MaxPerTx)
	assert.Equal(t, p.AllowedMerchants, result.AllowedMerchants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_GetActiveByAgentKey_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPolicyRepo(mock)
	agentKeyID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM spending_policies WHERE agent_key_id").
		WithArgs(agentKeyID).
		WillReturnRows(pgxmock.NewRows(policyColumns()))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetActiveByAgentKey(context.Background(), dbTx, agentKeyID)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
