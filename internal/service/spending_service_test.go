package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports/mocks"
	"agentpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type spendingTestDeps struct {
	svc        *SpendingServiceImpl
	policyRepo *mocks.MockPolicyRepository
	txRepo     *mocks.MockTransactionRepository
	ctrl       *gomock.Controller
}

func setupSpendingService(t *testing.T) *spendingTestDeps {
	ctrl := gomock.NewController(t)
	d := &spendingTestDeps{
		policyRepo: mocks.NewMockPolicyRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewSpendingService(d.policyRepo, d.txRepo, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func testPolicy(agentKeyID uuid.UUID) *domain.SpendingPolicy {
	return &domain.SpendingPolicy{
		ID:         uuid.New(),
		AgentKeyID: agentKeyID,
		WalletID:   uuid.New(),
		Name:       "groceries",
		MaxPerTx:   "25.000000",
		DailyLimit: "50.000000",
		IsActive:   true,
	}
}

func TestSpendingService_Evaluate_Allowed(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	merchantID := uuid.New()
	tx := &mockTx{}

	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(testPolicy(agentKeyID), nil)
	d.txRepo.EXPECT().SumSpentSince(ctx, tx, agentKeyID, gomock.Any()).Return("10.000000", nil)

	eval, err := d.svc.Evaluate(ctx, tx, agentKeyID, merchantID, "15.000000")
	require.NoError(t, err)
	assert.True(t, eval.Allowed)
	assert.Nil(t, eval.Denial)
}

func TestSpendingService_Evaluate_RejectsNonPositiveAmount(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	for _, amount := range []string{"0", "0.000000"} {
		_, err := d.svc.Evaluate(ctx, tx, uuid.New(), uuid.New(), amount)
		require.Error(t, err, "amount %q", amount)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	}
}

func TestSpendingService_Evaluate_NoActivePolicy(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	tx := &mockTx{}

	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(nil, nil)

	_, err := d.svc.Evaluate(ctx, tx, agentKeyID, uuid.New(), "5.000000")
	require.Error(t, err)
	assert.Equal(t, apperror.CodePolicyNotFound, apperror.CodeOf(err))
}

func TestSpendingService_Evaluate_MerchantNotAllowed(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	merchantID := uuid.New()
	tx := &mockTx{}

	policy := testPolicy(agentKeyID)
	policy.AllowedMerchants = []string{uuid.New().String()}
	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(policy, nil)

	eval, err := d.svc.Evaluate(ctx, tx, agentKeyID, merchantID, "5.000000")
	require.NoError(t, err)
	require.False(t, eval.Allowed)
	assert.Equal(t, domain.DenialMerchantNotAllowed, eval.Denial.Code)
}

func TestSpendingService_Evaluate_PerTxExceeded(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	tx := &mockTx{}

	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(testPolicy(agentKeyID), nil)

	eval, err := d.svc.Evaluate(ctx, tx, agentKeyID, uuid.New(), "25.000001")
	require.NoError(t, err)
	require.False(t, eval.Allowed)
	assert.Equal(t, domain.DenialPerTxExceeded, eval.Denial.Code)
	assert.Equal(t, "25.000000", eval.Denial.Limit)
	assert.Equal(t, "25.000001", eval.Denial.Requested)
}

func TestSpendingService_Evaluate_DailyLimitExceeded(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	tx := &mockTx{}

	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(testPolicy(agentKeyID), nil)
	d.txRepo.EXPECT().SumSpentSince(ctx, tx, agentKeyID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, since time.Time) (string, error) {
			now := time.Now().UTC()
			assert.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), since)
			return "40.000000", nil
		})

	eval, err := d.svc.Evaluate(ctx, tx, agentKeyID, uuid.New(), "15.000000")
	require.NoError(t, err)
	require.False(t, eval.Allowed)
	assert.Equal(t, domain.DenialDailyLimitExceeded, eval.Denial.Code)
	assert.Equal(t, "50.000000", eval.Denial.Limit)
	assert.Equal(t, "40.000000", eval.Denial.Current)
}

func TestSpendingService_Evaluate_DailyLimitExactlyReached(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	tx := &mockTx{}

	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(testPolicy(agentKeyID), nil)
	d.txRepo.EXPECT().SumSpentSince(ctx, tx, agentKeyID, gomock.Any()).Return("30.000000", nil)

	// spent + requested == limit is still allowed
	eval, err := d.svc.Evaluate(ctx, tx, agentKeyID, uuid.New(), "20.000000")
	require.NoError(t, err)
	assert.True(t, eval.Allowed)
}

func TestSpendingService_Evaluate_MonthlyLimitExceeded(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	tx := &mockTx{}

	monthly := "100.000000"
	policy := testPolicy(agentKeyID)
	policy.MonthlyLimit = &monthly
	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(policy, nil)
	// daily window passes, monthly window trips
	d.txRepo.EXPECT().SumSpentSince(ctx, tx, agentKeyID, gomock.Any()).Return("20.000000", nil)
	d.txRepo.EXPECT().SumSpentSince(ctx, tx, agentKeyID, gomock.Any()).Return("90.000000", nil)

	eval, err := d.svc.Evaluate(ctx, tx, agentKeyID, uuid.New(), "15.000000")
	require.NoError(t, err)
	require.False(t, eval.Allowed)
	assert.Equal(t, domain.DenialMonthlyLimitExceeded, eval.Denial.Code)
	assert.Equal(t, "90.000000", eval.Denial.Current)
}

func TestSpendingService_Evaluate_SumError(t *testing.T) {
	d := setupSpendingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	agentKeyID := uuid.New()
	tx := &mockTx{}

	d.policyRepo.EXPECT().GetActiveByAgentKey(ctx, tx, agentKeyID).Return(testPolicy(agentKeyID), nil)
	d.txRepo.EXPECT().SumSpentSince(ctx, tx, agentKeyID, gomock.Any()).Return("", errors.New("db down"))

	_, err := d.svc.Evaluate(ctx, tx, agentKeyID, uuid.New(), "5.000000")
	require.Error(t, err)
}
