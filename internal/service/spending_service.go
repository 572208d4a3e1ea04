package service

import (
	"context"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SpendingServiceImpl evaluates purchase amounts against the active spending
// policy of an agent key. Evaluate must run inside the caller's transaction so
// that the spent-sum it reads and the transaction row the caller inserts are
// serialized together.
type SpendingServiceImpl struct {
	policyRepo ports.PolicyRepository
	txRepo     ports.TransactionRepository
	log        zerolog.Logger
}

func NewSpendingService(
	policyRepo ports.PolicyRepository,
	txRepo ports.TransactionRepository,
	log zerolog.Logger,
) *SpendingServiceImpl {
	return &SpendingServiceImpl{
		policyRepo: policyRepo,
		txRepo:     txRepo,
		log:        log,
	}
}

func (s *SpendingServiceImpl) Evaluate(ctx context.Context, tx pgx.Tx, agentKeyID, merchantID uuid.UUID, amountUSDC string) (*domain.SpendingEvaluation, error) {
	positive, err := money.IsPositive(amountUSDC)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("invalid amount: %v", err))
	}
	if !positive {
		return nil, apperror.Validation("amount must be positive")
	}

	policy, err := s.policyRepo.GetActiveByAgentKey(ctx, tx, agentKeyID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if policy == nil {
		return nil, apperror.PolicyNotFound(agentKeyID.String())
	}

	if !policy.AllowsMerchant(merchantID) {
		return deny(domain.DenialMerchantNotAllowed, "", "", amountUSDC), nil
	}

	over, err := money.Compare(amountUSDC, policy.MaxPerTx)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("invalid amount: %v", err))
	}
	if over > 0 {
		return deny(domain.DenialPerTxExceeded, policy.MaxPerTx, "0", amountUSDC), nil
	}

	now := time.Now().UTC()

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	denial, err := s.checkWindow(ctx, tx, agentKeyID, dayStart, policy.DailyLimit, domain.DenialDailyLimitExceeded, amountUSDC)
	if err != nil || denial != nil {
		return denial, err
	}

	if policy.MonthlyLimit != nil {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		denial, err = s.checkWindow(ctx, tx, agentKeyID, monthStart, *policy.MonthlyLimit, domain.DenialMonthlyLimitExceeded, amountUSDC)
		if err != nil || denial != nil {
			return denial, err
		}
	}

	return &domain.SpendingEvaluation{Allowed: true}, nil
}

// checkWindow sums what the key already committed since the window start and
// rejects when the new amount would push the total past the limit.
func (s *SpendingServiceImpl) checkWindow(ctx context.Context, tx pgx.Tx, agentKeyID uuid.UUID, since time.Time, limit string, code domain.DenialCode, amountUSDC string) (*domain.SpendingEvaluation, error) {
	spent, err := s.txRepo.SumSpentSince(ctx, tx, agentKeyID, since)
	if err != nil {
		return nil, fmt.Errorf("sum spent since %s: %w", since.Format(time.RFC3339), err)
	}

	total, err := money.Add(spent, amountUSDC)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("invalid amount: %v", err))
	}
	over, err := money.Compare(total, limit)
	if err != nil {
		return nil, fmt.Errorf("compare against limit: %w", err)
	}
	if over > 0 {
		return deny(code, limit, spent, amountUSDC), nil
	}
	return nil, nil
}

func deny(code domain.DenialCode, limit, current, requested string) *domain.SpendingEvaluation {
	return &domain.SpendingEvaluation{
		Allowed: false,
		Denial: &domain.SpendingDenial{
			Code:      code,
			Limit:     limit,
			Current:   current,
			Requested: requested,
		},
	}
}
