package postgres

import (
	"context"
	"errors"
	"fmt"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PolicyRepo implements ports.PolicyRepository.
type PolicyRepo struct {
	pool Pool
}

// NewPolicyRepo creates a new PolicyRepo.
func NewPolicyRepo(pool Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

// Create inserts a new spending policy into the database.
func (r *PolicyRepo) Create(ctx context.Context, p *domain.SpendingPolicy) error {
	query := `INSERT INTO spending_policies (id, agent_key_id, wallet_id, name, max_per_tx, daily_limit,
		monthly_limit, allowed_merchants, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.AgentKeyID, p.WalletID, p.Name,
		p.MaxPerTx, p.DailyLimit, p.MonthlyLimit, p.AllowedMerchants,
		p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert spending policy: %w", err)
	}
	return nil
}

// GetByID fetches a policy by its UUID.
func (r *PolicyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SpendingPolicy, error) {
	query := `SELECT id, agent_key_id, wallet_id, name, max_per_tx, daily_limit,
		monthly_limit, allowed_merchants, is_active, created_at, updated_at
		FROM spending_policies WHERE id = $1`

	return scanPolicy(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByAgentKey fetches the active policy for an agent key inside the
// caller's transaction, so the read participates in its isolation level.
func (r *PolicyRepo) GetActiveByAgentKey(ctx context.Context, tx pgx.Tx, agentKeyID uuid.UUID) (*domain.SpendingPolicy, error) {
	query := `SELECT id, agent_key_id, wallet_id, name, max_per_tx, daily_limit,
		monthly_limit, allowed_merchants, is_active, created_at, updated_at
		FROM spending_policies WHERE agent_key_id = $1 AND is_active = true`

	return scanPolicy(tx.QueryRow(ctx, query, agentKeyID))
}

func scanPolicy(row pgx.Row) (*domain.SpendingPolicy, error) {
	p := &domain.SpendingPolicy{}
	err := row.Scan(
		&p.ID, &p.AgentKeyID, &p.WalletID, &p.Name,
		&p.MaxPerTx, &p.DailyLimit, &p.MonthlyLimit, &p.AllowedMerchants,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan spending policy: %w", err)
	}
	return p, nil
}
