package postgres

import (
	"context"
	"errors"
	"fmt"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AgentKeyRepo implements ports.AgentKeyRepository.
type AgentKeyRepo struct {
	pool Pool
}

// NewAgentKeyRepo creates a new AgentKeyRepo.
func NewAgentKeyRepo(pool Pool) *AgentKeyRepo {
	return &AgentKeyRepo{pool: pool}
}

// Create inserts a new agent key into the database.
func (r *AgentKeyRepo) Create(ctx context.Context, k *domain.AgentKey) error {
	query := `INSERT INTO agent_keys (id, user_id, wallet_id, name, key_hash, key_prefix, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		k.ID, k.UserID, k.WalletID, k.Name,
		k.KeyHash, k.KeyPrefix, k.IsActive, k.ExpiresAt, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent key: %w", err)
	}
	return nil
}

// GetByID fetches an agent key by its UUID.
func (r *AgentKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AgentKey, error) {
	query := `SELECT id, user_id, wallet_id, name, key_hash, key_prefix, is_active, expires_at, created_at
		FROM agent_keys WHERE id = $1`

	return r.scanAgentKey(r.pool.QueryRow(ctx, query, id))
}

// GetByKeyHash fetches an agent key by the SHA-256 digest of its raw secret.
// Used on the request authentication path.
func (r *AgentKeyRepo) GetByKeyHash(ctx context.Context, keyHash string) (*domain.AgentKey, error) {
	query := `SELECT id, user_id, wallet_id, name, key_hash, key_prefix, is_active, expires_at, created_at
		FROM agent_keys WHERE key_hash = $1`

	return r.scanAgentKey(r.pool.QueryRow(ctx, query, keyHash))
}

func (r *AgentKeyRepo) scanAgentKey(row pgx.Row) (*domain.AgentKey, error) {
	k := &domain.AgentKey{}
	err := row.Scan(
		&k.ID, &k.UserID, &k.WalletID, &k.Name,
		&k.KeyHash, &k.KeyPrefix, &k.IsActive, &k.ExpiresAt, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan agent key: %w", err)
	}
	return k, nil
}
