package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// The in-memory repos emulate the postgres layer for end-to-end tests. The
// transactor holds a single mutex from BeginSerializable until Commit or
// Rollback, which gives the same observable behavior as serializable
// isolation with retries: concurrent reservations are applied one at a time
// and each sees the committed spend of the previous one.

// --- In-Memory Transactor ---

type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

type inMemoryTx struct {
	pgx.Tx
	release func()
}

func (t *inMemoryTx) Commit(_ context.Context) error {
	t.release()
	return nil
}

func (t *inMemoryTx) Rollback(_ context.Context) error {
	t.release()
	return nil
}

func (tr *inMemoryTransactor) begin() pgx.Tx {
	tr.mu.Lock()
	var once sync.Once
	return &inMemoryTx{release: func() { once.Do(tr.mu.Unlock) }}
}

func (tr *inMemoryTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	return tr.begin(), nil
}

func (tr *inMemoryTransactor) BeginSerializable(_ context.Context) (pgx.Tx, error) {
	return tr.begin(), nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(_ context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = w
	return nil
}

func (r *inMemoryWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Wallet
	for _, w := range r.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

// --- In-Memory Agent Key Repo ---

type inMemoryAgentKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.AgentKey
}

func newInMemoryAgentKeyRepo() *inMemoryAgentKeyRepo {
	return &inMemoryAgentKeyRepo{keys: make(map[uuid.UUID]*domain.AgentKey)}
}

func (r *inMemoryAgentKeyRepo) Create(_ context.Context, k *domain.AgentKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[k.ID] = k
	return nil
}

func (r *inMemoryAgentKeyRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.AgentKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (r *inMemoryAgentKeyRepo) GetByKeyHash(_ context.Context, keyHash string) (*domain.AgentKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.KeyHash == keyHash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Policy Repo ---

type inMemoryPolicyRepo struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]*domain.SpendingPolicy
}

func newInMemoryPolicyRepo() *inMemoryPolicyRepo {
	return &inMemoryPolicyRepo{policies: make(map[uuid.UUID]*domain.SpendingPolicy)}
}

func (r *inMemoryPolicyRepo) Create(_ context.Context, p *domain.SpendingPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.ID] = p
	return nil
}

func (r *inMemoryPolicyRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SpendingPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPolicyRepo) GetActiveByAgentKey(_ context.Context, _ pgx.Tx, agentKeyID uuid.UUID) (*domain.SpendingPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		if p.AgentKeyID == agentKeyID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu  sync.RWMutex
	txs map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{txs: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(_ context.Context, _ pgx.Tx, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	cp := *tx
	r.txs[tx.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *inMemoryTransactionRepo) SumSpentSince(_ context.Context, _ pgx.Tx, agentKeyID uuid.UUID, since time.Time) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := "0"
	for _, tx := range r.txs {
		if tx.AgentKeyID != agentKeyID || tx.Status == domain.TransactionStatusFailed {
			continue
		}
		if tx.InitiatedAt.Before(since) {
			continue
		}
		var err error
		total, err = money.Add(total, tx.AmountUSDC)
		if err != nil {
			return "", err
		}
	}
	return total, nil
}

func (r *inMemoryTransactionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	tx.Status = status
	return nil
}

func (r *inMemoryTransactionRepo) MarkSettled(_ context.Context, id uuid.UUID, txHash string, settledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	tx.Status = domain.TransactionStatusSettled
	tx.TxHash = &txHash
	tx.SettledAt = &settledAt
	return nil
}

func (r *inMemoryTransactionRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	tx.Status = domain.TransactionStatusFailed
	tx.ErrorMessage = &errorMessage
	return nil
}

func (r *inMemoryTransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Transaction
	for _, tx := range r.txs {
		if tx.WalletID != params.WalletID {
			continue
		}
		if params.Status != nil && tx.Status != *params.Status {
			continue
		}
		if params.Type != nil && tx.Type != *params.Type {
			continue
		}
		matched = append(matched, *tx)
	}
	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *inMemoryOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *inMemoryOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOrderRepo) GetByTransactionID(_ context.Context, transactionID uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.TransactionID == transactionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func (r *inMemoryMerchantRepo) Create(_ context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *inMemoryMerchantRepo) ListActive(_ context.Context) ([]domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Merchant
	for _, m := range r.merchants {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}
