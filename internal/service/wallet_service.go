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
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WalletServiceImpl exposes live on-chain balances and the transaction
// history of a wallet.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	chain      ports.ChainClient
	log        zerolog.Logger
}

func NewWalletService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	chain ports.ChainClient,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		chain:      chain,
		log:        log,
	}
}

func (s *WalletServiceImpl) GetBalance(ctx context.Context, walletID uuid.UUID) (*ports.WalletBalance, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if wallet == nil || !wallet.IsActive {
		return nil, apperror.WalletNotFound(walletID.String())
	}

	usdc, err := s.chain.TokenBalance(ctx, wallet.Address)
	if err != nil {
		return nil, apperror.UpstreamUnavailable("token balance lookup failed", err)
	}
	native, err := s.chain.NativeBalance(ctx, wallet.Address)
	if err != nil {
		return nil, apperror.UpstreamUnavailable("native balance lookup failed", err)
	}

	return &ports.WalletBalance{
		WalletID:  wallet.ID,
		Address:   wallet.Address,
		USDC:      money.Format(usdc),
		NativeWei: native.String(),
		CheckedAt: time.Now().UTC(),
	}, nil
}

func (s *WalletServiceImpl) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		params.PageSize = defaultPageSize
	}

	txs, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}
