package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// maxReserveAttempts bounds re-runs of the serializable reservation block.
// Concurrent reservations against the same agent key abort each other with
// SQLSTATE 40001; the loser re-reads the spent sum and re-evaluates.
const maxReserveAttempts = 3

const serializationFailure = "40001"

// PurchaseServiceImpl implements ports.PurchaseService: price the product,
// reserve budget under the spending policy, settle on-chain, record the
// merchant order.
type PurchaseServiceImpl struct {
	walletRepo        ports.WalletRepository
	merchantRepo      ports.MerchantRepository
	txRepo            ports.TransactionRepository
	orderRepo         ports.OrderRepository
	catalog           ports.CatalogService
	spending          ports.SpendingService
	chain             ports.ChainClient
	strategy          ports.SettlementStrategy
	orders            ports.OrderAPI
	transactor        ports.DBTransactor
	settlementTimeout time.Duration
	log               zerolog.Logger
}

// NewPurchaseService creates a new PurchaseServiceImpl.
func NewPurchaseService(
	walletRepo ports.WalletRepository,
	merchantRepo ports.MerchantRepository,
	txRepo ports.TransactionRepository,
	orderRepo ports.OrderRepository,
	catalog ports.CatalogService,
	spending ports.SpendingService,
	chain ports.ChainClient,
	strategy ports.SettlementStrategy,
	orders ports.OrderAPI,
	transactor ports.DBTransactor,
	settlementTimeout time.Duration,
	log zerolog.Logger,
) *PurchaseServiceImpl {
	return &PurchaseServiceImpl{
		walletRepo:        walletRepo,
		merchantRepo:      merchantRepo,
		txRepo:            txRepo,
		orderRepo:         orderRepo,
		catalog:           catalog,
		spending:          spending,
		chain:             chain,
		strategy:          strategy,
		orders:            orders,
		transactor:        transactor,
		settlementTimeout: settlementTimeout,
		log:               log,
	}
}

// Purchase runs the full flow. Once the settlement strategy is invoked the
// outcome is recorded no matter what happens to the caller's context.
func (s *PurchaseServiceImpl) Purchase(ctx context.Context, req ports.PurchaseRequest) (*ports.PurchaseResult, error) {
	if req.Quantity < 1 {
		return nil, apperror.Validation("quantity must be at least 1")
	}

	wallet, err := s.walletRepo.GetByID(ctx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil || !wallet.IsActive {
		return nil, apperror.WalletNotFound(req.WalletID.String())
	}

	merchant, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load merchant: %w", err))
	}
	if merchant == nil || !merchant.IsActive {
		return nil, apperror.NotFound("merchant")
	}

	product, err := s.catalog.GetProduct(ctx, req.MerchantID, req.ProductID)
	if err != nil {
		return nil, err
	}

	variantID := ""
	if req.VariantID != nil {
		variantID = *req.VariantID
	}
	unitPrice, ok := product.VariantPrice(variantID)
	if !ok {
		return nil, apperror.NotFound(fmt.Sprintf("variant %q", variantID))
	}

	total, err := money.Multiply(unitPrice, req.Quantity)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("price %q: %w", unitPrice, err))
	}

	if err := s.checkBalance(ctx, wallet.Address, total); err != nil {
		return nil, err
	}

	txn, err := s.reserve(ctx, req, merchant, product, total)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("agent_key_id", req.AgentKeyID.String()).
		Str("merchant_id", req.MerchantID.String()).
		Str("amount_usdc", total).
		Msg("budget reserved, settling")

	// The reservation is committed. From here every path must resolve the
	// transaction row to settled or failed, even if the caller goes away.
	bg := context.WithoutCancel(ctx)

	if err := s.txRepo.UpdateStatus(bg, txn.ID, domain.TransactionStatusSettling); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark transaction settling")
	}

	settleCtx, cancel := context.WithTimeout(bg, s.settlementTimeout)
	defer cancel()

	result, err := s.strategy.Settle(settleCtx, wallet, total, merchant.Destination())
	if err != nil {
		s.failTransaction(bg, txn.ID, err)
		return nil, err
	}

	if err := s.txRepo.MarkSettled(bg, txn.ID, result.TxHash, result.SettledAt); err != nil {
		// Money moved; never unwind. The row stays 'settling' with the
		// hash only in the logs until repaired.
		s.log.Error().Err(err).
			Str("transaction_id", txn.ID.String()).
			Str("tx_hash", result.TxHash).
			Msg("failed to mark transaction settled")
	}

	order := s.placeOrder(bg, txn, merchant, product, req, unitPrice, total, result)

	res := &ports.PurchaseResult{
		TransactionID: txn.ID,
		TxHash:        result.TxHash,
		Product: ports.PurchasedProduct{
			ID:        product.ID,
			Name:      product.Title,
			VariantID: req.VariantID,
		},
		AmountUSDC: total,
		Status:     domain.TransactionStatusSettled,
	}
	if order != nil && order.Status == domain.OrderStatusConfirmed {
		res.OrderID = order.MerchantOrderID
		res.OrderNumber = order.OrderNumber
	}

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("tx_hash", result.TxHash).
		Str("amount_usdc", total).
		Str("strategy", s.strategy.Name()).
		Msg("purchase settled")

	return res, nil
}

func (s *PurchaseServiceImpl) checkBalance(ctx context.Context, address, total string) error {
	required, err := money.Parse(total)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("parse total %q: %w", total, err))
	}
	balance, err := s.chain.TokenBalance(ctx, address)
	if err != nil {
		return apperror.UpstreamUnavailable("token balance lookup failed", err)
	}
	if balance.Cmp(required) < 0 {
		return apperror.InsufficientBalance(money.Format(balance), total)
	}
	return nil
}

// reserve atomically evaluates the spending policy and inserts the pending
// transaction row under serializable isolation.
func (s *PurchaseServiceImpl) reserve(ctx context.Context, req ports.PurchaseRequest, merchant *domain.Merchant, product *domain.Product, total string) (*domain.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		txn, err := s.tryReserve(ctx, req, merchant, product, total)
		if err == nil {
			return txn, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
		s.log.Debug().
			Int("attempt", attempt).
			Str("agent_key_id", req.AgentKeyID.String()).
			Msg("reservation serialization conflict, retrying")
	}
	return nil, apperror.InternalError(fmt.Errorf("reservation conflict persisted after %d attempts: %w", maxReserveAttempts, lastErr))
}

func (s *PurchaseServiceImpl) tryReserve(ctx context.Context, req ports.PurchaseRequest, merchant *domain.Merchant, product *domain.Product, total string) (*domain.Transaction, error) {
	dbTx, err := s.transactor.BeginSerializable(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin reservation tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	eval, err := s.spending.Evaluate(ctx, dbTx, req.AgentKeyID, req.MerchantID, total)
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("evaluate policy: %w", err))
	}
	if !eval.Allowed {
		d := eval.Denial
		return nil, apperror.SpendingLimit(d.Code.Period(), d.Limit, d.Current, d.Requested)
	}

	storeURL := merchant.StoreURL()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    req.WalletID,
		AgentKeyID:  req.AgentKeyID,
		Type:        domain.TransactionTypePurchase,
		Status:      domain.TransactionStatusPending,
		AmountUSDC:  total,
		MerchantID:  &req.MerchantID,
		ProductID:   &product.ID,
		ProductName: &product.Title,
		StoreURL:    &storeURL,
		InitiatedAt: time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return txn, nil
}

func (s *PurchaseServiceImpl) failTransaction(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	if appErr, ok := apperror.As(cause); ok {
		msg = appErr.Message
	}
	if err := s.txRepo.MarkFailed(ctx, id, msg); err != nil {
		s.log.Error().Err(err).Str("transaction_id", id.String()).Msg("failed to mark transaction failed")
	}
}

// placeOrder creates the merchant-side order and the local order row. Order
// failures never unwind the settled transaction; they are recorded with the
// settlement reference for manual reconciliation.
func (s *PurchaseServiceImpl) placeOrder(ctx context.Context, txn *domain.Transaction, merchant *domain.Merchant, product *domain.Product, req ports.PurchaseRequest, unitPrice, total string, settlement *domain.SettlementResult) *domain.Order {
	order := &domain.Order{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		WalletID:      req.WalletID,
		MerchantID:    merchant.ID,
		ProductID:     product.ID,
		ProductName:   product.Title,
		VariantID:     req.VariantID,
		Quantity:      req.Quantity,
		UnitPriceUSDC: unitPrice,
		TotalUSDC:     total,
		StoreURL:      merchant.StoreURL(),
	}

	conf, err := s.orders.CreateOrder(ctx, merchant, ports.OrderRequest{
		ProductID:     product.ID,
		VariantID:     req.VariantID,
		Quantity:      req.Quantity,
		TotalUSDC:     total,
		CustomerNote:  fmt.Sprintf("Settled via %s, ref %s", s.strategy.Name(), settlement.PaymentReference),
		SettlementRef: settlement.PaymentReference,
	})
	if err != nil {
		errMsg := err.Error()
		order.Status = domain.OrderStatusFailed
		order.ErrorMessage = &errMsg
		s.log.Error().Err(err).
			Str("transaction_id", txn.ID.String()).
			Str("settlement_ref", settlement.PaymentReference).
			Msg("merchant order creation failed after settlement")
	} else {
		order.Status = domain.OrderStatusConfirmed
		order.MerchantOrderID = &conf.OrderID
		order.OrderNumber = &conf.OrderNumber
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.log.Error().Err(err).
			Str("transaction_id", txn.ID.String()).
			Msg("failed to persist order record")
		return nil
	}
	return order
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}
