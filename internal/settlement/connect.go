package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"agentpay/config"
	"agentpay/internal/adapter/cardnetwork"
	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/money"

	"github.com/rs/zerolog"
)

// intentAPI is the card-network surface the strategy needs.
type intentAPI interface {
	CreateCryptoIntent(ctx context.Context, amountCents int64, connectedAccountID string) (*cardnetwork.PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// ConnectStrategy settles through the card network's connected accounts: a
// crypto payment intent yields a deposit address, the custody engine moves
// the wallet's USDC there, and the network pays the merchant out in fiat.
type ConnectStrategy struct {
	cards   intentAPI
	custody ports.CustodyService
	chain   ports.ChainClient
	network string
	minGas  *big.Int
	log     zerolog.Logger
}

// NewConnectStrategy creates the connected-account settlement strategy.
func NewConnectStrategy(cards intentAPI, custody ports.CustodyService, chain ports.ChainClient, ccfg config.ChainConfig, log zerolog.Logger) (*ConnectStrategy, error) {
	minGas, ok := new(big.Int).SetString(ccfg.MinGasWei, 10)
	if !ok {
		return nil, fmt.Errorf("invalid min_gas_wei %q", ccfg.MinGasWei)
	}
	return &ConnectStrategy{
		cards:   cards,
		custody: custody,
		chain:   chain,
		network: ccfg.Network,
		minGas:  minGas,
		log:     log.With().Str("component", "settlement.connect").Logger(),
	}, nil
}

// Name identifies the strategy in logs and config.
func (s *ConnectStrategy) Name() string { return "connect" }

// Settle opens a payment intent, funds its deposit address from custody and
// waits for the transfer hash. A hash-wait failure is retriable: the intent
// expires unfunded and a later attempt opens a fresh one.
func (s *ConnectStrategy) Settle(ctx context.Context, wallet *domain.Wallet, amountUSDC string, dest domain.SettlementDestination) (*domain.SettlementResult, error) {
	if dest.ConnectedAccountID == "" {
		return nil, apperror.PaymentFailed(
			fmt.Sprintf("merchant %s has no connected account", dest.MerchantID), false, nil)
	}

	cents, err := money.ToCents(amountUSDC)
	if err != nil {
		return nil, err
	}
	baseUnits, err := money.Parse(amountUSDC)
	if err != nil {
		return nil, err
	}

	intent, err := s.cards.CreateCryptoIntent(ctx, cents, dest.ConnectedAccountID)
	if err != nil {
		return nil, apperror.PaymentFailed("opening payment intent", true, err)
	}

	depositAddr, ok := intent.DepositAddresses[s.network]
	if !ok || depositAddr == "" {
		s.cancelIntent(ctx, intent.ID)
		return nil, apperror.PaymentFailed(
			fmt.Sprintf("payment intent %s has no deposit address for network %s", intent.ID, s.network), false, nil)
	}

	gas, err := s.chain.NativeBalance(ctx, wallet.Address)
	if err != nil {
		s.cancelIntent(ctx, intent.ID)
		return nil, apperror.UpstreamUnavailable("reading wallet gas balance", err)
	}
	if gas.Cmp(s.minGas) < 0 {
		s.cancelIntent(ctx, intent.ID)
		return nil, apperror.PaymentFailed(
			fmt.Sprintf("wallet %s gas balance %s below minimum %s wei", wallet.Address, gas, s.minGas), false, nil)
	}

	queueID, err := s.custody.Transfer(ctx, wallet.CustodyID, depositAddr, baseUnits)
	if err != nil {
		s.cancelIntent(ctx, intent.ID)
		return nil, apperror.PaymentFailed("enqueueing custody transfer", true, err)
	}

	txHash, err := s.custody.WaitForHash(ctx, queueID)
	if err != nil {
		// The transfer is queued; the hash just never arrived in time.
		e := apperror.PaymentFailed(
			fmt.Sprintf("waiting for transfer hash (queue %s)", queueID), true, err)
		e.Meta = map[string]string{"queue_id": queueID, "payment_intent": intent.ID}
		return nil, e
	}

	s.log.Info().
		Str("tx_hash", txHash).
		Str("payment_intent", intent.ID).
		Str("deposit_address", depositAddr).
		Msg("connected-account settlement funded")

	return &domain.SettlementResult{
		PaymentReference: intent.ID,
		TxHash:           txHash,
		SettledAt:        time.Now().UTC(),
	}, nil
}

// cancelIntent abandons an intent we will never fund. Best effort.
func (s *ConnectStrategy) cancelIntent(ctx context.Context, intentID string) {
	if err := s.cards.CancelIntent(ctx, intentID); err != nil {
		s.log.Warn().Err(err).Str("payment_intent", intentID).Msg("failed to cancel payment intent")
	}
}
