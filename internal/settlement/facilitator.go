package settlement

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"agentpay/config"
	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/money"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
)

// validAfterSkew backdates the authorization so facilitator and chain
// clock drift cannot reject it.
const validAfterSkew = 60 * time.Second

// retryDelay is the pause before the single retry of a transient facilitator
// failure. Variable so tests can shorten it.
var retryDelay = 3 * time.Second

// FacilitatorStrategy settles through an x402 facilitator: the custody engine
// signs an EIP-3009 transfer authorization and the facilitator broadcasts it,
// moving USDC straight from the wallet to the merchant payout address.
type FacilitatorStrategy struct {
	custody ports.CustodyService
	http    *http.Client
	baseURL string
	chain   config.ChainConfig
	maxWait int // seconds the facilitator may take to broadcast
	log     zerolog.Logger
}

// NewFacilitatorStrategy creates the facilitator-backed settlement strategy.
func NewFacilitatorStrategy(custody ports.CustodyService, fcfg config.FacilitatorConfig, ccfg config.ChainConfig, log zerolog.Logger) *FacilitatorStrategy {
	return &FacilitatorStrategy{
		custody: custody,
		http:    &http.Client{Timeout: fcfg.Timeout},
		baseURL: fcfg.BaseURL,
		chain:   ccfg,
		maxWait: fcfg.MaxTimeoutSeconds,
		log:     log.With().Str("component", "settlement.facilitator").Logger(),
	}
}

// Name identifies the strategy in logs and config.
func (s *FacilitatorStrategy) Name() string { return "facilitator" }

// Settle signs a transfer authorization and submits it to the facilitator.
// Transient facilitator failures (timeout, 5xx) are retried once.
func (s *FacilitatorStrategy) Settle(ctx context.Context, wallet *domain.Wallet, amountUSDC string, dest domain.SettlementDestination) (*domain.SettlementResult, error) {
	value, err := money.Parse(amountUSDC)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generating authorization nonce: %w", err))
	}

	now := time.Now()
	auth := authorization{
		From:        wallet.Address,
		To:          dest.PayoutAddress,
		Value:       value.String(),
		ValidAfter:  strconv.FormatInt(now.Add(-validAfterSkew).Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(time.Duration(s.maxWait)*time.Second).Unix(), 10),
		Nonce:       "0x" + hex.EncodeToString(nonce),
	}

	signature, err := s.custody.SignTypedData(ctx, wallet.CustodyID, s.typedData(auth))
	if err != nil {
		return nil, apperror.PaymentFailed("signing transfer authorization", false, err)
	}

	resp, err := s.submit(ctx, auth, signature)
	if err != nil {
		var transient *transientError
		if !errors.As(err, &transient) {
			return nil, apperror.PaymentFailed("facilitator rejected settlement", false, err)
		}

		s.log.Warn().Err(err).Msg("transient facilitator failure, retrying once")
		select {
		case <-ctx.Done():
			return nil, apperror.PaymentFailed("settlement cancelled", true, ctx.Err())
		case <-time.After(retryDelay):
		}

		resp, err = s.submit(ctx, auth, signature)
		if err != nil {
			retriable := errors.As(err, &transient)
			return nil, apperror.PaymentFailed("facilitator settlement failed", retriable, err)
		}
	}

	if resp.Transaction == "" {
		// Money may or may not have moved; never retry blindly.
		return nil, apperror.PaymentFailed("facilitator returned no transaction hash", false, nil)
	}

	s.log.Info().
		Str("tx_hash", resp.Transaction).
		Str("payer", wallet.Address).
		Str("pay_to", dest.PayoutAddress).
		Msg("facilitator settlement confirmed")

	return &domain.SettlementResult{
		PaymentReference: auth.Nonce,
		TxHash:           resp.Transaction,
		SettledAt:        time.Now().UTC(),
	}, nil
}

// authorization is the EIP-3009 TransferWithAuthorization message.
type authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

func (s *FacilitatorStrategy) typedData(auth authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              s.chain.TokenName,
			Version:           s.chain.TokenVersion,
			ChainId:           ethmath.NewHexOrDecimal256(s.chain.ChainID),
			VerifyingContract: s.chain.TokenContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

type settleRequest struct {
	Payload             paymentPayload      `json:"payload"`
	PaymentRequirements paymentRequirements `json:"paymentRequirements"`
}

type paymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     exactPayload `json:"payload"`
}

type exactPayload struct {
	Signature     string        `json:"signature"`
	Authorization authorization `json:"authorization"`
}

type paymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	PayTo             string `json:"payTo"`
	Asset             string `json:"asset"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
}

type settleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	ErrorReason string `json:"errorReason"`
}

// transientError marks failures worth one retry: timeouts and facilitator 5xx.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (s *FacilitatorStrategy) submit(ctx context.Context, auth authorization, signature string) (*settleResponse, error) {
	body, err := json.Marshal(settleRequest{
		Payload: paymentPayload{
			X402Version: 1,
			Scheme:      "exact",
			Network:     s.chain.Network,
			Payload: exactPayload{
				Signature:     signature,
				Authorization: auth,
			},
		},
		PaymentRequirements: paymentRequirements{
			Scheme:            "exact",
			Network:           s.chain.Network,
			MaxAmountRequired: auth.Value,
			PayTo:             auth.To,
			Asset:             s.chain.TokenContract,
			MaxTimeoutSeconds: s.maxWait,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal settle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build settle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &transientError{fmt.Errorf("facilitator request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("facilitator returned %d", resp.StatusCode)}
	}

	var out settleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode settle response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !out.Success {
		reason := out.ErrorReason
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("facilitator declined settlement: %s", reason)
	}
	return &out, nil
}
