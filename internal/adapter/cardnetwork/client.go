package cardnetwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agentpay/config"

	"github.com/rs/zerolog"
)

// PaymentIntent is the subset of the provider's intent object the settlement
// bridge needs: the identifier and the per-network crypto deposit addresses.
type PaymentIntent struct {
	ID               string
	Status           string
	DepositAddresses map[string]string
}

// Client talks to the card-network payments API (Stripe-compatible form
// encoding). It implements the connected-account leg of settlement: a crypto
// payment intent whose deposit address receives the custodial USDC.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a card-network API client.
func NewClient(cfg config.CardNetworkConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "cardnetwork").Logger(),
	}
}

type intentDTO struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	NextAction *struct {
		CryptoCollectDepositDetails *struct {
			DepositAddresses map[string]string `json:"deposit_addresses"`
		} `json:"crypto_collect_deposit_details"`
	} `json:"next_action"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCryptoIntent opens a confirmed crypto payment intent routed to the
// merchant's connected account. amountCents is USD cents.
func (c *Client) CreateCryptoIntent(ctx context.Context, amountCents int64, connectedAccountID string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "usd")
	form.Set("confirm", "true")
	form.Set("payment_method_types[]", "crypto")
	form.Set("payment_method_data[type]", "crypto")
	form.Set("transfer_data[destination]", connectedAccountID)

	dto, err := c.post(ctx, "/v1/payment_intents", form)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	intent := &PaymentIntent{ID: dto.ID, Status: dto.Status}
	if dto.NextAction != nil && dto.NextAction.CryptoCollectDepositDetails != nil {
		intent.DepositAddresses = dto.NextAction.CryptoCollectDepositDetails.DepositAddresses
	}
	return intent, nil
}

// CancelIntent abandons an intent whose deposit details were unusable.
func (c *Client) CancelIntent(ctx context.Context, intentID string) error {
	if _, err := c.post(ctx, "/v1/payment_intents/"+intentID+"/cancel", url.Values{}); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*intentDTO, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var dto intentDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("card network request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "unknown error"
		if dto.Error != nil {
			msg = dto.Error.Message
		}
		return nil, fmt.Errorf("card network returned %d: %s", resp.StatusCode, msg)
	}
	return &dto, nil
}
