package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"agentpay/config"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
)

// pollInterval is how often WaitForHash re-checks a queued transfer.
const pollInterval = 2 * time.Second

// Client talks to the key-custody engine over HTTP. Private keys live inside
// the engine; this client only requests signatures and transfers by wallet
// custody ID.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a custody engine client.
func NewClient(cfg config.CustodyConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "custody").Logger(),
	}
}

type signRequest struct {
	WalletID  string             `json:"wallet_id"`
	TypedData apitypes.TypedData `json:"typed_data"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

// SignTypedData asks the engine to produce an EIP-712 signature for the
// wallet's key. Returns the 0x-prefixed hex signature.
func (c *Client) SignTypedData(ctx context.Context, custodyID string, typedData apitypes.TypedData) (string, error) {
	var resp signResponse
	err := c.do(ctx, http.MethodPost, "/v1/signatures/typed-data", signRequest{
		WalletID:  custodyID,
		TypedData: typedData,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("custody sign typed data: %w", err)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("custody sign typed data: empty signature")
	}
	return resp.Signature, nil
}

type transferRequest struct {
	WalletID string `json:"wallet_id"`
	To       string `json:"to"`
	Amount   string `json:"amount"` // token base units
}

type transferResponse struct {
	QueueID string `json:"queue_id"`
}

// Transfer enqueues an on-chain USDC transfer and returns the queue reference.
// The transfer is broadcast asynchronously; use WaitForHash to observe it.
func (c *Client) Transfer(ctx context.Context, custodyID, to string, amountBaseUnits *big.Int) (string, error) {
	var resp transferResponse
	err := c.do(ctx, http.MethodPost, "/v1/transfers", transferRequest{
		WalletID: custodyID,
		To:       to,
		Amount:   amountBaseUnits.String(),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("custody transfer: %w", err)
	}
	if resp.QueueID == "" {
		return "", fmt.Errorf("custody transfer: empty queue id")
	}
	return resp.QueueID, nil
}

type transferStatus struct {
	Status string `json:"status"` // queued, broadcast, failed
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

// WaitForHash polls the queued transfer until it is broadcast and returns its
// transaction hash. The caller bounds the wait through ctx.
func (c *Client) WaitForHash(ctx context.Context, queueID string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var st transferStatus
		if err := c.do(ctx, http.MethodGet, "/v1/transfers/"+queueID, nil, &st); err != nil {
			return "", fmt.Errorf("custody poll transfer %s: %w", queueID, err)
		}

		switch st.Status {
		case "broadcast":
			if st.TxHash == "" {
				return "", fmt.Errorf("custody transfer %s broadcast without hash", queueID)
			}
			return st.TxHash, nil
		case "failed":
			return "", fmt.Errorf("custody transfer %s failed: %s", queueID, st.Error)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for transfer %s: %w", queueID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("custody engine returned %d: %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
