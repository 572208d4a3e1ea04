package merchantapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"

	"github.com/rs/zerolog"
)

// defaultRetryAfter is used when a 429 response has no Retry-After header.
const defaultRetryAfter = 2 * time.Second

// Client talks to a merchant's store API using the per-merchant access token.
// It implements ports.ProductCatalog and ports.OrderAPI.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a merchant store API client.
func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "merchantapi").Logger(),
	}
}

type productVariantDTO struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price string `json:"price"`
}

type productDTO struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Price    string              `json:"price"`
	Variants []productVariantDTO `json:"variants"`
}

type productEnvelope struct {
	Product productDTO `json:"product"`
}

// GetProduct fetches a product from the merchant's catalog.
func (c *Client) GetProduct(ctx context.Context, merchant *domain.Merchant, productID string) (*domain.Product, error) {
	url := fmt.Sprintf("%s/admin/api/products/%s.json", merchant.StoreURL(), productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build product request: %w", err)
	}
	req.Header.Set("X-Access-Token", merchant.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.UpstreamUnavailable("merchant catalog unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperror.NotFound(fmt.Sprintf("product %s", productID))
	case resp.StatusCode >= 500:
		return nil, apperror.UpstreamUnavailable(fmt.Sprintf("merchant catalog returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("merchant catalog returned %d", resp.StatusCode)
	}

	var env productEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode product response: %w", err)
	}

	p := &domain.Product{
		ID:        env.Product.ID,
		Title:     env.Product.Title,
		PriceUSDC: env.Product.Price,
		StoreURL:  merchant.StoreURL(),
	}
	for _, v := range env.Product.Variants {
		p.Variants = append(p.Variants, domain.ProductVariant{
			ID:        v.ID,
			Title:     v.Title,
			PriceUSDC: v.Price,
		})
	}
	return p, nil
}

type orderLineItem struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
}

type orderRequestDTO struct {
	LineItems []orderLineItem `json:"line_items"`
	Total     string          `json:"total"`
	Note      string          `json:"note"`
}

type orderEnvelope struct {
	Order struct {
		ID          string `json:"id"`
		OrderNumber string `json:"order_number"`
	} `json:"order"`
}

// CreateOrder creates a fulfillment order on the merchant's store. The
// settlement reference travels in the order note so the merchant can
// reconcile the payment. A rate-limited attempt is retried once after the
// advertised Retry-After delay.
func (c *Client) CreateOrder(ctx context.Context, merchant *domain.Merchant, req ports.OrderRequest) (*ports.OrderConfirmation, error) {
	payload, err := json.Marshal(orderRequestDTO{
		LineItems: []orderLineItem{{
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
		}},
		Total: req.TotalUSDC,
		Note:  req.CustomerNote,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	conf, retryAfter, err := c.postOrder(ctx, merchant, payload)
	if retryAfter > 0 {
		c.log.Warn().
			Str("merchant_id", merchant.ID.String()).
			Dur("retry_after", retryAfter).
			Msg("merchant rate limited order creation, retrying once")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryAfter):
		}
		conf, retryAfter, err = c.postOrder(ctx, merchant, payload)
		if retryAfter > 0 {
			return nil, apperror.OrderCreationFailed("merchant rate limited order creation", req.SettlementRef, nil)
		}
	}
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.OrderCreationFailed("merchant rejected order", req.SettlementRef, err)
	}
	return conf, nil
}

// postOrder performs one order-creation attempt. A positive retryAfter means
// the merchant rate-limited the request.
func (c *Client) postOrder(ctx context.Context, merchant *domain.Merchant, payload []byte) (*ports.OrderConfirmation, time.Duration, error) {
	url := merchant.StoreURL() + "/admin/api/orders.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("X-Access-Token", merchant.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, apperror.UpstreamUnavailable("merchant order api unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, fmt.Errorf("merchant order api returned %d: %s", resp.StatusCode, data)
	}

	var env orderEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, 0, fmt.Errorf("decode order response: %w", err)
	}
	return &ports.OrderConfirmation{
		OrderID:     env.Order.ID,
		OrderNumber: env.Order.OrderNumber,
	}, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds * float64(time.Second))
}
