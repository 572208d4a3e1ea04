package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	httpHandler "agentpay/internal/adapter/http/handler"
	"agentpay/internal/adapter/merchantapi"
	redisStorage "agentpay/internal/adapter/storage/redis"
	"agentpay/internal/core/domain"
	"agentpay/internal/service"
	"agentpay/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the real HTTP layer, middleware, services, and Redis stores
// against in-memory repos, a fake merchant store, and a stub settlement rail.

const (
	rawAgentKey  = "sk_test_agent_key_01"
	productPrice = "30.000000"
)

type stubChain struct {
	usdc *big.Int
}

func (s *stubChain) TokenBalance(_ context.Context, _ string) (*big.Int, error) {
	return new(big.Int).Set(s.usdc), nil
}

func (s *stubChain) NativeBalance(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(5_000_000_000_000_000), nil
}

type stubStrategy struct {
	settled atomic.Int64
}

func (s *stubStrategy) Settle(_ context.Context, _ *domain.Wallet, _ string, _ domain.SettlementDestination) (*domain.SettlementResult, error) {
	n := s.settled.Add(1)
	return &domain.SettlementResult{
		PaymentReference: fmt.Sprintf("0xref%d", n),
		TxHash:           fmt.Sprintf("0xhash%d", n),
		SettledAt:        time.Now().UTC(),
	}, nil
}

func (s *stubStrategy) Name() string { return "stub" }

type testApp struct {
	server     *httptest.Server
	store      *httptest.Server
	redis      *miniredis.Miniredis
	strategy   *stubStrategy
	txRepo     *inMemoryTransactionRepo
	orderRepo  *inMemoryOrderRepo
	agentKeyID uuid.UUID
	walletID   uuid.UUID
	merchantID uuid.UUID
}

func (a *testApp) close() {
	a.server.Close()
	a.store.Close()
	a.redis.Close()
}

// fakeMerchantStore serves a one-product catalog and accepts orders.
func fakeMerchantStore(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/products/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/prod-1.json") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"product":{"id":"prod-1","title":"Mechanical Keyboard","price":%q,"variants":[]}}`, productPrice)
	})
	var orderSeq atomic.Int64
	mux.HandleFunc("/admin/api/orders.json", func(w http.ResponseWriter, r *http.Request) {
		n := orderSeq.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"order":{"id":"%d","order_number":"#10%02d"}}`, 5000+n, n)
	})
	return httptest.NewServer(mux)
}

func newTestApp(t *testing.T, policy *domain.SpendingPolicy) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	store := fakeMerchantStore(t)

	walletRepo := newInMemoryWalletRepo()
	agentKeyRepo := newInMemoryAgentKeyRepo()
	policyRepo := newInMemoryPolicyRepo()
	txRepo := newInMemoryTransactionRepo()
	orderRepo := newInMemoryOrderRepo()
	merchantRepo := newInMemoryMerchantRepo()
	transactor := newInMemoryTransactor()

	ctx := context.Background()

	userID := uuid.New()
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Address:   "0x1111111111111111111111111111111111111111",
		ChainID:   84532,
		CustodyID: "cus_wallet_01",
		IsActive:  true,
	}
	require.NoError(t, walletRepo.Create(ctx, wallet))

	digest := sha256.Sum256([]byte(rawAgentKey))
	agentKey := &domain.AgentKey{
		ID:       uuid.New(),
		UserID:   userID,
		WalletID: wallet.ID,
		Name:     "shopping-agent",
		KeyHash:  hex.EncodeToString(digest[:]),
		IsActive: true,
	}
	require.NoError(t, agentKeyRepo.Create(ctx, agentKey))

	merchant := &domain.Merchant{
		ID:            uuid.New(),
		Name:          "Keyboard Emporium",
		ShopDomain:    store.URL,
		AccessToken:   "shpat_test",
		PayoutAddress: "0x2222222222222222222222222222222222222222",
		IsActive:      true,
	}
	require.NoError(t, merchantRepo.Create(ctx, merchant))

	policy.AgentKeyID = agentKey.ID
	policy.WalletID = wallet.ID
	policy.IsActive = true
	require.NoError(t, policyRepo.Create(ctx, policy))

	log := logger.New("agentpay-test", "error", false)
	chainClient := &stubChain{usdc: big.NewInt(1_000_000_000)} // 1000 USDC
	strategy := &stubStrategy{}
	storeClient := merchantapi.NewClient(5*time.Second, log)
	productCache := redisStorage.NewProductCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	spendingSvc := service.NewSpendingService(policyRepo, txRepo, log)
	catalogSvc := service.NewCatalogService(merchantRepo, storeClient, productCache, 5*time.Minute, log)
	walletSvc := service.NewWalletService(walletRepo, txRepo, chainClient, log)
	purchaseSvc := service.NewPurchaseService(
		walletRepo, merchantRepo, txRepo, orderRepo,
		catalogSvc, spendingSvc, chainClient, strategy, storeClient,
		transactor, 30*time.Second, log,
	)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PurchaseSvc:    purchaseSvc,
		WalletSvc:      walletSvc,
		CatalogSvc:     catalogSvc,
		MerchantRepo:   merchantRepo,
		AgentKeyRepo:   agentKeyRepo,
		RateLimitStore: rateLimitStore,
		Logger:         log,
	})

	return &testApp{
		server:     httptest.NewServer(router),
		store:      store,
		redis:      mr,
		strategy:   strategy,
		txRepo:     txRepo,
		orderRepo:  orderRepo,
		agentKeyID: agentKey.ID,
		walletID:   wallet.ID,
		merchantID: merchant.ID,
	}
}

func defaultPolicy() *domain.SpendingPolicy {
	return &domain.SpendingPolicy{
		ID:         uuid.New(),
		Name:       "default",
		MaxPerTx:   "100.000000",
		DailyLimit: "500.000000",
	}
}

func (a *testApp) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, a.server.URL+path, nil)
	} else {
		req, err = http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+rawAgentKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestPurchaseFlow_EndToEnd(t *testing.T) {
	app := newTestApp(t, defaultPolicy())
	defer app.close()

	body := fmt.Sprintf(`{"merchant_id":%q,"product_id":"prod-1","quantity":2}`, app.merchantID)
	resp := app.do(t, http.MethodPost, "/api/v1/purchases", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var purchase struct {
		TransactionID string `json:"transaction_id"`
		TxHash        string `json:"tx_hash"`
		OrderID       string `json:"order_id"`
		OrderNumber   string `json:"order_number"`
		AmountUSDC    string `json:"amount_usdc"`
		Status        string `json:"status"`
	}
	decodeData(t, resp, &purchase)

	assert.Equal(t, "60.000000", purchase.AmountUSDC)
	assert.Equal(t, "settled", purchase.Status)
	assert.Equal(t, "0xhash1", purchase.TxHash)
	assert.Equal(t, "5001", purchase.OrderID)
	assert.Equal(t, "#1001", purchase.OrderNumber)

	// transaction row reached the terminal state with the hash
	txnID, err := uuid.Parse(purchase.TransactionID)
	require.NoError(t, err)
	txn, err := app.txRepo.GetByID(context.Background(), txnID)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.TransactionStatusSettled, txn.Status)
	require.NotNil(t, txn.TxHash)
	assert.Equal(t, "0xhash1", *txn.TxHash)

	// order row is linked to the transaction
	order, err := app.orderRepo.GetByTransactionID(context.Background(), txnID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)

	// history endpoint shows the settled purchase
	resp = app.do(t, http.MethodGet, "/api/v1/wallet/transactions?status=settled", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Items []struct {
			ID         string `json:"id"`
			AmountUSDC string `json:"amount_usdc"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	decodeData(t, resp, &list)
	require.Equal(t, int64(1), list.Total)
	assert.Equal(t, purchase.TransactionID, list.Items[0].ID)
}

func TestPurchase_PerTxLimitDenied(t *testing.T) {
	policy := defaultPolicy()
	policy.MaxPerTx = "10.000000" // product costs 30
	app := newTestApp(t, policy)
	defer app.close()

	body := fmt.Sprintf(`{"merchant_id":%q,"product_id":"prod-1","quantity":1}`, app.merchantID)
	resp := app.do(t, http.MethodPost, "/api/v1/purchases", body)
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var errResp struct {
		ErrorCode string            `json:"error_code"`
		Meta      map[string]string `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "SPENDING_LIMIT_EXCEEDED", errResp.ErrorCode)
	assert.Equal(t, "per-transaction", errResp.Meta["period"])

	// nothing settled, nothing recorded as spend
	assert.Equal(t, int64(0), app.strategy.settled.Load())
}

func TestPurchase_MerchantNotInAllowList(t *testing.T) {
	policy := defaultPolicy()
	policy.AllowedMerchants = []string{uuid.NewString()} // some other merchant
	app := newTestApp(t, policy)
	defer app.close()

	body := fmt.Sprintf(`{"merchant_id":%q,"product_id":"prod-1","quantity":1}`, app.merchantID)
	resp := app.do(t, http.MethodPost, "/api/v1/purchases", body)
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int64(0), app.strategy.settled.Load())
}

func TestWalletEndpoints(t *testing.T) {
	app := newTestApp(t, defaultPolicy())
	defer app.close()

	resp := app.do(t, http.MethodGet, "/api/v1/wallet/balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bal struct {
		WalletID string `json:"wallet_id"`
		USDC     string `json:"usdc"`
	}
	decodeData(t, resp, &bal)
	assert.Equal(t, app.walletID.String(), bal.WalletID)
	assert.Equal(t, "1000.000000", bal.USDC)
}

func TestCatalogEndpoint_CachesProduct(t *testing.T) {
	app := newTestApp(t, defaultPolicy())
	defer app.close()

	path := "/api/v1/merchants/" + app.merchantID.String() + "/products/prod-1"

	resp := app.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var product struct {
		Title     string `json:"title"`
		PriceUSDC string `json:"price_usdc"`
	}
	decodeData(t, resp, &product)
	assert.Equal(t, "Mechanical Keyboard", product.Title)
	assert.Equal(t, productPrice, product.PriceUSDC)

	// second lookup is served from cache even if the store goes away
	app.store.Close()
	resp = app.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, resp, &product)
	assert.Equal(t, "Mechanical Keyboard", product.Title)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	app := newTestApp(t, defaultPolicy())
	defer app.close()

	resp, err := http.Get(app.server.URL + "/api/v1/wallet/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
