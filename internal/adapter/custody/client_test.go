package custody

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"agentpay/config"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.CustodyConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
}

func TestClient_SignTypedData(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/signatures/typed-data", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cus_wallet_01", req.WalletID)

		json.NewEncoder(w).Encode(signResponse{Signature: "0xdeadbeef"})
	}))

	sig, err := client.SignTypedData(context.Background(), "cus_wallet_01", apitypes.TypedData{})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", sig)
}

func TestClient_SignTypedData_UpstreamError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "key not found", http.StatusNotFound)
	}))

	_, err := client.SignTypedData(context.Background(), "cus_missing", apitypes.TypedData{})
	assert.ErrorContains(t, err, "404")
}

func TestClient_Transfer(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "12500000", req.Amount)
		json.NewEncoder(w).Encode(transferResponse{QueueID: "q-42"})
	}))

	queueID, err := client.Transfer(context.Background(), "cus_wallet_01", "0x2222222222222222222222222222222222222222", big.NewInt(12_500_000))
	require.NoError(t, err)
	assert.Equal(t, "q-42", queueID)
}

func TestClient_WaitForHash_PollsUntilBroadcast(t *testing.T) {
	var polls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers/q-42", r.URL.Path)
		if polls.Add(1) < 2 {
			json.NewEncoder(w).Encode(transferStatus{Status: "queued"})
			return
		}
		json.NewEncoder(w).Encode(transferStatus{Status: "broadcast", TxHash: "0xabc"})
	}))

	hash, err := client.WaitForHash(context.Background(), "q-42")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestClient_WaitForHash_FailedTransfer(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transferStatus{Status: "failed", Error: "insufficient gas"})
	}))

	_, err := client.WaitForHash(context.Background(), "q-43")
	assert.ErrorContains(t, err, "insufficient gas")
}

func TestClient_WaitForHash_ContextCancelled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transferStatus{Status: "queued"})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.WaitForHash(ctx, "q-44")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
