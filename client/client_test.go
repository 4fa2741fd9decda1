package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x00000000000000000000000000000000000000aa"

func TestStartOnRamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/onramps", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testWallet, req["wallet_address"])
		assert.Equal(t, 100.0, req["amount"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(OnRamp{
			CorrelationID: "corr-1",
			WalletAddress: testWallet,
			Stage:         "awaiting_payment",
			CheckoutURL:   "https://processor.example.com/checkout/abc",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	onramp, err := c.StartOnRamp(context.Background(), testWallet, 100)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", onramp.CorrelationID)
	assert.Equal(t, "https://processor.example.com/checkout/abc", onramp.CheckoutURL)
	assert.False(t, onramp.Terminal())
}

func TestStartOnRamp_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "wallet is not registered"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.StartOnRamp(context.Background(), testWallet, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet is not registered")
}

func TestAwaitSettlement_PollsUntilTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		resp := OnRamp{CorrelationID: "corr-1", Stage: "confirming"}
		if n >= 3 {
			resp.Stage = StageCompleted
			resp.TxHash = "0xfeed"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	onramp, err := c.AwaitSettlement(context.Background(), "corr-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, onramp.Stage)
	assert.Equal(t, "0xfeed", onramp.TxHash)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestAwaitSettlement_ContextBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OnRamp{CorrelationID: "corr-1", Stage: "matching"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.AwaitSettlement(ctx, "corr-1", 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal before deadline")
}

func TestCreateOffRampIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/offramps", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Transaction{
			WalletAddress: testWallet,
			TxHash:        "0xfeed",
			Type:          "offramp",
			Status:        "pending",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	tx, err := c.CreateOffRampIntent(context.Background(), testWallet, "1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", tx.TxHash)
	assert.Equal(t, "pending", tx.Status)
}

func TestRegisterAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/api/v1/registrations":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(Registration{WalletAddress: testWallet, Status: "pending"})
		case r.Method == "GET" && r.URL.Path == "/api/v1/registrations/"+testWallet:
			json.NewEncoder(w).Encode(Registration{
				WalletAddress: testWallet,
				Email:         "user@example.com",
				Status:        "registered",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	require.NoError(t, c.Register(context.Background(), testWallet, "user@example.com"))

	reg, err := c.RegistrationStatus(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "registered", reg.Status)
	assert.Equal(t, "user@example.com", reg.Email)
}

func TestListTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testWallet, r.URL.Query().Get("wallet_address"))
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []Transaction{
				{WalletAddress: testWallet, TxHash: "0xaaa1", Type: "onramp", Status: "pending"},
			},
			"count": 1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	txs, err := c.ListTransactions(context.Background(), testWallet, "pending")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xaaa1", txs[0].TxHash)
}
