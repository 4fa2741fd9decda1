package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), nil, nil)
}

func TestGetLongestQueuingOffRampIntent(t *testing.T) {
	var gotExcluded []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/offramp-intents/longest-queuing", r.URL.Path)
		var req struct {
			ExcludedAddresses []string `json:"excluded_addresses"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotExcluded = req.ExcludedAddresses
		json.NewEncoder(w).Encode(map[string]any{
			"intent": map[string]any{
				"address":         "0xabcdef0000000000000000000000000000000000",
				"email":           "offramper@example.com",
				"amount_reserved": "1000000000000000000",
			},
		})
	}))

	intent, err := client.GetLongestQueuingOffRampIntent(context.Background(), []string{"0x1111"})
	require.NoError(t, err)
	assert.Equal(t, "offramper@example.com", intent.Email)
	assert.Equal(t, "1000000000000000000", intent.AmountReserved)
	assert.Equal(t, []string{"0x1111"}, gotExcluded)
}

func TestGetLongestQueuingOffRampIntent_EmptyQueue(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"intent": nil})
	}))

	_, err := client.GetLongestQueuingOffRampIntent(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoOpenIntents)
}

func TestOnRamp_RevertReasonExtraction(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "execution reverted",
				"data": map[string]any{
					"reason": "insufficient escrow balance",
				},
			},
		})
	}))

	_, err := client.OnRamp(context.Background(), OnRampParams{
		Amount:           50.0,
		OffRamperAddress: "0xabc",
		SenderEmail:      "sender@example.com",
		ReceiverEmail:    "receiver@example.com",
	})
	require.Error(t, err)

	var revertErr *RevertError
	require.True(t, errors.As(err, &revertErr))
	assert.Equal(t, "insufficient escrow balance", revertErr.Reason)
}

func TestOnRamp_TransportErrorIsNotRevert(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "gateway overloaded"},
		})
	}))

	_, err := client.OnRamp(context.Background(), OnRampParams{})
	require.Error(t, err)

	var revertErr *RevertError
	assert.False(t, errors.As(err, &revertErr))
	assert.Contains(t, err.Error(), "gateway overloaded")
}

func TestOnRamp_ReturnsTxHash(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/onramp", r.URL.Path)
		var params OnRampParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, 75.5, params.Amount)
		json.NewEncoder(w).Encode(map[string]string{"tx_hash": "0xdeadbeef"})
	}))

	txHash, err := client.OnRamp(context.Background(), OnRampParams{Amount: 75.5})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", txHash)
}

func TestGetTransactionReceipt(t *testing.T) {
	reason := "transfer rejected"
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Receipt{
			TxHash:       "0xdeadbeef",
			Status:       ReceiptStatusFailed,
			RevertReason: &reason,
		})
	}))

	receipt, err := client.GetTransactionReceipt(context.Background(), "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, ReceiptStatusFailed, receipt.Status)
	require.NotNil(t, receipt.RevertReason)
	assert.Equal(t, "transfer rejected", *receipt.RevertReason)
}

func TestLoginUserAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/login", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"registered": true})
	}))

	registered, err := client.LoginUserAccount(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestQueryEscrowBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/escrow/balance/0xabc", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"balance": "2500000000000000000"})
	}))

	balance, err := client.QueryEscrowBalance(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000", balance)
}
