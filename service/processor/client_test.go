package processor

import (
	"context"
	"encoding/json"
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
	return NewClient(srv.URL, "test-token", srv.Client(), nil, nil)
}

func TestCreateCheckout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkout", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var params CheckoutParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, 100.0, params.Amount)
		assert.Equal(t, "offramper@example.com", params.ReceiverEmail)
		json.NewEncoder(w).Encode(CheckoutSession{
			URL:          "https://pay.example.com/checkout/abc123",
			ProcessorRef: "abc123",
		})
	}))

	session, err := client.CreateCheckout(context.Background(), CheckoutParams{
		CorrelationID: "corr-1",
		Amount:        100.0,
		ReceiverEmail: "offramper@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/checkout/abc123", session.URL)
}

func TestCreateCheckout_MissingURL(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CheckoutSession{})
	}))

	_, err := client.CreateCheckout(context.Background(), CheckoutParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a URL")
}

func TestVerifyPayment_Verified(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify-payment", r.URL.Path)
		var capture Capture
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capture))
		assert.Equal(t, "tok-1", capture.Token)
		assert.Equal(t, "payer-1", capture.PayerID)
		json.NewEncoder(w).Encode(Attestation{
			Verified:          true,
			TransactionAmount: 100.0,
			Signature:         "sig",
			Timestamp:         "2026-08-29T00:00:00Z",
		})
	}))

	att, err := client.VerifyPayment(context.Background(), Capture{Token: "tok-1", PayerID: "payer-1"})
	require.NoError(t, err)
	assert.True(t, att.Verified)
	assert.Equal(t, 100.0, att.TransactionAmount)
}

func TestVerifyPayment_Unverified(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Attestation{Verified: false})
	}))

	att, err := client.VerifyPayment(context.Background(), Capture{Code: "auth-code"})
	require.ErrorIs(t, err, ErrCaptureUnverified)
	assert.Nil(t, att)
}

func TestVerifyPayment_ProcessorError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`))
	}))

	_, err := client.VerifyPayment(context.Background(), Capture{Code: "auth-code"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
