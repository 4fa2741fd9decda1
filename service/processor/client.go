package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/peerramp/peerramp/service/metrics"
)

// CheckoutParams describes the fiat checkout to create for an on-ramp
// attempt. The correlation id is threaded through the processor so the
// redirect callback can be routed back to the right settlement attempt.
type CheckoutParams struct {
	CorrelationID string  `json:"correlation_id"`
	Amount        float64 `json:"amount"`
	ReceiverEmail string  `json:"receiver_email"`
	RedirectURL   string  `json:"redirect_url"`
}

// CheckoutSession is a created checkout the on-ramper must complete.
type CheckoutSession struct {
	URL          string `json:"url"`
	ProcessorRef string `json:"processor_ref"`
}

// Capture carries the redirect callback parameters needed to capture and
// verify a payment. Exactly one of Code or Token is set: Code for the
// authorization flow, Token plus PayerID for the capture flow.
type Capture struct {
	Code    string `json:"code,omitempty"`
	Token   string `json:"token,omitempty"`
	PayerID string `json:"payer_id,omitempty"`
}

// Attestation is the processor's signed statement that a fiat payment was
// captured. Only a Verified attestation may be forwarded to the ledger.
type Attestation struct {
	Verified          bool    `json:"verified"`
	TransactionAmount float64 `json:"transaction_amount"`
	Signature         string  `json:"signature"`
	Timestamp         string  `json:"timestamp"`
}

// Client talks to the fiat payment processor's REST API.
type Client struct {
	baseURL    string
	loginToken string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a new payment processor client.
// If metrics is nil, no metrics will be recorded.
func NewClient(baseURL, loginToken string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		loginToken: loginToken,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// CreateCheckout creates a checkout session the on-ramper completes in
// their browser. The processor redirects back to our callback route when
// the payment is authorized or captured.
func (c *Client) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.post(ctx, "/checkout", params, &session); err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("processor returned checkout without a URL")
	}
	return &session, nil
}

// VerifyPayment captures the payment identified by the redirect callback
// parameters and returns the processor's attestation. A non-verified
// attestation is returned as ErrCaptureUnverified so callers cannot
// accidentally treat it as success.
func (c *Client) VerifyPayment(ctx context.Context, capture Capture) (*Attestation, error) {
	var att Attestation
	if err := c.post(ctx, "/verify-payment", capture, &att); err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !att.Verified {
		return nil, ErrCaptureUnverified
	}
	return &att, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.loginToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.loginToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil || (resp != nil && resp.StatusCode >= 400) {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordProcessorCall(path, status, duration)
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "processor request failed",
			"path", path,
			"error", err,
		)
		return fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("processor returned status %d: %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode processor response: %w", err)
		}
	}
	return nil
}
