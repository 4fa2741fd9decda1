package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Terminal settlement stages. Mirrors the server's status vocabulary.
const (
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// OnRamp represents one on-ramp settlement attempt as reported by the server.
type OnRamp struct {
	CorrelationID string  `json:"correlation_id"`
	WalletAddress string  `json:"wallet_address,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	Stage         string  `json:"stage,omitempty"`
	CheckoutURL   string  `json:"checkout_url,omitempty"`
	CheckoutQRPNG string  `json:"checkout_qr_png,omitempty"`
	TxHash        string  `json:"tx_hash,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Terminal reports whether the settlement reached a terminal stage.
func (o *OnRamp) Terminal() bool {
	return o.Stage == StageCompleted || o.Stage == StageFailed
}

// Registration represents a wallet's registration status.
type Registration struct {
	WalletAddress string     `json:"wallet_address"`
	Email         string     `json:"email,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Transaction represents a durable transaction record.
type Transaction struct {
	WalletAddress string    `json:"wallet_address"`
	TxHash        string    `json:"tx_hash"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Client is the HTTP client for the peerramp service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// StartOnRamp starts a settlement attempt for a registered wallet. The
// returned OnRamp carries the checkout URL when the workflow produced one in
// time; otherwise poll GetOnRampStatus for it.
func (c *Client) StartOnRamp(ctx context.Context, walletAddress string, amount float64) (*OnRamp, error) {
	reqBody := map[string]interface{}{
		"wallet_address": walletAddress,
		"amount":         amount,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/onramps", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var onramp OnRamp
	if err := json.NewDecoder(resp.Body).Decode(&onramp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("on-ramp started", "correlation_id", onramp.CorrelationID, "address", walletAddress)
	return &onramp, nil
}

// GetOnRampStatus retrieves the current status of a settlement attempt.
func (c *Client) GetOnRampStatus(ctx context.Context, correlationID string) (*OnRamp, error) {
	u := fmt.Sprintf("%s/api/v1/onramps/%s", c.baseURL, url.PathEscape(correlationID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var onramp OnRamp
	if err := json.NewDecoder(resp.Body).Decode(&onramp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &onramp, nil
}

// AwaitSettlement polls a settlement attempt until it reaches a terminal
// stage. The wait is bounded by the context.
func (c *Client) AwaitSettlement(ctx context.Context, correlationID string, pollInterval time.Duration) (*OnRamp, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		onramp, err := c.GetOnRampStatus(ctx, correlationID)
		if err != nil {
			return nil, err
		}
		if onramp.Terminal() {
			c.logger.Debug("settlement reached terminal stage",
				"correlation_id", correlationID,
				"stage", onramp.Stage,
			)
			return onramp, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("settlement %s not terminal before deadline: %w", correlationID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// CreateOffRampIntent queues a registered wallet as an off-ramp peer for the
// given on-chain amount.
func (c *Client) CreateOffRampIntent(ctx context.Context, walletAddress, amountWei string) (*Transaction, error) {
	reqBody := map[string]interface{}{
		"wallet_address": walletAddress,
		"amount_wei":     amountWei,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/offramps", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("off-ramp intent created", "address", walletAddress, "tx_hash", tx.TxHash)
	return &tx, nil
}

// Register submits a wallet registration with the payment-processor email it
// should be bound to. Confirmation is asynchronous; poll RegistrationStatus.
func (c *Client) Register(ctx context.Context, walletAddress, email string) error {
	reqBody := map[string]interface{}{
		"wallet_address": walletAddress,
		"email":          email,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/registrations", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("registration submitted", "address", walletAddress)
	return nil
}

// RegistrationStatus retrieves the registration status for a wallet.
func (c *Client) RegistrationStatus(ctx context.Context, walletAddress string) (*Registration, error) {
	u := fmt.Sprintf("%s/api/v1/registrations/%s", c.baseURL, url.PathEscape(walletAddress))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var reg Registration
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &reg, nil
}

// ListTransactions retrieves transaction records for a wallet. An empty
// status returns all records; "pending" returns only unconfirmed ones.
func (c *Client) ListTransactions(ctx context.Context, walletAddress, status string) ([]*Transaction, error) {
	q := url.Values{}
	q.Set("wallet_address", walletAddress)
	if status != "" {
		q.Set("status", status)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Transactions []*Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Transactions, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
