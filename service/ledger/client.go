package ledger

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

	"github.com/peerramp/peerramp/service/metrics"
)

// Client talks to the escrow-contract gateway: a JSON-over-HTTP facade in
// front of the on-chain ledger. All write calls return a transaction hash
// before confirmation; confirmation is observed separately via receipts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a new ledger gateway client.
// If metrics is nil, no metrics will be recorded.
func NewClient(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// QueryEscrowBalance returns the escrow balance for an address in wei.
func (c *Client) QueryEscrowBalance(ctx context.Context, address string) (string, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, "/escrow/balance/"+url.PathEscape(address), &resp); err != nil {
		return "", fmt.Errorf("failed to query escrow balance: %w", err)
	}
	return resp.Balance, nil
}

// NumberOfOpenOffRampIntents returns the size of the off-ramp intent queue.
func (c *Client) NumberOfOpenOffRampIntents(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/offramp-intents/count", &resp); err != nil {
		return 0, fmt.Errorf("failed to count off-ramp intents: %w", err)
	}
	return resp.Count, nil
}

// GetLongestQueuingOffRampIntent returns the oldest open off-ramp intent
// whose address is not in the exclusion set. Returns ErrNoOpenIntents when
// the queue, minus exclusions, is empty.
func (c *Client) GetLongestQueuingOffRampIntent(ctx context.Context, excluded []string) (*OffRampIntent, error) {
	req := struct {
		ExcludedAddresses []string `json:"excluded_addresses"`
	}{ExcludedAddresses: excluded}

	var resp struct {
		Intent *OffRampIntent `json:"intent"`
	}
	if err := c.post(ctx, "/offramp-intents/longest-queuing", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to query off-ramp intent queue: %w", err)
	}
	if resp.Intent == nil || resp.Intent.Address == "" {
		return nil, ErrNoOpenIntents
	}
	return resp.Intent, nil
}

// GetUserEmail returns the processor identity registered for an address.
func (c *Client) GetUserEmail(ctx context.Context, address string) (string, error) {
	var resp struct {
		Email string `json:"email"`
	}
	if err := c.get(ctx, "/accounts/"+url.PathEscape(address)+"/email", &resp); err != nil {
		return "", fmt.Errorf("failed to get user email: %w", err)
	}
	return resp.Email, nil
}

// RegisterUserAccount submits an account registration to the ledger,
// binding a wallet address to a processor email. Returns the tx hash.
func (c *Client) RegisterUserAccount(ctx context.Context, address, email string) (string, error) {
	req := struct {
		Address string `json:"address"`
		Email   string `json:"email"`
	}{Address: address, Email: email}

	var resp struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.post(ctx, "/accounts/register", req, &resp); err != nil {
		return "", fmt.Errorf("failed to register user account: %w", err)
	}
	return resp.TxHash, nil
}

// LoginUserAccount checks whether the ledger has confirmed an account
// registration for the address. This is the registration poll target.
func (c *Client) LoginUserAccount(ctx context.Context, address string) (bool, error) {
	req := struct {
		Address string `json:"address"`
	}{Address: address}

	var resp struct {
		Registered bool `json:"registered"`
	}
	if err := c.post(ctx, "/accounts/login", req, &resp); err != nil {
		return false, fmt.Errorf("failed to login user account: %w", err)
	}
	return resp.Registered, nil
}

// CreateOffRampIntent places an off-ramp intent on the ledger and escrows
// the given amount. Returns the tx hash.
func (c *Client) CreateOffRampIntent(ctx context.Context, address, amountWei string) (string, error) {
	req := struct {
		Address   string `json:"address"`
		AmountWei string `json:"amount_wei"`
	}{Address: address, AmountWei: amountWei}

	var resp struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.post(ctx, "/offramp-intents", req, &resp); err != nil {
		return "", fmt.Errorf("failed to create off-ramp intent: %w", err)
	}
	return resp.TxHash, nil
}

// OnRamp submits the cross-system settlement instruction: move escrowed
// balance from the off-ramper to the on-ramper against the attested fiat
// payment. Returns the tx hash before confirmation.
func (c *Client) OnRamp(ctx context.Context, params OnRampParams) (string, error) {
	var resp struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.post(ctx, "/onramp", params, &resp); err != nil {
		return "", fmt.Errorf("failed to submit on-ramp: %w", err)
	}
	return resp.TxHash, nil
}

// GetTransactionReceipt returns the confirmation state of a submitted
// transaction. This is the authoritative confirmation source.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var receipt Receipt
	if err := c.get(ctx, "/transactions/"+url.PathEscape(txHash)+"/receipt", &receipt); err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	return &receipt, nil
}

// get performs a GET request against the gateway and decodes the response.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post performs a POST request against the gateway and decodes the response.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil || (resp != nil && resp.StatusCode >= 400) {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordLedgerCall(path, status, duration)
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "ledger gateway request failed",
			"method", method,
			"path", path,
			"error", err,
		)
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseErrorResponse(ctx, path, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}

// gatewayError is the nested error shape returned by the gateway. Contract
// reverts carry a reason buried in error.data.reason; transport-level
// failures carry only a message.
type gatewayError struct {
	Error struct {
		Message string `json:"message"`
		Data    struct {
			Reason string `json:"reason"`
		} `json:"data"`
	} `json:"error"`
}

// parseErrorResponse distinguishes contract reverts from transport errors.
// Revert reasons are extracted from the nested payload and surfaced
// verbatim as a RevertError; anything else stays a plain wrapped error.
func (c *Client) parseErrorResponse(ctx context.Context, path string, resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var gwErr gatewayError
	if err := json.Unmarshal(data, &gwErr); err == nil {
		if gwErr.Error.Data.Reason != "" {
			c.logger.DebugContext(ctx, "ledger call reverted",
				"path", path,
				"reason", gwErr.Error.Data.Reason,
			)
			return &RevertError{Reason: gwErr.Error.Data.Reason}
		}
		if gwErr.Error.Message != "" {
			return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, gwErr.Error.Message)
		}
	}

	return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(data))
}
