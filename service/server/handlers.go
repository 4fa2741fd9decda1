package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/peerramp/peerramp/service/config"
	"github.com/peerramp/peerramp/service/db"
	"github.com/peerramp/peerramp/service/registration"
	"github.com/peerramp/peerramp/service/temporal"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for any of our request bodies

	// checkoutQuerySpan bounds how long the start-onramp handler waits for
	// the settlement workflow to produce a checkout URL before answering
	// with just the correlation id.
	checkoutQuerySpan     = 5 * time.Second
	checkoutQueryInterval = 250 * time.Millisecond

	// registrationPollTimeout bounds how long the registration workflow
	// polls the ledger for confirmation before giving up.
	registrationPollTimeout = 10 * time.Minute

	qrCodeSize = 256
)

var (
	// EVM addresses: 0x followed by exactly 40 hex characters.
	validAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

	// Wei amounts are unsigned decimal strings.
	validWeiRegex = regexp.MustCompile(`^[0-9]+$`)
)

// handleStartOnRamp returns a handler that starts a settlement workflow for
// an on-ramp attempt. Only registered wallets may start one.
// POST /api/v1/onramps
func handleStartOnRamp(store *db.Store, orchestrator temporal.Orchestrator, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			WalletAddress string  `json:"wallet_address"`
			Amount        float64 `json:"amount"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode onramp request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			logger.Debug("invalid address", "address", req.WalletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := validateAmount(req.Amount); err != nil {
			logger.Debug("invalid amount", "amount", req.Amount, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Only registered wallets can on-ramp: the checkout needs the
		// wallet's verified payment-processor identity.
		reg, err := store.GetRegistration(r.Context(), req.WalletAddress)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet is not registered", http.StatusForbidden)
				return
			}
			logger.Error("failed to look up registration", "address", req.WalletAddress, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if reg.Status != db.RegStatusRegistered {
			writeError(w, fmt.Sprintf("wallet registration is %s, not registered", reg.Status), http.StatusForbidden)
			return
		}

		correlationID := uuid.NewString()

		err = orchestrator.StartSettlement(r.Context(), temporal.SettlementInput{
			CorrelationID:     correlationID,
			OnRampAddress:     req.WalletAddress,
			SenderEmail:       reg.Email,
			Amount:            req.Amount,
			PaymentTTL:        cfg.ReservationTTL,
			SettlementTimeout: cfg.SettlementTimeout,
		})
		if err != nil {
			logger.Error("failed to start settlement workflow",
				"correlation_id", correlationID,
				"address", req.WalletAddress,
				"error", err,
			)
			writeError(w, "failed to start settlement", http.StatusInternalServerError)
			return
		}

		logger.Info("settlement started",
			"correlation_id", correlationID,
			"address", req.WalletAddress,
			"amount", req.Amount,
		)

		// The checkout URL appears once the workflow has claimed a peer and
		// created the checkout. Wait briefly; if it isn't ready yet the
		// client polls the status endpoint.
		checkoutURL := awaitCheckoutURL(r.Context(), orchestrator, correlationID, logger)

		resp := onRampResponse{
			CorrelationID: correlationID,
			WalletAddress: req.WalletAddress,
			Amount:        req.Amount,
			CheckoutURL:   checkoutURL,
		}
		statusCode := http.StatusAccepted
		if checkoutURL != "" {
			resp.CheckoutQRPNG = encodeCheckoutQR(checkoutURL, logger)
			statusCode = http.StatusCreated
		}
		writeJSON(w, resp, statusCode)
	})
}

// handleGetOnRamp returns a handler that reports the status of a settlement
// attempt.
// GET /api/v1/onramps/{correlation_id}
func handleGetOnRamp(orchestrator temporal.Orchestrator, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.PathValue("correlation_id")
		if correlationID == "" {
			writeError(w, "correlation_id is required", http.StatusBadRequest)
			return
		}

		snapshot, err := orchestrator.QuerySettlementStatus(r.Context(), correlationID)
		if err != nil {
			logger.Debug("failed to query settlement workflow", "correlation_id", correlationID, "error", err)
			writeError(w, "settlement not found", http.StatusNotFound)
			return
		}

		resp := onRampResponse{
			CorrelationID: correlationID,
			Stage:         snapshot.Stage,
			CheckoutURL:   snapshot.CheckoutURL,
			TxHash:        snapshot.TxHash,
			Error:         snapshot.Error,
		}
		if snapshot.CheckoutURL != "" {
			resp.CheckoutQRPNG = encodeCheckoutQR(snapshot.CheckoutURL, logger)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handlePaymentCallback returns a handler for the payment processor's
// redirect callback. The callback is a tagged union: an authorization
// carries code, a capture carries token + PayerID. A callback carrying both
// is ambiguous and rejected. Duplicate deliveries are answered 200 without
// signaling the workflow again.
// GET /api/v1/payments/callback?correlation_id=...&code=... or &token=...&PayerID=...
func handlePaymentCallback(store *db.Store, orchestrator temporal.Orchestrator, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		correlationID := query.Get("correlation_id")
		code := query.Get("code")
		token := query.Get("token")
		payerID := query.Get("PayerID")

		if correlationID == "" {
			writeError(w, "correlation_id query parameter is required", http.StatusBadRequest)
			return
		}

		if code != "" && token != "" {
			writeError(w, "ambiguous callback: code and token are mutually exclusive", http.StatusBadRequest)
			return
		}
		if code == "" && token == "" {
			writeError(w, "callback must carry either code or token", http.StatusBadRequest)
			return
		}
		if token != "" && payerID == "" {
			writeError(w, "PayerID is required with token", http.StatusBadRequest)
			return
		}

		// A capture attempt already on record means this delivery is a
		// duplicate. The workflow-side compare-and-set catches races this
		// check cannot see.
		_, err := store.GetPaymentAttempt(r.Context(), correlationID)
		if err == nil {
			logger.Info("duplicate payment callback", "correlation_id", correlationID)
			writeJSON(w, map[string]interface{}{"duplicate": true}, http.StatusOK)
			return
		}
		if !errors.Is(err, db.ErrNotFound) {
			logger.Error("failed to look up payment attempt", "correlation_id", correlationID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		signal := temporal.PaymentCallbackSignal{
			Code:    code,
			Token:   token,
			PayerID: payerID,
		}
		if err := orchestrator.SignalPaymentCallback(r.Context(), correlationID, signal); err != nil {
			logger.Error("failed to signal settlement workflow", "correlation_id", correlationID, "error", err)
			writeError(w, "settlement not found", http.StatusNotFound)
			return
		}

		logger.Info("payment callback delivered", "correlation_id", correlationID)
		writeJSON(w, map[string]interface{}{"duplicate": false}, http.StatusOK)
	})
}

// handleCreateOffRamp returns a handler that creates an off-ramp intent on
// the ledger for a registered wallet.
// POST /api/v1/offramps
func handleCreateOffRamp(store *db.Store, ledger LedgerGateway, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			WalletAddress string `json:"wallet_address"`
			AmountWei     string `json:"amount_wei"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode offramp request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			logger.Debug("invalid address", "address", req.WalletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := validateWeiAmount(req.AmountWei); err != nil {
			logger.Debug("invalid wei amount", "amount_wei", req.AmountWei, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// The off-ramper's registration carries the email the matched
		// on-ramper will pay; an unregistered wallet cannot queue.
		reg, err := store.GetRegistration(r.Context(), req.WalletAddress)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet is not registered", http.StatusForbidden)
				return
			}
			logger.Error("failed to look up registration", "address", req.WalletAddress, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if reg.Status != db.RegStatusRegistered {
			writeError(w, fmt.Sprintf("wallet registration is %s, not registered", reg.Status), http.StatusForbidden)
			return
		}

		txHash, err := ledger.CreateOffRampIntent(r.Context(), req.WalletAddress, req.AmountWei)
		if err != nil {
			logger.Error("failed to create off-ramp intent", "address", req.WalletAddress, "error", err)
			writeError(w, "failed to create off-ramp intent", http.StatusBadGateway)
			return
		}

		record, err := store.CreateTransactionRecord(r.Context(), db.CreateTransactionRecordParams{
			WalletAddress: req.WalletAddress,
			TxHash:        txHash,
			Type:          db.TxTypeOffRamp,
		})
		if err != nil {
			// The intent exists on the ledger either way; report it.
			logger.Error("failed to record off-ramp intent", "address", req.WalletAddress, "tx_hash", txHash, "error", err)
			writeError(w, "off-ramp intent created but not recorded", http.StatusInternalServerError)
			return
		}

		logger.Info("off-ramp intent created",
			"address", req.WalletAddress,
			"tx_hash", txHash,
			"amount_wei", req.AmountWei,
		)
		writeJSON(w, transactionToResponse(record), http.StatusCreated)
	})
}

// handleLedgerStatus returns a handler that reports a wallet's escrow
// balance and the current off-ramp queue depth.
// GET /api/v1/ledger/status?wallet_address=0x...
func handleLedgerStatus(ledger LedgerGateway, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("wallet_address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		balance, err := ledger.QueryEscrowBalance(r.Context(), address)
		if err != nil {
			logger.Error("failed to query escrow balance", "address", address, "error", err)
			writeError(w, "failed to query escrow balance", http.StatusBadGateway)
			return
		}

		openIntents, err := ledger.NumberOfOpenOffRampIntents(r.Context())
		if err != nil {
			logger.Error("failed to count open off-ramp intents", "error", err)
			writeError(w, "failed to count open off-ramp intents", http.StatusBadGateway)
			return
		}

		writeJSON(w, map[string]interface{}{
			"wallet_address":        address,
			"escrow_balance_wei":    balance,
			"open_off_ramp_intents": openIntents,
		}, http.StatusOK)
	})
}

// handleSubmitRegistration returns a handler that submits a wallet
// registration and starts the workflow that polls for its confirmation.
// POST /api/v1/registrations
func handleSubmitRegistration(store *db.Store, orchestrator temporal.Orchestrator, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			WalletAddress string `json:"wallet_address"`
			Email         string `json:"email"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode registration request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			logger.Debug("invalid address", "address", req.WalletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := validateEmail(req.Email); err != nil {
			logger.Debug("invalid email", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Submitting a wallet for the first time implies connecting it, so
		// an absent row starts at not_registered rather than not_connected.
		state := registration.StateNotRegistered
		reg, err := store.GetRegistration(r.Context(), req.WalletAddress)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			logger.Error("failed to look up registration", "address", req.WalletAddress, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if err == nil {
			state = registration.State(reg.Status)
		}

		machine := registration.NewMachine(state)
		if !machine.CanApply(registration.EventSubmit) {
			logger.Debug("registration submission rejected", "address", req.WalletAddress, "state", state)
			writeError(w, fmt.Sprintf("registration is already %s", state), http.StatusConflict)
			return
		}

		err = orchestrator.StartRegistration(r.Context(), temporal.RegistrationInput{
			WalletAddress: req.WalletAddress,
			Email:         req.Email,
			PollInterval:  cfg.RegistrationPollInterval,
			PollTimeout:   registrationPollTimeout,
		})
		if err != nil {
			logger.Error("failed to start registration workflow", "address", req.WalletAddress, "error", err)
			writeError(w, "failed to start registration", http.StatusInternalServerError)
			return
		}

		logger.Info("registration submitted", "address", req.WalletAddress)
		writeJSON(w, registrationResponse{
			WalletAddress: req.WalletAddress,
			Status:        db.RegStatusPending,
		}, http.StatusAccepted)
	})
}

// handleGetRegistration returns a handler that reports registration status
// for a wallet. A wallet with no registration row is not_connected.
// GET /api/v1/registrations/{address}
func handleGetRegistration(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		reg, err := store.GetRegistration(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeJSON(w, registrationResponse{
					WalletAddress: address,
					Status:        string(registration.StateNotConnected),
				}, http.StatusOK)
				return
			}
			logger.Error("failed to look up registration", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, registrationResponse{
			WalletAddress: reg.WalletAddress,
			Email:         reg.Email,
			Status:        reg.Status,
			CreatedAt:     &reg.CreatedAt,
			UpdatedAt:     &reg.UpdatedAt,
		}, http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists transaction records
// for a wallet.
// GET /api/v1/transactions?wallet_address=ADDRESS&status=pending&limit=N&offset=N
func handleListTransactions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		walletAddress := query.Get("wallet_address")

		// wallet_address is required
		if walletAddress == "" {
			writeError(w, "wallet_address query parameter is required", http.StatusBadRequest)
			return
		}

		if err := validateAddress(walletAddress); err != nil {
			logger.Debug("invalid address", "address", walletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		status := query.Get("status")
		if status != "" && status != db.TxStatusPending {
			writeError(w, "invalid status filter: only 'pending' is supported", http.StatusBadRequest)
			return
		}

		var records []*db.TransactionRecord
		var err error
		if status == db.TxStatusPending {
			records, err = store.ListPendingTransactions(r.Context(), walletAddress)
		} else {
			limit, offset, perr := parseLimitOffset(query.Get("limit"), query.Get("offset"))
			if perr != nil {
				writeError(w, perr.Error(), http.StatusBadRequest)
				return
			}
			records, err = store.ListTransactionsByWallet(r.Context(), walletAddress, limit, offset)
		}
		if err != nil {
			logger.Error("failed to list transactions", "wallet", walletAddress, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("transactions listed", "wallet", walletAddress, "count", len(records))

		resp := make([]transactionResponse, len(records))
		for i := range records {
			resp[i] = transactionToResponse(records[i])
		}

		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
		}, http.StatusOK)
	})
}

// handleConfirmAllTransactions returns a handler that marks every pending
// transaction record for a wallet as successful. Mounted only in dev mode;
// it stands in for ledger confirmation when no ledger is running.
// PUT /api/v1/dev/transactions/{address}/confirm-all
func handleConfirmAllTransactions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		confirmed, err := store.ConfirmAllPendingTransactions(r.Context(), address)
		if err != nil {
			logger.Error("failed to confirm transactions", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("pending transactions confirmed", "address", address, "count", confirmed)
		writeJSON(w, map[string]interface{}{"confirmed": confirmed}, http.StatusOK)
	})
}

// awaitCheckoutURL polls the settlement workflow for its checkout URL for a
// bounded span. An empty return just means the workflow hasn't created the
// checkout yet.
func awaitCheckoutURL(ctx context.Context, orchestrator temporal.Orchestrator, correlationID string, logger *slog.Logger) string {
	deadline := time.After(checkoutQuerySpan)
	ticker := time.NewTicker(checkoutQueryInterval)
	defer ticker.Stop()

	for {
		url, err := orchestrator.QueryCheckoutURL(ctx, correlationID)
		if err != nil {
			logger.Debug("checkout URL not available yet", "correlation_id", correlationID, "error", err)
		} else if url != "" {
			return url
		}

		select {
		case <-ctx.Done():
			return ""
		case <-deadline:
			return ""
		case <-ticker.C:
		}
	}
}

// encodeCheckoutQR renders the checkout URL as a base64-encoded PNG QR code.
// The QR is a convenience; failures are logged and an empty string returned.
func encodeCheckoutQR(url string, logger *slog.Logger) string {
	png, err := qrcode.Encode(url, qrcode.Medium, qrCodeSize)
	if err != nil {
		logger.Warn("failed to encode checkout QR code", "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(png)
}

// onRampResponse is the JSON response format for a settlement attempt.
type onRampResponse struct {
	CorrelationID string  `json:"correlation_id"`
	WalletAddress string  `json:"wallet_address,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	Stage         string  `json:"stage,omitempty"`
	CheckoutURL   string  `json:"checkout_url,omitempty"`
	CheckoutQRPNG string  `json:"checkout_qr_png,omitempty"`
	TxHash        string  `json:"tx_hash,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// registrationResponse is the JSON response format for registration status.
type registrationResponse struct {
	WalletAddress string     `json:"wallet_address"`
	Email         string     `json:"email,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// transactionResponse is the JSON response format for a transaction record.
type transactionResponse struct {
	WalletAddress string    `json:"wallet_address"`
	TxHash        string    `json:"tx_hash"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// transactionToResponse converts a domain TransactionRecord to a response format.
func transactionToResponse(t *db.TransactionRecord) transactionResponse {
	return transactionResponse{
		WalletAddress: t.WalletAddress,
		TxHash:        t.TxHash,
		Type:          t.Type,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// parseLimitOffset parses pagination parameters with bounds.
func parseLimitOffset(limitStr, offsetStr string) (int32, int32, error) {
	limit := int32(100)
	if limitStr != "" {
		var parsed int
		if _, err := fmt.Sscanf(limitStr, "%d", &parsed); err != nil {
			return 0, 0, errorf("invalid limit parameter: must be an integer")
		}
		if parsed < 1 {
			return 0, 0, errorf("limit must be at least 1")
		}
		if parsed > 1000 {
			return 0, 0, errorf("limit cannot exceed 1000")
		}
		limit = int32(parsed)
	}

	offset := int32(0)
	if offsetStr != "" {
		var parsed int
		if _, err := fmt.Sscanf(offsetStr, "%d", &parsed); err != nil {
			return 0, 0, errorf("invalid offset parameter: must be an integer")
		}
		if parsed < 0 {
			return 0, 0, errorf("offset cannot be negative")
		}
		offset = int32(parsed)
	}

	return limit, offset, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must be 0x followed by 40 hex characters")
	}

	return nil
}

// validateAmount validates a fiat amount.
func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return errorf("amount must be a finite number")
	}
	if amount <= 0 {
		return errorf("amount must be positive")
	}
	return nil
}

// validateWeiAmount validates an on-chain amount expressed in wei.
func validateWeiAmount(amountWei string) error {
	if amountWei == "" {
		return errorf("amount_wei is required")
	}
	if !validWeiRegex.MatchString(amountWei) {
		return errorf("invalid amount_wei: must be an unsigned decimal string")
	}
	if strings.Trim(amountWei, "0") == "" {
		return errorf("amount_wei must be positive")
	}
	return nil
}

// validateEmail performs a basic shape check; the payment processor is the
// authority on whether the account actually exists.
func validateEmail(email string) error {
	if email == "" {
		return errorf("email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return errorf("invalid email format")
	}
	if strings.ContainsAny(email, " \t\n") {
		return errorf("invalid email format")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
