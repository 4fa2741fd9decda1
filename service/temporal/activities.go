package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/peerramp/peerramp/service/db"
	"github.com/peerramp/peerramp/service/ledger"
	"github.com/peerramp/peerramp/service/match"
	"github.com/peerramp/peerramp/service/metrics"
	natspkg "github.com/peerramp/peerramp/service/nats"
	"github.com/peerramp/peerramp/service/processor"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	CreateTransactionRecord(ctx context.Context, params db.CreateTransactionRecordParams) (*db.TransactionRecord, error)
	UpdateTransactionStatus(ctx context.Context, walletAddress, txHash, newStatus string) (*db.TransactionRecord, error)
	Release(ctx context.Context, correlationID string) error
	AttachSettlementTx(ctx context.Context, correlationID, txHash string) error
	SweepExpiredReservations(ctx context.Context) (int64, error)
	BeginPaymentCapture(ctx context.Context, correlationID, token, payerID string) (*db.PaymentAttempt, error)
	FinishPaymentCapture(ctx context.Context, correlationID, outcome string) (*db.PaymentAttempt, error)
	CreateRegistration(ctx context.Context, walletAddress, email string) (*db.Registration, error)
	MarkRegistrationStatus(ctx context.Context, walletAddress, status string) (*db.Registration, error)
}

// LedgerInterface defines the ledger gateway operations needed by activities.
type LedgerInterface interface {
	OnRamp(ctx context.Context, params ledger.OnRampParams) (string, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*ledger.Receipt, error)
	GetUserEmail(ctx context.Context, address string) (string, error)
	RegisterUserAccount(ctx context.Context, address, email string) (string, error)
	LoginUserAccount(ctx context.Context, address string) (bool, error)
}

// ProcessorInterface defines the payment processor operations needed by activities.
type ProcessorInterface interface {
	CreateCheckout(ctx context.Context, params processor.CheckoutParams) (*processor.CheckoutSession, error)
	VerifyPayment(ctx context.Context, capture processor.Capture) (*processor.Attestation, error)
}

// FinderInterface defines the peer matching operations needed by activities.
type FinderInterface interface {
	FindAndClaim(ctx context.Context, onRampAddress, correlationID string) (*match.Match, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishSettlementEvent(ctx context.Context, event *natspkg.SettlementEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	store        StoreInterface
	ledgerClient LedgerInterface
	procClient   ProcessorInterface
	finder       FinderInterface
	publisher    PublisherInterface
	publicURL    string
	confirmPoll  time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If m is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	ledgerClient LedgerInterface,
	procClient ProcessorInterface,
	finder FinderInterface,
	publisher PublisherInterface,
	publicURL string,
	confirmPoll time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	if confirmPoll <= 0 {
		confirmPoll = 5 * time.Second
	}
	return &Activities{
		store:        store,
		ledgerClient: ledgerClient,
		procClient:   procClient,
		finder:       finder,
		publisher:    publisher,
		publicURL:    publicURL,
		confirmPoll:  confirmPoll,
		metrics:      m,
		logger:       logger,
	}
}

// FindAndClaimPeerInput contains parameters for the FindAndClaimPeer activity.
type FindAndClaimPeerInput struct {
	OnRampAddress string `json:"on_ramp_address"`
	CorrelationID string `json:"correlation_id"`
}

// FindAndClaimPeerResult contains the claimed peer.
type FindAndClaimPeerResult struct {
	OffRampAddress string `json:"off_ramp_address"`
	OffRampEmail   string `json:"off_ramp_email"`
	AmountReserved string `json:"amount_reserved"`
}

// FindAndClaimPeer matches the on-ramper with the longest-queuing unreserved
// off-ramp intent and claims an exclusive reservation on it. An empty queue
// is a terminal condition for the attempt, not a retryable failure.
func (a *Activities) FindAndClaimPeer(ctx context.Context, input FindAndClaimPeerInput) (*FindAndClaimPeerResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("FindAndClaimPeer", time.Since(start).Seconds())
		}
	}()

	a.logger.DebugContext(ctx, "finding off-ramp peer",
		"on_ramp_address", input.OnRampAddress,
		"correlation_id", input.CorrelationID,
	)

	m, err := a.finder.FindAndClaim(ctx, input.OnRampAddress, input.CorrelationID)
	if err != nil {
		if errors.Is(err, match.ErrNoPeerAvailable) {
			return nil, temporal.NewNonRetryableApplicationError("no off-ramp peer available", "NoPeerAvailable", err)
		}
		return nil, fmt.Errorf("failed to find and claim peer: %w", err)
	}

	// The ledger account is the source of truth for the off-ramper's
	// payout email; the queued intent payload may be stale. Fall back to
	// the payload if the lookup fails, since the reservation is already
	// held.
	email, err := a.ledgerClient.GetUserEmail(ctx, m.OffRampAddress)
	if err != nil {
		a.logger.WarnContext(ctx, "using queued off-ramp email, ledger lookup failed",
			"off_ramp_address", m.OffRampAddress,
			"error", err,
		)
		email = m.OffRampEmail
	}

	a.logger.InfoContext(ctx, "claimed off-ramp peer",
		"off_ramp_address", m.OffRampAddress,
		"correlation_id", input.CorrelationID,
	)

	return &FindAndClaimPeerResult{
		OffRampAddress: m.OffRampAddress,
		OffRampEmail:   email,
		AmountReserved: m.AmountReserved,
	}, nil
}

// CreateCheckoutInput contains parameters for the CreateCheckout activity.
type CreateCheckoutInput struct {
	CorrelationID string  `json:"correlation_id"`
	Amount        float64 `json:"amount"`
	ReceiverEmail string  `json:"receiver_email"`
}

// CreateCheckoutResult contains the created checkout session.
type CreateCheckoutResult struct {
	URL          string `json:"url"`
	ProcessorRef string `json:"processor_ref"`
}

// CreateCheckout creates the fiat checkout the on-ramper must complete. The
// processor redirects the payer back to our callback route with the
// correlation id.
func (a *Activities) CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CreateCheckoutResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("CreateCheckout", time.Since(start).Seconds())
		}
	}()

	session, err := a.procClient.CreateCheckout(ctx, processor.CheckoutParams{
		CorrelationID: input.CorrelationID,
		Amount:        input.Amount,
		ReceiverEmail: input.ReceiverEmail,
		RedirectURL:   a.publicURL + "/api/v1/payments/callback?correlation_id=" + input.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	a.logger.InfoContext(ctx, "checkout created",
		"correlation_id", input.CorrelationID,
		"processor_ref", session.ProcessorRef,
	)

	return &CreateCheckoutResult{
		URL:          session.URL,
		ProcessorRef: session.ProcessorRef,
	}, nil
}

// VerifyPaymentInput contains the redirect callback parameters to verify.
type VerifyPaymentInput struct {
	CorrelationID string `json:"correlation_id"`
	Code          string `json:"code,omitempty"`
	Token         string `json:"token,omitempty"`
	PayerID       string `json:"payer_id,omitempty"`
}

// VerifyPaymentResult contains the processor's attestation.
type VerifyPaymentResult struct {
	Verified          bool    `json:"verified"`
	TransactionAmount float64 `json:"transaction_amount"`
	Signature         string  `json:"signature"`
	Timestamp         string  `json:"timestamp"`
}

// VerifyPayment captures the payment and obtains the processor attestation.
// The capture record claims the correlation id first, so a callback that was
// already processed (directly or by a concurrent worker) does not trigger a
// second capture against the processor.
func (a *Activities) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*VerifyPaymentResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("VerifyPayment", time.Since(start).Seconds())
		}
	}()

	_, err := a.store.BeginPaymentCapture(ctx, input.CorrelationID, input.Token, input.PayerID)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateCallback) {
			return nil, temporal.NewNonRetryableApplicationError("payment capture already processed", "DuplicateCallback", err)
		}
		return nil, fmt.Errorf("failed to begin payment capture: %w", err)
	}

	att, err := a.procClient.VerifyPayment(ctx, processor.Capture{
		Code:    input.Code,
		Token:   input.Token,
		PayerID: input.PayerID,
	})
	if err != nil {
		if errors.Is(err, processor.ErrCaptureUnverified) {
			if _, finishErr := a.store.FinishPaymentCapture(ctx, input.CorrelationID, "failed"); finishErr != nil {
				a.logger.ErrorContext(ctx, "failed to record capture failure",
					"correlation_id", input.CorrelationID,
					"error", finishErr,
				)
			}
			return nil, temporal.NewNonRetryableApplicationError("payment capture unverified", "CaptureUnverified", err)
		}
		// Transient processor errors leave the attempt in_progress so a
		// retry re-enters BeginPaymentCapture as a resumption of the same
		// (token, payer_id) rather than a duplicate.
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}

	if _, err := a.store.FinishPaymentCapture(ctx, input.CorrelationID, "success"); err != nil {
		return nil, fmt.Errorf("failed to record capture success: %w", err)
	}

	a.logger.InfoContext(ctx, "payment verified",
		"correlation_id", input.CorrelationID,
		"amount", att.TransactionAmount,
	)

	return &VerifyPaymentResult{
		Verified:          att.Verified,
		TransactionAmount: att.TransactionAmount,
		Signature:         att.Signature,
		Timestamp:         att.Timestamp,
	}, nil
}

// SubmitOnRampInput contains parameters for the SubmitOnRamp activity.
type SubmitOnRampInput struct {
	CorrelationID  string              `json:"correlation_id"`
	OnRampAddress  string              `json:"on_ramp_address"`
	OffRampAddress string              `json:"off_ramp_address"`
	SenderEmail    string              `json:"sender_email"`
	ReceiverEmail  string              `json:"receiver_email"`
	Amount         float64             `json:"amount"`
	Attestation    VerifyPaymentResult `json:"attestation"`
}

// SubmitOnRampResult contains the submitted ledger transaction.
type SubmitOnRampResult struct {
	TxHash string `json:"tx_hash"`
}

// SubmitOnRamp forwards the attested fiat payment to the ledger as an
// on-ramp instruction. The attestation must be verified; an unverified
// attestation never reaches the ledger. On success a pending transaction
// record is created for each participant and the reservation is annotated
// with the settlement tx.
func (a *Activities) SubmitOnRamp(ctx context.Context, input SubmitOnRampInput) (*SubmitOnRampResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("SubmitOnRamp", time.Since(start).Seconds())
		}
	}()

	if !input.Attestation.Verified {
		return nil, temporal.NewNonRetryableApplicationError("attestation is not verified", "UnverifiedAttestation", nil)
	}

	txHash, err := a.ledgerClient.OnRamp(ctx, ledger.OnRampParams{
		Amount:            input.Amount,
		OffRamperAddress:  input.OffRampAddress,
		SenderEmail:       input.SenderEmail,
		ReceiverEmail:     input.ReceiverEmail,
		TransactionAmount: input.Attestation.TransactionAmount,
		Signature:         input.Attestation.Signature,
		Timestamp:         input.Attestation.Timestamp,
	})
	if err != nil {
		var revertErr *ledger.RevertError
		if errors.As(err, &revertErr) {
			return nil, temporal.NewNonRetryableApplicationError(revertErr.Reason, "LedgerRevert", err)
		}
		return nil, fmt.Errorf("failed to submit on-ramp: %w", err)
	}

	// Both participants track the same settlement tx.
	for _, rec := range []struct {
		wallet string
		txType string
	}{
		{input.OnRampAddress, db.TxTypeOnRamp},
		{input.OffRampAddress, db.TxTypeOffRamp},
	} {
		_, err := a.store.CreateTransactionRecord(ctx, db.CreateTransactionRecordParams{
			WalletAddress: rec.wallet,
			TxHash:        txHash,
			Type:          rec.txType,
		})
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to create transaction record",
				"wallet_address", rec.wallet,
				"tx_hash", txHash,
				"error", err,
			)
			return nil, fmt.Errorf("failed to create transaction record: %w", err)
		}
	}

	if err := a.store.AttachSettlementTx(ctx, input.CorrelationID, txHash); err != nil {
		a.logger.WarnContext(ctx, "failed to attach settlement tx to reservation",
			"correlation_id", input.CorrelationID,
			"tx_hash", txHash,
			"error", err,
		)
		// The reservation may have expired; the records above still track
		// the settlement, so don't fail the activity.
	}

	a.logger.InfoContext(ctx, "on-ramp submitted",
		"correlation_id", input.CorrelationID,
		"tx_hash", txHash,
	)

	return &SubmitOnRampResult{TxHash: txHash}, nil
}

// AwaitLedgerConfirmationInput contains parameters for confirmation polling.
type AwaitLedgerConfirmationInput struct {
	TxHash         string `json:"tx_hash"`
	OnRampAddress  string `json:"on_ramp_address"`
	OffRampAddress string `json:"off_ramp_address"`
}

// AwaitLedgerConfirmationResult contains the terminal receipt state.
type AwaitLedgerConfirmationResult struct {
	Status       string  `json:"status"`
	RevertReason *string `json:"revert_reason,omitempty"`
}

// AwaitLedgerConfirmation polls transaction receipts until the ledger
// reports a terminal status, then moves both participants' transaction
// records to that status. Heartbeats keep Temporal aware the poll is alive;
// the activity's StartToCloseTimeout bounds the overall wait.
func (a *Activities) AwaitLedgerConfirmation(ctx context.Context, input AwaitLedgerConfirmationInput) (*AwaitLedgerConfirmationResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("AwaitLedgerConfirmation", time.Since(start).Seconds())
		}
	}()

	a.logger.InfoContext(ctx, "awaiting ledger confirmation", "tx_hash", input.TxHash)

	ticker := time.NewTicker(a.confirmPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		activity.RecordHeartbeat(ctx, "polling receipt for "+input.TxHash)

		receipt, err := a.ledgerClient.GetTransactionReceipt(ctx, input.TxHash)
		if err != nil {
			a.logger.WarnContext(ctx, "receipt poll failed, will retry",
				"tx_hash", input.TxHash,
				"error", err,
			)
			continue
		}
		if receipt.Status == ledger.ReceiptStatusPending {
			continue
		}

		status := db.TxStatusSuccess
		if receipt.Status == ledger.ReceiptStatusFailed {
			status = db.TxStatusFailed
		}

		for _, wallet := range []string{input.OnRampAddress, input.OffRampAddress} {
			if _, err := a.store.UpdateTransactionStatus(ctx, wallet, input.TxHash, status); err != nil {
				// Idempotent re-delivery is absorbed by the store; anything
				// else here is a real failure.
				if !errors.Is(err, db.ErrNotFound) {
					return nil, fmt.Errorf("failed to update transaction status for %s: %w", wallet, err)
				}
			}
		}

		a.logger.InfoContext(ctx, "ledger confirmed transaction",
			"tx_hash", input.TxHash,
			"status", status,
		)

		return &AwaitLedgerConfirmationResult{
			Status:       status,
			RevertReason: receipt.RevertReason,
		}, nil
	}
}

// ReleaseReservationInput contains parameters for the ReleaseReservation activity.
type ReleaseReservationInput struct {
	CorrelationID string `json:"correlation_id"`
}

// ReleaseReservation releases the off-ramp reservation held by a settlement
// attempt. Releasing an already-released or expired reservation is a no-op.
func (a *Activities) ReleaseReservation(ctx context.Context, input ReleaseReservationInput) error {
	if err := a.store.Release(ctx, input.CorrelationID); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	a.logger.InfoContext(ctx, "reservation released", "correlation_id", input.CorrelationID)
	return nil
}

// PublishSettlementEventInput contains the event to publish.
type PublishSettlementEventInput struct {
	EventType      string  `json:"event_type"`
	CorrelationID  string  `json:"correlation_id"`
	OnRampAddress  string  `json:"on_ramp_address"`
	OffRampAddress string  `json:"off_ramp_address"`
	Amount         float64 `json:"amount"`
	TxHash         string  `json:"tx_hash,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// PublishSettlementEvent publishes the event on both participants' subjects
// so either side can follow the attempt. Publishing is best-effort per
// subject; a partial publish returns an error so the activity retries.
func (a *Activities) PublishSettlementEvent(ctx context.Context, input PublishSettlementEventInput) error {
	if a.publisher == nil {
		return nil
	}

	wallets := []string{input.OnRampAddress}
	if input.OffRampAddress != "" && input.OffRampAddress != input.OnRampAddress {
		wallets = append(wallets, input.OffRampAddress)
	}

	for _, wallet := range wallets {
		event := &natspkg.SettlementEvent{
			EventType:      input.EventType,
			CorrelationID:  input.CorrelationID,
			WalletAddress:  wallet,
			OnRampAddress:  input.OnRampAddress,
			OffRampAddress: input.OffRampAddress,
			Amount:         input.Amount,
			TxHash:         input.TxHash,
			Reason:         input.Reason,
			PublishedAt:    time.Now().UTC(),
		}
		if err := a.publisher.PublishSettlementEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to publish settlement event for %s: %w", wallet, err)
		}
	}
	return nil
}

// SweepReservationsResult contains the sweep outcome.
type SweepReservationsResult struct {
	Swept int64 `json:"swept"`
}

// SweepReservations removes expired reservations so their off-ramp intents
// become matchable again. Invoked on a Temporal schedule.
func (a *Activities) SweepReservations(ctx context.Context) (*SweepReservationsResult, error) {
	swept, err := a.store.SweepExpiredReservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep expired reservations: %w", err)
	}
	if swept > 0 {
		a.logger.InfoContext(ctx, "swept expired reservations", "count", swept)
	}
	if a.metrics != nil {
		a.metrics.RecordReservationsSwept(int(swept))
	}
	return &SweepReservationsResult{Swept: swept}, nil
}
