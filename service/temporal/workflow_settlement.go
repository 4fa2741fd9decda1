package temporal

import (
	"fmt"
	"time"

	natspkg "github.com/peerramp/peerramp/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Settlement outcomes.
const (
	SettlementStatusCompleted = "completed"
	SettlementStatusFailed    = "failed"
)

// Settlement stages, reported through the settlement-status query while the
// workflow runs. The last two mirror the terminal outcomes.
const (
	StageMatching         = "matching"
	StageAwaitingPayment  = "awaiting_payment"
	StageVerifyingPayment = "verifying_payment"
	StageSubmitting       = "submitting"
	StageConfirming       = "confirming"
	StageCompleted        = SettlementStatusCompleted
	StageFailed           = SettlementStatusFailed
)

// SettlementStatusSnapshot is the point-in-time view of a settlement attempt
// answered by the settlement-status query.
type SettlementStatusSnapshot struct {
	Stage       string `json:"stage"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SettlementInput contains input for one on-ramp settlement attempt. The
// workflow id is derived from the correlation id, so retrying the start of
// the same attempt cannot spawn a second settlement.
type SettlementInput struct {
	CorrelationID     string        `json:"correlation_id"`
	OnRampAddress     string        `json:"on_ramp_address"`
	SenderEmail       string        `json:"sender_email"`
	Amount            float64       `json:"amount"`
	PaymentTTL        time.Duration `json:"payment_ttl"`
	SettlementTimeout time.Duration `json:"settlement_timeout"`
}

// PaymentCallbackSignal carries redirect callback parameters into the
// workflow. Exactly one of Code or Token is set.
type PaymentCallbackSignal struct {
	Code    string `json:"code,omitempty"`
	Token   string `json:"token,omitempty"`
	PayerID string `json:"payer_id,omitempty"`
}

// SettlementResult contains the terminal state of a settlement attempt.
type SettlementResult struct {
	CorrelationID  string  `json:"correlation_id"`
	OnRampAddress  string  `json:"on_ramp_address"`
	OffRampAddress string  `json:"off_ramp_address,omitempty"`
	CheckoutURL    string  `json:"checkout_url,omitempty"`
	TxHash         string  `json:"tx_hash,omitempty"`
	Status         string  `json:"status"` // "completed" or "failed"
	Error          *string `json:"error,omitempty"`
}

// OnRampSettlementWorkflow orchestrates one on-ramp settlement attempt:
// 1. Claim an off-ramp peer (FindAndClaimPeer activity)
// 2. Create the fiat checkout (CreateCheckout activity)
// 3. Wait for the redirect callback signal, bounded by the payment TTL
// 4. Capture and verify the payment (VerifyPayment activity)
// 5. Submit the on-ramp to the ledger and await confirmation
// 6. Publish the outcome and release the reservation
//
// The reservation is released only after the outcome is durably recorded,
// so the off-ramp intent never becomes rematchable while a settlement
// against it is still in flight.
func OnRampSettlementWorkflow(ctx workflow.Context, input SettlementInput) (*SettlementResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("OnRampSettlementWorkflow started",
		"correlation_id", input.CorrelationID,
		"on_ramp_address", input.OnRampAddress,
		"amount", input.Amount,
	)

	result := &SettlementResult{
		CorrelationID: input.CorrelationID,
		OnRampAddress: input.OnRampAddress,
	}
	snapshot := &SettlementStatusSnapshot{Stage: StageMatching}

	// Expose the checkout URL so the server can answer status queries while
	// the on-ramper is still paying.
	if err := workflow.SetQueryHandler(ctx, CheckoutURLQueryName, func() (string, error) {
		return result.CheckoutURL, nil
	}); err != nil {
		return result, fmt.Errorf("failed to set query handler: %w", err)
	}
	if err := workflow.SetQueryHandler(ctx, SettlementStatusQueryName, func() (SettlementStatusSnapshot, error) {
		return *snapshot, nil
	}); err != nil {
		return result, fmt.Errorf("failed to set query handler: %w", err)
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Claim an off-ramp peer.
	var peer *FindAndClaimPeerResult
	err := workflow.ExecuteActivity(ctx, a.FindAndClaimPeer, FindAndClaimPeerInput{
		OnRampAddress: input.OnRampAddress,
		CorrelationID: input.CorrelationID,
	}).Get(ctx, &peer)
	if err != nil {
		logger.Error("peer matching failed", "error", err)
		return failSettlement(ctx, result, snapshot, input, fmt.Sprintf("peer matching failed: %v", err))
	}
	result.OffRampAddress = peer.OffRampAddress
	logger.Info("claimed off-ramp peer", "off_ramp_address", peer.OffRampAddress)

	// Step 2: Create the fiat checkout.
	var checkout *CreateCheckoutResult
	err = workflow.ExecuteActivity(ctx, a.CreateCheckout, CreateCheckoutInput{
		CorrelationID: input.CorrelationID,
		Amount:        input.Amount,
		ReceiverEmail: peer.OffRampEmail,
	}).Get(ctx, &checkout)
	if err != nil {
		logger.Error("checkout creation failed", "error", err)
		return failSettlement(ctx, result, snapshot, input, fmt.Sprintf("checkout creation failed: %v", err))
	}
	result.CheckoutURL = checkout.URL
	snapshot.CheckoutURL = checkout.URL
	snapshot.Stage = StageAwaitingPayment

	publishEvent(ctx, PublishSettlementEventInput{
		EventType:      natspkg.EventTypeSettlementStarted,
		CorrelationID:  input.CorrelationID,
		OnRampAddress:  input.OnRampAddress,
		OffRampAddress: peer.OffRampAddress,
		Amount:         input.Amount,
	})

	// Step 3: Wait for the redirect callback, bounded by the payment TTL.
	// Only the first signal is acted on; duplicates delivered while the
	// attempt is in flight are drained and ignored. The capture record in
	// the database suppresses duplicates across workflow runs as well.
	var signal PaymentCallbackSignal
	signalCh := workflow.GetSignalChannel(ctx, PaymentCallbackSignalName)
	received, _ := signalCh.ReceiveWithTimeout(ctx, input.PaymentTTL, &signal)
	if !received {
		logger.Warn("payment callback timed out", "correlation_id", input.CorrelationID)
		return failSettlement(ctx, result, snapshot, input, "payment not completed before reservation expired")
	}
	snapshot.Stage = StageVerifyingPayment
	for {
		var extra PaymentCallbackSignal
		if !signalCh.ReceiveAsync(&extra) {
			break
		}
		logger.Warn("ignoring duplicate payment callback", "correlation_id", input.CorrelationID)
	}

	// Step 4: Capture and verify the payment.
	var attestation *VerifyPaymentResult
	err = workflow.ExecuteActivity(ctx, a.VerifyPayment, VerifyPaymentInput{
		CorrelationID: input.CorrelationID,
		Code:          signal.Code,
		Token:         signal.Token,
		PayerID:       signal.PayerID,
	}).Get(ctx, &attestation)
	if err != nil {
		logger.Error("payment verification failed", "error", err)
		return failSettlement(ctx, result, snapshot, input, fmt.Sprintf("payment verification failed: %v", err))
	}
	snapshot.Stage = StageSubmitting

	// Step 5: Submit to the ledger and await confirmation.
	var submission *SubmitOnRampResult
	err = workflow.ExecuteActivity(ctx, a.SubmitOnRamp, SubmitOnRampInput{
		CorrelationID:  input.CorrelationID,
		OnRampAddress:  input.OnRampAddress,
		OffRampAddress: peer.OffRampAddress,
		SenderEmail:    input.SenderEmail,
		ReceiverEmail:  peer.OffRampEmail,
		Amount:         input.Amount,
		Attestation:    *attestation,
	}).Get(ctx, &submission)
	if err != nil {
		logger.Error("on-ramp submission failed", "error", err)
		return failSettlement(ctx, result, snapshot, input, fmt.Sprintf("on-ramp submission failed: %v", err))
	}
	result.TxHash = submission.TxHash
	snapshot.TxHash = submission.TxHash
	snapshot.Stage = StageConfirming

	confirmOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	confirmCtx := workflow.WithActivityOptions(ctx, confirmOptions)

	var confirmation *AwaitLedgerConfirmationResult
	err = workflow.ExecuteActivity(confirmCtx, a.AwaitLedgerConfirmation, AwaitLedgerConfirmationInput{
		TxHash:         submission.TxHash,
		OnRampAddress:  input.OnRampAddress,
		OffRampAddress: peer.OffRampAddress,
	}).Get(ctx, &confirmation)
	if err != nil {
		logger.Error("ledger confirmation failed", "error", err)
		return failSettlement(ctx, result, snapshot, input, fmt.Sprintf("ledger confirmation failed: %v", err))
	}

	if confirmation.Status != "success" {
		reason := "ledger transaction failed"
		if confirmation.RevertReason != nil {
			reason = *confirmation.RevertReason
		}
		logger.Error("ledger rejected settlement", "reason", reason)
		return failSettlement(ctx, result, snapshot, input, reason)
	}

	// Step 6: Publish the outcome, then release the reservation.
	publishEvent(ctx, PublishSettlementEventInput{
		EventType:      natspkg.EventTypeSettlementSucceeded,
		CorrelationID:  input.CorrelationID,
		OnRampAddress:  input.OnRampAddress,
		OffRampAddress: peer.OffRampAddress,
		Amount:         input.Amount,
		TxHash:         submission.TxHash,
	})
	releaseReservation(ctx, input.CorrelationID)

	snapshot.Stage = StageCompleted
	result.Status = SettlementStatusCompleted
	logger.Info("OnRampSettlementWorkflow completed",
		"correlation_id", input.CorrelationID,
		"tx_hash", submission.TxHash,
	)
	return result, nil
}

// failSettlement records the failure, publishes the failed event, and
// releases the reservation. The workflow completes with a failed result
// rather than a workflow error so callers always get the structured outcome.
func failSettlement(ctx workflow.Context, result *SettlementResult, snapshot *SettlementStatusSnapshot, input SettlementInput, reason string) (*SettlementResult, error) {
	publishEvent(ctx, PublishSettlementEventInput{
		EventType:      natspkg.EventTypeSettlementFailed,
		CorrelationID:  input.CorrelationID,
		OnRampAddress:  input.OnRampAddress,
		OffRampAddress: result.OffRampAddress,
		Amount:         input.Amount,
		TxHash:         result.TxHash,
		Reason:         reason,
	})
	if result.OffRampAddress != "" {
		releaseReservation(ctx, input.CorrelationID)
	}

	snapshot.Stage = StageFailed
	snapshot.Error = reason
	result.Status = SettlementStatusFailed
	result.Error = &reason
	return result, nil
}

// publishEvent publishes a settlement event, tolerating publish failures.
// Events are advisory; the durable record is the database.
func publishEvent(ctx workflow.Context, input PublishSettlementEventInput) {
	logger := workflow.GetLogger(ctx)
	err := workflow.ExecuteActivity(ctx, a.PublishSettlementEvent, input).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish settlement event",
			"event_type", input.EventType,
			"correlation_id", input.CorrelationID,
			"error", err,
		)
	}
}

// releaseReservation releases the attempt's reservation, tolerating errors.
// An unreleased reservation is reclaimed by the sweep schedule after expiry.
func releaseReservation(ctx workflow.Context, correlationID string) {
	logger := workflow.GetLogger(ctx)
	err := workflow.ExecuteActivity(ctx, a.ReleaseReservation, ReleaseReservationInput{
		CorrelationID: correlationID,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to release reservation, sweep will reclaim it",
			"correlation_id", correlationID,
			"error", err,
		)
	}
}
