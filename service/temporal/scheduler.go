package temporal

import (
	"context"
	"time"
)

// Orchestrator is the workflow surface the HTTP server depends on. The
// production implementation is Client; tests use MockOrchestrator.
type Orchestrator interface {
	// StartSettlement starts a settlement workflow for one on-ramp attempt.
	StartSettlement(ctx context.Context, input SettlementInput) error

	// SignalPaymentCallback delivers redirect callback parameters to the
	// settlement workflow for the correlation id.
	SignalPaymentCallback(ctx context.Context, correlationID string, signal PaymentCallbackSignal) error

	// QueryCheckoutURL returns the checkout URL of a running settlement
	// workflow, or an empty string if not created yet.
	QueryCheckoutURL(ctx context.Context, correlationID string) (string, error)

	// QuerySettlementStatus returns the current stage of a settlement
	// workflow.
	QuerySettlementStatus(ctx context.Context, correlationID string) (*SettlementStatusSnapshot, error)

	// StartRegistration starts a registration workflow for a wallet.
	StartRegistration(ctx context.Context, input RegistrationInput) error

	// CancelRegistration cancels a running registration workflow.
	CancelRegistration(ctx context.Context, walletAddress string) error
}

// Scheduler manages the Temporal schedule that sweeps expired reservations.
type Scheduler interface {
	// CreateSweepSchedule creates the reservation sweep schedule.
	CreateSweepSchedule(ctx context.Context, interval time.Duration) error

	// DeleteSweepSchedule deletes the reservation sweep schedule.
	DeleteSweepSchedule(ctx context.Context) error
}
