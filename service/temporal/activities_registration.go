package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peerramp/peerramp/service/db"
	"go.temporal.io/sdk/temporal"
)

// SubmitRegistrationInput contains parameters for submitting a registration.
type SubmitRegistrationInput struct {
	WalletAddress string `json:"wallet_address"`
	Email         string `json:"email"`
}

// SubmitRegistrationResult contains the submitted registration transaction.
type SubmitRegistrationResult struct {
	TxHash string `json:"tx_hash"`
}

// SubmitRegistration records the registration submission and sends the
// register-account transaction to the ledger. The unique constraint on
// (wallet, email) makes the submission exactly-once: a duplicate submission
// fails before anything reaches the ledger.
func (a *Activities) SubmitRegistration(ctx context.Context, input SubmitRegistrationInput) (*SubmitRegistrationResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("SubmitRegistration", time.Since(start).Seconds())
		}
	}()

	if _, err := a.store.CreateRegistration(ctx, input.WalletAddress, input.Email); err != nil {
		if errors.Is(err, db.ErrAlreadyRegistered) {
			return nil, temporal.NewNonRetryableApplicationError("wallet already submitted a registration", "AlreadyRegistered", err)
		}
		return nil, fmt.Errorf("failed to record registration: %w", err)
	}

	txHash, err := a.ledgerClient.RegisterUserAccount(ctx, input.WalletAddress, input.Email)
	if err != nil {
		// Return the wallet to not_registered so a later attempt can retry.
		if _, markErr := a.store.MarkRegistrationStatus(ctx, input.WalletAddress, db.RegStatusNotRegistered); markErr != nil {
			a.logger.ErrorContext(ctx, "failed to roll back registration after ledger error",
				"wallet_address", input.WalletAddress,
				"error", markErr,
			)
		}
		return nil, fmt.Errorf("failed to register account on ledger: %w", err)
	}

	a.logger.InfoContext(ctx, "registration submitted",
		"wallet_address", input.WalletAddress,
		"tx_hash", txHash,
	)

	return &SubmitRegistrationResult{TxHash: txHash}, nil
}

// CheckRegistrationInput contains parameters for one confirmation poll.
type CheckRegistrationInput struct {
	WalletAddress string `json:"wallet_address"`
}

// CheckRegistrationResult reports whether the ledger confirmed the account.
type CheckRegistrationResult struct {
	Registered bool `json:"registered"`
}

// CheckRegistration asks the ledger whether the account registration has
// been confirmed. One poll per invocation; the workflow owns the cadence.
func (a *Activities) CheckRegistration(ctx context.Context, input CheckRegistrationInput) (*CheckRegistrationResult, error) {
	registered, err := a.ledgerClient.LoginUserAccount(ctx, input.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check registration: %w", err)
	}
	return &CheckRegistrationResult{Registered: registered}, nil
}

// MarkRegistrationInput contains parameters for recording a terminal
// registration outcome.
type MarkRegistrationInput struct {
	WalletAddress string `json:"wallet_address"`
	Status        string `json:"status"`
}

// MarkRegistration records the terminal registration outcome in the store.
func (a *Activities) MarkRegistration(ctx context.Context, input MarkRegistrationInput) error {
	if _, err := a.store.MarkRegistrationStatus(ctx, input.WalletAddress, input.Status); err != nil {
		return fmt.Errorf("failed to mark registration %s: %w", input.Status, err)
	}
	a.logger.InfoContext(ctx, "registration status recorded",
		"wallet_address", input.WalletAddress,
		"status", input.Status,
	)
	return nil
}
