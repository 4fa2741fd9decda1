package temporal

import (
	"fmt"
	"time"

	"github.com/peerramp/peerramp/service/db"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RegistrationInput contains input for the registration workflow.
type RegistrationInput struct {
	WalletAddress string        `json:"wallet_address"`
	Email         string        `json:"email"`
	PollInterval  time.Duration `json:"poll_interval"`
	PollTimeout   time.Duration `json:"poll_timeout"`
}

// RegistrationResult contains the terminal state of a registration attempt.
type RegistrationResult struct {
	WalletAddress string  `json:"wallet_address"`
	TxHash        string  `json:"tx_hash,omitempty"`
	Status        string  `json:"status"` // "registered" or "not_registered"
	Error         *string `json:"error,omitempty"`
}

// RegistrationWorkflow submits an account registration to the ledger and
// polls for its confirmation. The workflow owns the polling: cancelling the
// workflow stops the poll, and the interval changes take effect on the next
// registration rather than mid-flight.
func RegistrationWorkflow(ctx workflow.Context, input RegistrationInput) (*RegistrationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("RegistrationWorkflow started",
		"wallet_address", input.WalletAddress,
	)

	result := &RegistrationResult{
		WalletAddress: input.WalletAddress,
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

	// Step 1: Submit the registration.
	var submission *SubmitRegistrationResult
	err := workflow.ExecuteActivity(ctx, a.SubmitRegistration, SubmitRegistrationInput{
		WalletAddress: input.WalletAddress,
		Email:         input.Email,
	}).Get(ctx, &submission)
	if err != nil {
		logger.Error("registration submission failed", "error", err)
		errMsg := fmt.Sprintf("registration submission failed: %v", err)
		result.Error = &errMsg
		result.Status = db.RegStatusNotRegistered
		return result, nil
	}
	result.TxHash = submission.TxHash

	// Step 2: Poll the ledger until it confirms the account or the timeout
	// elapses. One CheckRegistration activity per tick.
	deadline := workflow.Now(ctx).Add(input.PollTimeout)
	for workflow.Now(ctx).Before(deadline) {
		if err := workflow.Sleep(ctx, input.PollInterval); err != nil {
			// Workflow cancelled; the registration stays pending in the
			// store and a later attempt can resume it.
			return result, err
		}

		var check *CheckRegistrationResult
		err := workflow.ExecuteActivity(ctx, a.CheckRegistration, CheckRegistrationInput{
			WalletAddress: input.WalletAddress,
		}).Get(ctx, &check)
		if err != nil {
			logger.Warn("registration poll failed, will retry", "error", err)
			continue
		}
		if !check.Registered {
			continue
		}

		// Step 3: Record the confirmation.
		err = workflow.ExecuteActivity(ctx, a.MarkRegistration, MarkRegistrationInput{
			WalletAddress: input.WalletAddress,
			Status:        db.RegStatusRegistered,
		}).Get(ctx, nil)
		if err != nil {
			logger.Error("failed to record registration confirmation", "error", err)
			errMsg := fmt.Sprintf("failed to record confirmation: %v", err)
			result.Error = &errMsg
			result.Status = db.RegStatusNotRegistered
			return result, nil
		}

		result.Status = db.RegStatusRegistered
		logger.Info("RegistrationWorkflow completed",
			"wallet_address", input.WalletAddress,
		)
		return result, nil
	}

	// Timed out: return the wallet to not_registered so it can resubmit.
	logger.Warn("registration confirmation timed out", "wallet_address", input.WalletAddress)
	err = workflow.ExecuteActivity(ctx, a.MarkRegistration, MarkRegistrationInput{
		WalletAddress: input.WalletAddress,
		Status:        db.RegStatusNotRegistered,
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("failed to record registration timeout", "error", err)
	}

	errMsg := "registration was not confirmed before the timeout"
	result.Error = &errMsg
	result.Status = db.RegStatusNotRegistered
	return result, nil
}

// ReservationSweepWorkflow removes expired reservations. It runs on a
// Temporal schedule and is a thin wrapper over the sweep activity.
func ReservationSweepWorkflow(ctx workflow.Context) (*SweepReservationsResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var result *SweepReservationsResult
	if err := workflow.ExecuteActivity(ctx, a.SweepReservations).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to sweep reservations: %w", err)
	}
	return result, nil
}
