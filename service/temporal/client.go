package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// SettlementWorkflowName is the registered name of the settlement workflow.
const SettlementWorkflowName = "OnRampSettlementWorkflow"

// RegistrationWorkflowName is the registered name of the registration workflow.
const RegistrationWorkflowName = "RegistrationWorkflow"

// PaymentCallbackSignalName is the signal carrying redirect callback
// parameters into a running settlement workflow.
const PaymentCallbackSignalName = "payment-callback"

// CheckoutURLQueryName is the query exposing the checkout URL of a running
// settlement workflow.
const CheckoutURLQueryName = "checkout-url"

// SettlementStatusQueryName is the query exposing the current stage of a
// running settlement workflow.
const SettlementStatusQueryName = "settlement-status"

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartSettlement starts a settlement workflow for one on-ramp attempt.
// The workflow id is the correlation id, so a retried start of the same
// attempt attaches to the running workflow instead of creating a second one.
func (c *Client) StartSettlement(ctx context.Context, input SettlementInput) error {
	c.logger.Debug("starting settlement workflow",
		"correlation_id", input.CorrelationID,
		"on_ramp_address", input.OnRampAddress,
		"amount", input.Amount,
	)

	opts := client.StartWorkflowOptions{
		ID:        settlementWorkflowID(input.CorrelationID),
		TaskQueue: c.taskQueue,
	}
	// SETTLEMENT_TIMEOUT bounds the whole attempt, payment wait included.
	if input.SettlementTimeout > 0 {
		opts.WorkflowExecutionTimeout = input.SettlementTimeout
	}

	_, err := c.client.ExecuteWorkflow(ctx, opts, SettlementWorkflowName, input)
	if err != nil {
		return fmt.Errorf("failed to start settlement workflow %q: %w", input.CorrelationID, err)
	}

	c.logger.Info("settlement workflow started",
		"correlation_id", input.CorrelationID,
		"on_ramp_address", input.OnRampAddress,
	)
	return nil
}

// SignalPaymentCallback delivers redirect callback parameters to the
// settlement workflow for the correlation id.
func (c *Client) SignalPaymentCallback(ctx context.Context, correlationID string, signal PaymentCallbackSignal) error {
	err := c.client.SignalWorkflow(ctx, settlementWorkflowID(correlationID), "", PaymentCallbackSignalName, signal)
	if err != nil {
		return fmt.Errorf("failed to signal settlement workflow %q: %w", correlationID, err)
	}
	return nil
}

// QueryCheckoutURL returns the checkout URL of a running settlement workflow,
// or an empty string if the checkout has not been created yet.
func (c *Client) QueryCheckoutURL(ctx context.Context, correlationID string) (string, error) {
	resp, err := c.client.QueryWorkflow(ctx, settlementWorkflowID(correlationID), "", CheckoutURLQueryName)
	if err != nil {
		return "", fmt.Errorf("failed to query settlement workflow %q: %w", correlationID, err)
	}
	var url string
	if err := resp.Get(&url); err != nil {
		return "", fmt.Errorf("failed to decode checkout URL: %w", err)
	}
	return url, nil
}

// QuerySettlementStatus returns the current stage of a settlement workflow.
// Works on completed workflows too: queries are answered from history.
func (c *Client) QuerySettlementStatus(ctx context.Context, correlationID string) (*SettlementStatusSnapshot, error) {
	resp, err := c.client.QueryWorkflow(ctx, settlementWorkflowID(correlationID), "", SettlementStatusQueryName)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement workflow %q: %w", correlationID, err)
	}
	var snapshot SettlementStatusSnapshot
	if err := resp.Get(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode settlement status: %w", err)
	}
	return &snapshot, nil
}

// GetSettlementResult blocks until the settlement workflow completes and
// returns its result.
func (c *Client) GetSettlementResult(ctx context.Context, correlationID string) (*SettlementResult, error) {
	run := c.client.GetWorkflow(ctx, settlementWorkflowID(correlationID), "")
	var result SettlementResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("settlement workflow %q failed: %w", correlationID, err)
	}
	return &result, nil
}

// StartRegistration starts a registration workflow for a wallet. The workflow
// id is derived from the wallet address, so a duplicate submission attaches
// to the running workflow instead of registering twice.
func (c *Client) StartRegistration(ctx context.Context, input RegistrationInput) error {
	c.logger.Debug("starting registration workflow",
		"wallet_address", input.WalletAddress,
	)

	_, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        registrationWorkflowID(input.WalletAddress),
		TaskQueue: c.taskQueue,
	}, RegistrationWorkflowName, input)
	if err != nil {
		return fmt.Errorf("failed to start registration workflow for %q: %w", input.WalletAddress, err)
	}

	c.logger.Info("registration workflow started", "wallet_address", input.WalletAddress)
	return nil
}

// CancelRegistration cancels a running registration workflow, stopping its
// confirmation polling.
func (c *Client) CancelRegistration(ctx context.Context, walletAddress string) error {
	err := c.client.CancelWorkflow(ctx, registrationWorkflowID(walletAddress), "")
	if err != nil {
		return fmt.Errorf("failed to cancel registration workflow for %q: %w", walletAddress, err)
	}
	return nil
}

// CreateSweepSchedule creates the Temporal schedule that periodically removes
// expired reservations. Creating an already-existing schedule is not an
// error.
func (c *Client) CreateSweepSchedule(ctx context.Context, interval time.Duration) error {
	c.logger.Debug("creating reservation sweep schedule",
		"schedule_id", sweepScheduleID,
		"interval", interval,
	)

	scheduleSpec := client.ScheduleSpec{
		Intervals: []client.ScheduleIntervalSpec{
			{Every: interval},
		},
	}

	workflowAction := client.ScheduleWorkflowAction{
		ID:        "sweep-reservations",
		Workflow:  "ReservationSweepWorkflow",
		TaskQueue: c.taskQueue,
	}

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:     sweepScheduleID,
		Spec:   scheduleSpec,
		Action: &workflowAction,
		Memo: map[string]interface{}{
			"created_by": "peerramp",
		},
	})
	if err != nil {
		// A schedule left over from a previous run is fine.
		handle := c.client.ScheduleClient().GetHandle(ctx, sweepScheduleID)
		if _, descErr := handle.Describe(ctx); descErr == nil {
			c.logger.Debug("reservation sweep schedule already exists", "schedule_id", sweepScheduleID)
			return nil
		}
		c.logger.Error("failed to create sweep schedule",
			"schedule_id", sweepScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", sweepScheduleID, err)
	}

	c.logger.Info("reservation sweep schedule created",
		"schedule_id", sweepScheduleID,
		"interval", interval,
	)
	return nil
}

// DeleteSweepSchedule deletes the reservation sweep schedule.
func (c *Client) DeleteSweepSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, sweepScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete sweep schedule",
			"schedule_id", sweepScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", sweepScheduleID, err)
	}

	c.logger.Info("reservation sweep schedule deleted", "schedule_id", sweepScheduleID)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

const sweepScheduleID = "sweep-expired-reservations"

// settlementWorkflowID derives the workflow id for a settlement attempt.
func settlementWorkflowID(correlationID string) string {
	return "settle-" + correlationID
}

// registrationWorkflowID derives the workflow id for a wallet registration.
func registrationWorkflowID(walletAddress string) string {
	return "register-" + walletAddress
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
