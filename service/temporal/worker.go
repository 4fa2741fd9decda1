package temporal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/peerramp/peerramp/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Activity settings
	PublicURL                string
	ConfirmationPollInterval time.Duration

	// Dependencies
	Store        StoreInterface
	LedgerClient LedgerInterface
	Processor    ProcessorInterface
	Finder       FinderInterface
	Publisher    PublisherInterface
	Metrics      *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger       *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	// Create worker
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	// Register workflows
	w.RegisterWorkflow(OnRampSettlementWorkflow)
	w.RegisterWorkflow(RegistrationWorkflow)
	w.RegisterWorkflow(ReservationSweepWorkflow)
	logger.Info("registered workflows",
		"workflows", []string{"OnRampSettlementWorkflow", "RegistrationWorkflow", "ReservationSweepWorkflow"},
	)

	// Create activities instance with dependencies
	activities := NewActivities(
		config.Store,
		config.LedgerClient,
		config.Processor,
		config.Finder,
		config.Publisher,
		config.PublicURL,
		config.ConfirmationPollInterval,
		config.Metrics,
		logger,
	)

	// Register activities
	// Activities are registered by name, matching the ExecuteActivity calls in the workflows
	w.RegisterActivity(activities.FindAndClaimPeer)
	w.RegisterActivity(activities.CreateCheckout)
	w.RegisterActivity(activities.VerifyPayment)
	w.RegisterActivity(activities.SubmitOnRamp)
	w.RegisterActivity(activities.AwaitLedgerConfirmation)
	w.RegisterActivity(activities.ReleaseReservation)
	w.RegisterActivity(activities.PublishSettlementEvent)
	w.RegisterActivity(activities.SweepReservations)
	w.RegisterActivity(activities.SubmitRegistration)
	w.RegisterActivity(activities.CheckRegistration)
	w.RegisterActivity(activities.MarkRegistration)

	logger.Info("registered activities",
		"activities", []string{
			"FindAndClaimPeer", "CreateCheckout", "VerifyPayment",
			"SubmitOnRamp", "AwaitLedgerConfirmation", "ReleaseReservation",
			"PublishSettlementEvent", "SweepReservations",
			"SubmitRegistration", "CheckRegistration", "MarkRegistration",
		},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Start begins processing workflows and activities.
// This method blocks until Stop is called or an error occurs.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
