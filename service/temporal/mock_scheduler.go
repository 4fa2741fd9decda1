package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockOrchestrator is a mock implementation of Orchestrator for testing.
type MockOrchestrator struct {
	mu           sync.Mutex
	settlements  map[string]SettlementInput // map[correlationID]
	signals      map[string][]PaymentCallbackSignal
	checkoutURLs map[string]string
	statuses     map[string]SettlementStatusSnapshot
	registering  map[string]RegistrationInput // map[walletAddress]
	defaultURL   string
	startErr     error
	signalErr    error
}

// NewMockOrchestrator creates a new MockOrchestrator.
func NewMockOrchestrator() *MockOrchestrator {
	return &MockOrchestrator{
		settlements:  make(map[string]SettlementInput),
		signals:      make(map[string][]PaymentCallbackSignal),
		checkoutURLs: make(map[string]string),
		statuses:     make(map[string]SettlementStatusSnapshot),
		registering:  make(map[string]RegistrationInput),
	}
}

// StartSettlement records that a settlement workflow was started.
func (m *MockOrchestrator) StartSettlement(ctx context.Context, input SettlementInput) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[input.CorrelationID] = input
	if m.defaultURL != "" {
		m.checkoutURLs[input.CorrelationID] = m.defaultURL
	}
	return nil
}

// SignalPaymentCallback records the delivered signal.
func (m *MockOrchestrator) SignalPaymentCallback(ctx context.Context, correlationID string, signal PaymentCallbackSignal) error {
	if m.signalErr != nil {
		return m.signalErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.settlements[correlationID]; !exists {
		return fmt.Errorf("settlement workflow %q not found", correlationID)
	}
	m.signals[correlationID] = append(m.signals[correlationID], signal)
	return nil
}

// QueryCheckoutURL returns the configured checkout URL for a correlation id.
func (m *MockOrchestrator) QueryCheckoutURL(ctx context.Context, correlationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.settlements[correlationID]; !exists {
		return "", fmt.Errorf("settlement workflow %q not found", correlationID)
	}
	return m.checkoutURLs[correlationID], nil
}

// QuerySettlementStatus returns the configured status for a correlation id.
// Without explicit configuration the snapshot reflects the checkout URL: the
// matching stage before a URL is set, awaiting_payment after.
func (m *MockOrchestrator) QuerySettlementStatus(ctx context.Context, correlationID string) (*SettlementStatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.settlements[correlationID]; !exists {
		return nil, fmt.Errorf("settlement workflow %q not found", correlationID)
	}
	if snapshot, ok := m.statuses[correlationID]; ok {
		copied := snapshot
		return &copied, nil
	}
	snapshot := SettlementStatusSnapshot{Stage: StageMatching}
	if url := m.checkoutURLs[correlationID]; url != "" {
		snapshot.Stage = StageAwaitingPayment
		snapshot.CheckoutURL = url
	}
	return &snapshot, nil
}

// SetSettlementStatus configures the status snapshot returned for a
// correlation id.
func (m *MockOrchestrator) SetSettlementStatus(correlationID string, snapshot SettlementStatusSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[correlationID] = snapshot
}

// StartRegistration records that a registration workflow was started.
func (m *MockOrchestrator) StartRegistration(ctx context.Context, input RegistrationInput) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.registering[input.WalletAddress] = input
	return nil
}

// CancelRegistration records that a registration workflow was cancelled.
func (m *MockOrchestrator) CancelRegistration(ctx context.Context, walletAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registering[walletAddress]; !exists {
		return fmt.Errorf("registration workflow for %q not found", walletAddress)
	}
	delete(m.registering, walletAddress)
	return nil
}

// SetStartError makes StartSettlement and StartRegistration return an error.
func (m *MockOrchestrator) SetStartError(err error) {
	m.startErr = err
}

// SetSignalError makes SignalPaymentCallback return an error.
func (m *MockOrchestrator) SetSignalError(err error) {
	m.signalErr = err
}

// SetDefaultCheckoutURL configures the checkout URL assigned to every
// settlement started after this call. Useful when the caller generates the
// correlation id.
func (m *MockOrchestrator) SetDefaultCheckoutURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultURL = url
}

// SetCheckoutURL configures the checkout URL returned for a correlation id.
func (m *MockOrchestrator) SetCheckoutURL(correlationID, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkoutURLs[correlationID] = url
}

// SettlementStarted checks if a settlement workflow was started.
func (m *MockOrchestrator) SettlementStarted(correlationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.settlements[correlationID]
	return exists
}

// StartedSettlements returns the inputs of every settlement workflow
// started so far.
func (m *MockOrchestrator) StartedSettlements() []SettlementInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	inputs := make([]SettlementInput, 0, len(m.settlements))
	for _, input := range m.settlements {
		inputs = append(inputs, input)
	}
	return inputs
}

// GetSignals returns the signals delivered for a correlation id.
func (m *MockOrchestrator) GetSignals(correlationID string) []PaymentCallbackSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	signals := make([]PaymentCallbackSignal, len(m.signals[correlationID]))
	copy(signals, m.signals[correlationID])
	return signals
}

// RegistrationStarted checks if a registration workflow was started.
func (m *MockOrchestrator) RegistrationStarted(walletAddress string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.registering[walletAddress]
	return exists
}

// Reset clears all recorded workflows and errors.
func (m *MockOrchestrator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements = make(map[string]SettlementInput)
	m.signals = make(map[string][]PaymentCallbackSignal)
	m.checkoutURLs = make(map[string]string)
	m.statuses = make(map[string]SettlementStatusSnapshot)
	m.registering = make(map[string]RegistrationInput)
	m.defaultURL = ""
	m.startErr = nil
	m.signalErr = nil
}

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	created   bool
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// CreateSweepSchedule records that the sweep schedule was created.
func (m *MockScheduler) CreateSweepSchedule(ctx context.Context, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	m.interval = interval
	return nil
}

// DeleteSweepSchedule records that the sweep schedule was deleted.
func (m *MockScheduler) DeleteSweepSchedule(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return fmt.Errorf("sweep schedule not found")
	}
	m.created = false
	return nil
}

// SetCreateError makes CreateSweepSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteSweepSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// ScheduleExists checks if the sweep schedule exists.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}
