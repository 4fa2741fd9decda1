package temporal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/peerramp/peerramp/service/db"
	"github.com/peerramp/peerramp/service/ledger"
	"github.com/peerramp/peerramp/service/match"
	"github.com/peerramp/peerramp/service/processor"
)

// fakeStore is an in-memory StoreInterface for activity tests.
type fakeStore struct {
	mu            sync.Mutex
	records       map[string]*db.TransactionRecord // keyed by wallet+"/"+txHash
	captures      map[string]*db.PaymentAttempt
	registrations map[string]*db.Registration
	released      []string
	swept         int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:       make(map[string]*db.TransactionRecord),
		captures:      make(map[string]*db.PaymentAttempt),
		registrations: make(map[string]*db.Registration),
	}
}

func (f *fakeStore) CreateTransactionRecord(ctx context.Context, params db.CreateTransactionRecordParams) (*db.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &db.TransactionRecord{
		WalletAddress: params.WalletAddress,
		TxHash:        params.TxHash,
		Type:          params.Type,
		Status:        db.TxStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	f.records[params.WalletAddress+"/"+params.TxHash] = rec
	return rec, nil
}

func (f *fakeStore) UpdateTransactionStatus(ctx context.Context, walletAddress, txHash, newStatus string) (*db.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[walletAddress+"/"+txHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	if rec.Status != db.TxStatusPending {
		if rec.Status == newStatus {
			return rec, nil
		}
		return nil, db.ErrInvalidTransition
	}
	rec.Status = newStatus
	return rec, nil
}

func (f *fakeStore) Release(ctx context.Context, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, correlationID)
	return nil
}

func (f *fakeStore) AttachSettlementTx(ctx context.Context, correlationID, txHash string) error {
	return nil
}

func (f *fakeStore) SweepExpiredReservations(ctx context.Context) (int64, error) {
	return f.swept, nil
}

func (f *fakeStore) BeginPaymentCapture(ctx context.Context, correlationID, token, payerID string) (*db.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, exists := f.captures[correlationID]; exists {
		if existing.State == db.CaptureInProgress &&
			existing.Token != nil && *existing.Token == token &&
			existing.PayerID != nil && *existing.PayerID == payerID {
			return existing, nil
		}
		return nil, db.ErrDuplicateCallback
	}
	attempt := &db.PaymentAttempt{
		CorrelationID: correlationID,
		State:         db.CaptureInProgress,
		Token:         &token,
		PayerID:       &payerID,
	}
	f.captures[correlationID] = attempt
	return attempt, nil
}

func (f *fakeStore) FinishPaymentCapture(ctx context.Context, correlationID, outcome string) (*db.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.captures[correlationID]
	if !ok {
		return nil, db.ErrNotFound
	}
	attempt.State = db.CaptureDone
	attempt.Outcome = &outcome
	return attempt, nil
}

func (f *fakeStore) CreateRegistration(ctx context.Context, walletAddress, email string) (*db.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, exists := f.registrations[walletAddress]; exists && reg.Status != db.RegStatusNotRegistered {
		return nil, db.ErrAlreadyRegistered
	}
	reg := &db.Registration{WalletAddress: walletAddress, Email: email, Status: db.RegStatusPending}
	f.registrations[walletAddress] = reg
	return reg, nil
}

func (f *fakeStore) MarkRegistrationStatus(ctx context.Context, walletAddress, status string) (*db.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registrations[walletAddress]
	if !ok {
		return nil, db.ErrNotFound
	}
	reg.Status = status
	return reg, nil
}

// fakeLedger is a canned LedgerInterface for activity tests.
type fakeLedger struct {
	mu            sync.Mutex
	onRampCalls   int
	onRampErr     error
	txHash        string
	receipt       *ledger.Receipt
	registerHash  string
	registerErr   error
	loginResponse bool
	userEmail     string
	userEmailErr  error
}

func (f *fakeLedger) OnRamp(ctx context.Context, params ledger.OnRampParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRampCalls++
	if f.onRampErr != nil {
		return "", f.onRampErr
	}
	return f.txHash, nil
}

func (f *fakeLedger) GetTransactionReceipt(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeLedger) GetUserEmail(ctx context.Context, address string) (string, error) {
	if f.userEmailErr != nil {
		return "", f.userEmailErr
	}
	if f.userEmail != "" {
		return f.userEmail, nil
	}
	return "user@example.com", nil
}

func (f *fakeLedger) RegisterUserAccount(ctx context.Context, address, email string) (string, error) {
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return f.registerHash, nil
}

func (f *fakeLedger) LoginUserAccount(ctx context.Context, address string) (bool, error) {
	return f.loginResponse, nil
}

type fakeProcessor struct {
	verifyResult  *processor.Attestation
	verifyErr     error
	verifyErrOnce error // returned on the first call only
	verifyCalls   int
}

func (f *fakeProcessor) CreateCheckout(ctx context.Context, params processor.CheckoutParams) (*processor.CheckoutSession, error) {
	return &processor.CheckoutSession{URL: "https://pay.example.com/checkout/abc", ProcessorRef: "abc"}, nil
}

func (f *fakeProcessor) VerifyPayment(ctx context.Context, capture processor.Capture) (*processor.Attestation, error) {
	f.verifyCalls++
	if f.verifyCalls == 1 && f.verifyErrOnce != nil {
		return nil, f.verifyErrOnce
	}
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyResult, nil
}

type fakeFinder struct {
	match *match.Match
	err   error
}

func (f *fakeFinder) FindAndClaim(ctx context.Context, onRampAddress, correlationID string) (*match.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.match, nil
}

func newTestActivities(store *fakeStore, lc *fakeLedger, pc *fakeProcessor, finder *fakeFinder) *Activities {
	return NewActivities(store, lc, pc, finder, nil, "https://ramp.example.com", 10*time.Millisecond, nil, nil)
}

func TestSubmitOnRamp_RejectsUnverifiedAttestation(t *testing.T) {
	store := newFakeStore()
	lc := &fakeLedger{txHash: "0xdeadbeef"}
	acts := newTestActivities(store, lc, &fakeProcessor{}, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.SubmitOnRamp)

	_, err := env.ExecuteActivity(acts.SubmitOnRamp, SubmitOnRampInput{
		CorrelationID:  "corr-1",
		OnRampAddress:  testOnRampAddr,
		OffRampAddress: testOffRampAddr,
		Amount:         100.0,
		Attestation:    VerifyPaymentResult{Verified: false},
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UnverifiedAttestation", appErr.Type())

	// The ledger is never called for an unverified attestation.
	assert.Equal(t, 0, lc.onRampCalls)
	assert.Empty(t, store.records)
}

func TestSubmitOnRamp_CreatesRecordsForBothParticipants(t *testing.T) {
	store := newFakeStore()
	lc := &fakeLedger{txHash: "0xdeadbeef"}
	acts := newTestActivities(store, lc, &fakeProcessor{}, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.SubmitOnRamp)

	future, err := env.ExecuteActivity(acts.SubmitOnRamp, SubmitOnRampInput{
		CorrelationID:  "corr-1",
		OnRampAddress:  testOnRampAddr,
		OffRampAddress: testOffRampAddr,
		SenderEmail:    "onramper@example.com",
		ReceiverEmail:  "offramper@example.com",
		Amount:         100.0,
		Attestation: VerifyPaymentResult{
			Verified:          true,
			TransactionAmount: 100.0,
			Signature:         "sig",
			Timestamp:         "2026-08-29T00:00:00Z",
		},
	})
	require.NoError(t, err)

	var result SubmitOnRampResult
	require.NoError(t, future.Get(&result))
	assert.Equal(t, "0xdeadbeef", result.TxHash)

	onRampRec := store.records[testOnRampAddr+"/0xdeadbeef"]
	require.NotNil(t, onRampRec)
	assert.Equal(t, db.TxTypeOnRamp, onRampRec.Type)
	assert.Equal(t, db.TxStatusPending, onRampRec.Status)

	offRampRec := store.records[testOffRampAddr+"/0xdeadbeef"]
	require.NotNil(t, offRampRec)
	assert.Equal(t, db.TxTypeOffRamp, offRampRec.Type)
}

func TestSubmitOnRamp_RevertIsNonRetryable(t *testing.T) {
	store := newFakeStore()
	lc := &fakeLedger{onRampErr: &ledger.RevertError{Reason: "insufficient escrow balance"}}
	acts := newTestActivities(store, lc, &fakeProcessor{}, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.SubmitOnRamp)

	_, err := env.ExecuteActivity(acts.SubmitOnRamp, SubmitOnRampInput{
		CorrelationID:  "corr-1",
		OnRampAddress:  testOnRampAddr,
		OffRampAddress: testOffRampAddr,
		Amount:         100.0,
		Attestation:    VerifyPaymentResult{Verified: true},
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "LedgerRevert", appErr.Type())
	assert.Contains(t, appErr.Error(), "insufficient escrow balance")
}

func TestVerifyPayment_DuplicateCallbackIsSuppressed(t *testing.T) {
	store := newFakeStore()
	pc := &fakeProcessor{verifyResult: &processor.Attestation{
		Verified:          true,
		TransactionAmount: 100.0,
		Signature:         "sig",
		Timestamp:         "2026-08-29T00:00:00Z",
	}}
	acts := newTestActivities(store, &fakeLedger{}, pc, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.VerifyPayment)

	input := VerifyPaymentInput{CorrelationID: "corr-1", Token: "tok-1", PayerID: "payer-1"}

	future, err := env.ExecuteActivity(acts.VerifyPayment, input)
	require.NoError(t, err)
	var result VerifyPaymentResult
	require.NoError(t, future.Get(&result))
	assert.True(t, result.Verified)

	// Re-delivery of the same callback must not capture twice.
	_, err = env.ExecuteActivity(acts.VerifyPayment, input)
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DuplicateCallback", appErr.Type())
	assert.Equal(t, 1, pc.verifyCalls)
}

func TestVerifyPayment_UnverifiedRecordsFailedCapture(t *testing.T) {
	store := newFakeStore()
	pc := &fakeProcessor{verifyErr: processor.ErrCaptureUnverified}
	acts := newTestActivities(store, &fakeLedger{}, pc, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.VerifyPayment)

	_, err := env.ExecuteActivity(acts.VerifyPayment, VerifyPaymentInput{
		CorrelationID: "corr-1",
		Code:          "auth-code",
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CaptureUnverified", appErr.Type())

	attempt := store.captures["corr-1"]
	require.NotNil(t, attempt)
	assert.Equal(t, db.CaptureDone, attempt.State)
	require.NotNil(t, attempt.Outcome)
	assert.Equal(t, "failed", *attempt.Outcome)
}

func TestVerifyPayment_TransientErrorLeavesCaptureResumable(t *testing.T) {
	store := newFakeStore()
	pc := &fakeProcessor{
		verifyErrOnce: assert.AnError,
		verifyResult: &processor.Attestation{
			Verified:          true,
			TransactionAmount: 100.0,
			Signature:         "sig",
			Timestamp:         "2026-08-29T00:00:00Z",
		},
	}
	acts := newTestActivities(store, &fakeLedger{}, pc, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.VerifyPayment)

	input := VerifyPaymentInput{CorrelationID: "corr-1", Token: "tok-1", PayerID: "payer-1"}

	// The first attempt fails at the processor. The error must stay
	// retryable and the capture must stay in_progress.
	_, err := env.ExecuteActivity(acts.VerifyPayment, input)
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		assert.False(t, appErr.NonRetryable())
	}

	attempt := store.captures["corr-1"]
	require.NotNil(t, attempt)
	assert.Equal(t, db.CaptureInProgress, attempt.State)

	// The retry resumes the same capture and reaches the processor.
	future, err := env.ExecuteActivity(acts.VerifyPayment, input)
	require.NoError(t, err)
	var result VerifyPaymentResult
	require.NoError(t, future.Get(&result))
	assert.True(t, result.Verified)
	assert.Equal(t, 2, pc.verifyCalls)

	attempt = store.captures["corr-1"]
	assert.Equal(t, db.CaptureDone, attempt.State)
	require.NotNil(t, attempt.Outcome)
	assert.Equal(t, "success", *attempt.Outcome)
}

func TestFindAndClaimPeer_NoPeerIsNonRetryable(t *testing.T) {
	acts := newTestActivities(newFakeStore(), &fakeLedger{}, &fakeProcessor{}, &fakeFinder{err: match.ErrNoPeerAvailable})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.FindAndClaimPeer)

	_, err := env.ExecuteActivity(acts.FindAndClaimPeer, FindAndClaimPeerInput{
		OnRampAddress: testOnRampAddr,
		CorrelationID: "corr-1",
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NoPeerAvailable", appErr.Type())
}

func TestFindAndClaimPeer_UsesLedgerEmail(t *testing.T) {
	finder := &fakeFinder{match: &match.Match{
		OffRampAddress: testOffRampAddr,
		OffRampEmail:   "queued@example.com",
		AmountReserved: "100000000000000000000",
	}}
	lc := &fakeLedger{userEmail: "current@example.com"}
	acts := newTestActivities(newFakeStore(), lc, &fakeProcessor{}, finder)

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.FindAndClaimPeer)

	future, err := env.ExecuteActivity(acts.FindAndClaimPeer, FindAndClaimPeerInput{
		OnRampAddress: testOnRampAddr,
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)

	var result FindAndClaimPeerResult
	require.NoError(t, future.Get(&result))
	assert.Equal(t, "current@example.com", result.OffRampEmail)
}

func TestFindAndClaimPeer_FallsBackToQueuedEmail(t *testing.T) {
	finder := &fakeFinder{match: &match.Match{
		OffRampAddress: testOffRampAddr,
		OffRampEmail:   "queued@example.com",
		AmountReserved: "100000000000000000000",
	}}
	lc := &fakeLedger{userEmailErr: assert.AnError}
	acts := newTestActivities(newFakeStore(), lc, &fakeProcessor{}, finder)

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.FindAndClaimPeer)

	future, err := env.ExecuteActivity(acts.FindAndClaimPeer, FindAndClaimPeerInput{
		OnRampAddress: testOnRampAddr,
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)

	var result FindAndClaimPeerResult
	require.NoError(t, future.Get(&result))
	assert.Equal(t, "queued@example.com", result.OffRampEmail)
}

func TestAwaitLedgerConfirmation_FailedReceiptMarksBothRecords(t *testing.T) {
	store := newFakeStore()
	store.records[testOnRampAddr+"/0xdeadbeef"] = &db.TransactionRecord{
		WalletAddress: testOnRampAddr, TxHash: "0xdeadbeef", Type: db.TxTypeOnRamp, Status: db.TxStatusPending,
	}
	store.records[testOffRampAddr+"/0xdeadbeef"] = &db.TransactionRecord{
		WalletAddress: testOffRampAddr, TxHash: "0xdeadbeef", Type: db.TxTypeOffRamp, Status: db.TxStatusPending,
	}

	reason := "transfer rejected"
	lc := &fakeLedger{receipt: &ledger.Receipt{
		TxHash:       "0xdeadbeef",
		Status:       ledger.ReceiptStatusFailed,
		RevertReason: &reason,
	}}
	acts := newTestActivities(store, lc, &fakeProcessor{}, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.AwaitLedgerConfirmation)

	future, err := env.ExecuteActivity(acts.AwaitLedgerConfirmation, AwaitLedgerConfirmationInput{
		TxHash:         "0xdeadbeef",
		OnRampAddress:  testOnRampAddr,
		OffRampAddress: testOffRampAddr,
	})
	require.NoError(t, err)

	var result AwaitLedgerConfirmationResult
	require.NoError(t, future.Get(&result))
	assert.Equal(t, db.TxStatusFailed, result.Status)
	require.NotNil(t, result.RevertReason)
	assert.Equal(t, "transfer rejected", *result.RevertReason)

	assert.Equal(t, db.TxStatusFailed, store.records[testOnRampAddr+"/0xdeadbeef"].Status)
	assert.Equal(t, db.TxStatusFailed, store.records[testOffRampAddr+"/0xdeadbeef"].Status)
}

func TestSubmitRegistration_RollsBackOnLedgerError(t *testing.T) {
	store := newFakeStore()
	lc := &fakeLedger{registerErr: assert.AnError}
	acts := newTestActivities(store, lc, &fakeProcessor{}, &fakeFinder{})

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.SubmitRegistration)

	_, err := env.ExecuteActivity(acts.SubmitRegistration, SubmitRegistrationInput{
		WalletAddress: testOnRampAddr,
		Email:         "user@example.com",
	})
	require.Error(t, err)

	reg := store.registrations[testOnRampAddr]
	require.NotNil(t, reg)
	assert.Equal(t, db.RegStatusNotRegistered, reg.Status)
}
