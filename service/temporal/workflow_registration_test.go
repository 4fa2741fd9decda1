package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registrationTestInput() RegistrationInput {
	return RegistrationInput{
		WalletAddress: testOnRampAddr,
		Email:         "user@example.com",
		PollInterval:  15 * time.Second,
		PollTimeout:   10 * time.Minute,
	}
}

func registerRegistrationActivities(env *testsuite.TestWorkflowEnvironment) {
	var acts *Activities
	env.RegisterActivity(acts.SubmitRegistration)
	env.RegisterActivity(acts.CheckRegistration)
	env.RegisterActivity(acts.MarkRegistration)
}

func TestRegistrationWorkflow_ConfirmedAfterPolling(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	registerRegistrationActivities(env)

	env.OnActivity("SubmitRegistration", mock.Anything, mock.Anything).Return(&SubmitRegistrationResult{
		TxHash: "0xreg",
	}, nil).Once()
	// Unconfirmed on the first two polls, confirmed on the third.
	env.OnActivity("CheckRegistration", mock.Anything, mock.Anything).Return(&CheckRegistrationResult{Registered: false}, nil).Twice()
	env.OnActivity("CheckRegistration", mock.Anything, mock.Anything).Return(&CheckRegistrationResult{Registered: true}, nil).Once()
	env.OnActivity("MarkRegistration", mock.Anything, MarkRegistrationInput{
		WalletAddress: testOnRampAddr,
		Status:        "registered",
	}).Return(nil).Once()

	env.ExecuteWorkflow(RegistrationWorkflow, registrationTestInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RegistrationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "registered", result.Status)
	assert.Equal(t, "0xreg", result.TxHash)
	assert.Nil(t, result.Error)

	env.AssertExpectations(t)
}

func TestRegistrationWorkflow_DuplicateSubmission(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	registerRegistrationActivities(env)

	env.OnActivity("SubmitRegistration", mock.Anything, mock.Anything).Return(nil,
		temporal.NewNonRetryableApplicationError("wallet already submitted a registration", "AlreadyRegistered", errors.New("duplicate")))

	env.ExecuteWorkflow(RegistrationWorkflow, registrationTestInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RegistrationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "not_registered", result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "submission failed")

	env.AssertNotCalled(t, "CheckRegistration", mock.Anything, mock.Anything)
}

func TestRegistrationWorkflow_TimeoutReturnsToNotRegistered(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	registerRegistrationActivities(env)

	env.OnActivity("SubmitRegistration", mock.Anything, mock.Anything).Return(&SubmitRegistrationResult{
		TxHash: "0xreg",
	}, nil)
	// The ledger never confirms.
	env.OnActivity("CheckRegistration", mock.Anything, mock.Anything).Return(&CheckRegistrationResult{Registered: false}, nil)
	env.OnActivity("MarkRegistration", mock.Anything, MarkRegistrationInput{
		WalletAddress: testOnRampAddr,
		Status:        "not_registered",
	}).Return(nil).Once()

	env.ExecuteWorkflow(RegistrationWorkflow, registrationTestInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RegistrationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "not_registered", result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "not confirmed")

	env.AssertExpectations(t)
}

func TestReservationSweepWorkflow(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	var acts *Activities
	env.RegisterActivity(acts.SweepReservations)

	env.OnActivity("SweepReservations", mock.Anything).Return(&SweepReservationsResult{Swept: 3}, nil)

	env.ExecuteWorkflow(ReservationSweepWorkflow)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SweepReservationsResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, int64(3), result.Swept)
}
