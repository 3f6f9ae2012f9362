package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"github.com/stanstork/stratum-replicator/internal/temporal/activities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

var (
	inst = temporal.InstanceRef{
		InstanceID: "p1@3",
		PolicyID:   "p1",
		PolicyName: "sales",
		Type:       models.ReplicationTypeHive,
		StartTime:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	exportStage = models.JobDetails{Identifier: "sales-HIVE", Name: "sales", Type: models.ReplicationTypeHive, Properties: map[string]string{"actionType": "EXPORT"}}
	importStage = models.JobDetails{Identifier: "sales-HIVE", Name: "sales", Type: models.ReplicationTypeHive, Properties: map[string]string{"actionType": "IMPORT"}}
	params      = temporal.WorkflowParams{PolicyName: "sales", InstanceSeq: 3}
)

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *activities.Activities) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	a := &activities.Activities{}
	env.RegisterActivity(a)
	env.RegisterWorkflow(ReplicationWorkflow)
	t.Cleanup(func() { env.AssertExpectations(t) })
	return env, a
}

func completedWith(status job.Status) interface{} {
	return mock.MatchedBy(func(in temporal.CompleteInput) bool {
		return in.Status == status && in.Instance.InstanceID == inst.InstanceID
	})
}

func TestWorkflowRunsStagesInOrder(t *testing.T) {
	env, a := newEnv(t)

	env.OnActivity(a.CreateInstanceActivity, mock.Anything, params).Return(&inst, nil)
	env.OnActivity(a.BuildJobsActivity, mock.Anything, mock.Anything).
		Return(&temporal.BuildResult{Stages: []models.JobDetails{exportStage, importStage}, Retry: models.Retry{Attempts: 2, Delay: 5}}, nil)
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.MatchedBy(func(in temporal.StageInput) bool {
		return in.Offset == 0 && len(in.State) == 0
	})).Return(&temporal.StageResult{
		Details: job.ExecutionDetails{Status: job.StatusSuccess},
		State:   []byte(`{"dumpDirectory":"hdfs://nn1/dump/1"}`),
	}, nil).Once()
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.MatchedBy(func(in temporal.StageInput) bool {
		return in.Offset == 1 && string(in.State) == `{"dumpDirectory":"hdfs://nn1/dump/1"}`
	})).Return(&temporal.StageResult{Details: job.ExecutionDetails{Status: job.StatusSuccess}}, nil).Once()
	env.OnActivity(a.CompleteInstanceActivity, mock.Anything, completedWith(job.StatusSuccess)).Return(nil).Once()

	env.ExecuteWorkflow(ReplicationWorkflow, params)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var res temporal.WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, job.StatusSuccess, res.Status)
	assert.Equal(t, "p1@3", res.InstanceID)
}

func TestWorkflowIgnoredStopsChain(t *testing.T) {
	env, a := newEnv(t)

	env.OnActivity(a.CreateInstanceActivity, mock.Anything, params).Return(&inst, nil)
	env.OnActivity(a.BuildJobsActivity, mock.Anything, mock.Anything).
		Return(&temporal.BuildResult{Stages: []models.JobDetails{exportStage, importStage}}, nil)
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.Anything).Return(&temporal.StageResult{
		Details: job.ExecutionDetails{Status: job.StatusIgnored, Message: "Current Repl event id must be greater than last repl event id"},
	}, nil).Once()
	env.OnActivity(a.CompleteInstanceActivity, mock.Anything, completedWith(job.StatusIgnored)).Return(nil).Once()

	env.ExecuteWorkflow(ReplicationWorkflow, params)

	require.NoError(t, env.GetWorkflowError())
	var res temporal.WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, job.StatusIgnored, res.Status)
}

func TestWorkflowConfigErrorFailsWithoutStages(t *testing.T) {
	env, a := newEnv(t)

	env.OnActivity(a.CreateInstanceActivity, mock.Anything, params).Return(&inst, nil)
	env.OnActivity(a.BuildJobsActivity, mock.Anything, mock.Anything).
		Return(nil, sdktemporal.NewNonRetryableApplicationError("missing required property: sourceDir", temporal.ConfigErrorType, nil)).Once()
	env.OnActivity(a.CompleteInstanceActivity, mock.Anything, mock.MatchedBy(func(in temporal.CompleteInput) bool {
		return in.Status == job.StatusFailed && in.Message == "missing required property: sourceDir"
	})).Return(nil).Once()

	env.ExecuteWorkflow(ReplicationWorkflow, params)

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestWorkflowStageFailureRecordsMessage(t *testing.T) {
	env, a := newEnv(t)

	env.OnActivity(a.CreateInstanceActivity, mock.Anything, params).Return(&inst, nil)
	env.OnActivity(a.BuildJobsActivity, mock.Anything, mock.Anything).
		Return(&temporal.BuildResult{Stages: []models.JobDetails{exportStage, importStage}, Retry: models.Retry{Attempts: 1, Delay: 1}}, nil)
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.Anything).
		Return(nil, sdktemporal.NewApplicationError("beeline failed (2): connection refused", temporal.StageErrorType))
	env.OnActivity(a.CompleteInstanceActivity, mock.Anything, mock.MatchedBy(func(in temporal.CompleteInput) bool {
		return in.Status == job.StatusFailed && in.Message == "beeline failed (2): connection refused"
	})).Return(nil).Once()

	env.ExecuteWorkflow(ReplicationWorkflow, params)

	assert.Error(t, env.GetWorkflowError())
}

func TestWorkflowCreateInstanceFailure(t *testing.T) {
	env, a := newEnv(t)

	env.OnActivity(a.CreateInstanceActivity, mock.Anything, params).
		Return(nil, sdktemporal.NewNonRetryableApplicationError("policy sales not found", "PolicyNotFound", nil))

	env.ExecuteWorkflow(ReplicationWorkflow, params)

	assert.Error(t, env.GetWorkflowError())
}

func TestStageOptions(t *testing.T) {
	opts := stageOptions(models.Retry{Attempts: 4, Delay: 60})
	assert.Equal(t, int32(4), opts.RetryPolicy.MaximumAttempts)
	assert.Equal(t, time.Minute, opts.RetryPolicy.InitialInterval)
	assert.Equal(t, 1.0, opts.RetryPolicy.BackoffCoefficient)
	assert.Equal(t, []string{temporal.ConfigErrorType}, opts.RetryPolicy.NonRetryableErrorTypes)
	assert.True(t, opts.WaitForCancellation)

	defaults := stageOptions(models.Retry{})
	assert.Equal(t, int32(models.DefaultRetryAttempts), defaults.RetryPolicy.MaximumAttempts)
}

func TestOutcome(t *testing.T) {
	status, msg := outcome(errors.New("boom"), true)
	assert.Equal(t, job.StatusKilled, status)
	assert.Equal(t, "interrupted", msg)

	status, _ = outcome(sdktemporal.NewCanceledError(), false)
	assert.Equal(t, job.StatusKilled, status)

	status, msg = outcome(sdktemporal.NewApplicationError("distcp failed (1): boom", temporal.StageErrorType), false)
	assert.Equal(t, job.StatusFailed, status)
	assert.Equal(t, "distcp failed (1): boom", msg)
}
