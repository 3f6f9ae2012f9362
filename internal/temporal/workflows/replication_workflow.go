package workflows

import (
	"errors"
	"time"

	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"github.com/stanstork/stratum-replicator/internal/temporal/activities"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ReplicationWorkflow runs one instance of a policy: it records the
// instance, builds the job stages and runs them in order, then records the
// outcome. An IGNORED stage ends the chain without running later stages.
func ReplicationWorkflow(ctx workflow.Context, params temporal.WorkflowParams) (*temporal.WorkflowResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting replication workflow", "policy", params.PolicyName, "sequence", params.InstanceSeq)

	var a *activities.Activities

	var inst temporal.InstanceRef
	if err := workflow.ExecuteActivity(ctx, a.CreateInstanceActivity, params).Get(ctx, &inst); err != nil {
		logger.Error("Failed to create instance record.", "error", err)
		return nil, err
	}

	var plan temporal.BuildResult
	if err := workflow.ExecuteActivity(ctx, a.BuildJobsActivity, inst).Get(ctx, &plan); err != nil {
		logger.Error("Failed to build job stages.", "error", err)
		status, msg := outcome(err, ctx.Err() != nil)
		return complete(ctx, a, inst, status, msg, err)
	}

	stageCtx := workflow.WithActivityOptions(ctx, stageOptions(plan.Retry))
	var state []byte
	for i, stage := range plan.Stages {
		var res temporal.StageResult
		err := workflow.ExecuteActivity(stageCtx, a.RunStageActivity, temporal.StageInput{
			InstanceID: inst.InstanceID,
			PolicyName: inst.PolicyName,
			Offset:     i,
			Stage:      stage,
			State:      state,
		}).Get(stageCtx, &res)
		if err != nil {
			logger.Error("Job stage failed.", "stage", stage.Identifier, "error", err)
			status, msg := outcome(err, ctx.Err() != nil)
			return complete(ctx, a, inst, status, msg, err)
		}
		state = res.State

		if res.Details.Status == job.StatusIgnored {
			logger.Info("Nothing to replicate, skipping remaining stages.", "stage", stage.Identifier)
			return complete(ctx, a, inst, job.StatusIgnored, res.Details.Message, nil)
		}
	}

	return complete(ctx, a, inst, job.StatusSuccess, "", nil)
}

// stageOptions maps the policy retry settings onto the stage activity.
func stageOptions(retry models.Retry) workflow.ActivityOptions {
	retry = retry.WithDefaults()
	delay := time.Duration(retry.Delay) * time.Second
	return workflow.ActivityOptions{
		StartToCloseTimeout: temporal.StageTimeout,
		HeartbeatTimeout:    temporal.HeartbeatTimeout,
		WaitForCancellation: true,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:        delay,
			BackoffCoefficient:     1,
			MaximumInterval:        delay,
			MaximumAttempts:        int32(retry.Attempts),
			NonRetryableErrorTypes: []string{temporal.ConfigErrorType},
		},
	}
}

// outcome classifies a failed activity into the final instance status.
func outcome(err error, cancelled bool) (job.Status, string) {
	if cancelled || sdktemporal.IsCanceledError(err) {
		return job.StatusKilled, job.ErrInterrupted.Error()
	}
	var appErr *sdktemporal.ApplicationError
	if errors.As(err, &appErr) {
		return job.StatusFailed, appErr.Error()
	}
	return job.StatusFailed, err.Error()
}

// complete records the outcome. After cancellation it runs on a
// disconnected context so the record is still written.
func complete(ctx workflow.Context, a *activities.Activities, inst temporal.InstanceRef, status job.Status, msg string, cause error) (*temporal.WorkflowResult, error) {
	result := &temporal.WorkflowResult{InstanceID: inst.InstanceID, Status: status, Message: msg}

	cancelled := ctx.Err() != nil
	if cancelled {
		ctx, _ = workflow.NewDisconnectedContext(ctx)
	}
	in := temporal.CompleteInput{Instance: inst, Status: status, Message: msg}
	if err := workflow.ExecuteActivity(ctx, a.CompleteInstanceActivity, in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to complete instance record.", "instance", inst.InstanceID, "error", err)
		return result, err
	}

	if cancelled {
		return result, workflow.ErrCanceled
	}
	if status == job.StatusFailed {
		return result, cause
	}
	return result, nil
}
