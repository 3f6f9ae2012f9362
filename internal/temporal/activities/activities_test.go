package activities

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stanstork/stratum-replicator/internal/repository"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePolicies struct {
	repository.PolicyRepository
	policies map[string]models.Policy
}

func (f *fakePolicies) Get(_ context.Context, name string) (models.Policy, error) {
	p, ok := f.policies[name]
	if !ok {
		return models.Policy{}, repository.ErrNotFound
	}
	return p, nil
}

type progressUpdate struct {
	offset   int
	tracking map[string]int64
	state    string
}

type fakeInstances struct {
	repository.InstanceRepository
	created   []models.PolicyInstance
	updates   []progressUpdate
	completed map[string]string
	messages  map[string]string
}

func (f *fakeInstances) Create(_ context.Context, inst models.PolicyInstance) (models.PolicyInstance, error) {
	f.created = append(f.created, inst)
	return inst, nil
}

func (f *fakeInstances) UpdateProgress(_ context.Context, _ string, offset int, tracking map[string]int64, state json.RawMessage) error {
	f.updates = append(f.updates, progressUpdate{offset: offset, tracking: tracking, state: string(state)})
	return nil
}

func (f *fakeInstances) Complete(_ context.Context, id, status, message string, _ time.Time) error {
	if f.completed == nil {
		f.completed = map[string]string{}
		f.messages = map[string]string{}
	}
	f.completed[id] = status
	f.messages[id] = message
	return nil
}

type fakeNotifier struct {
	started   []string
	completed []job.Status
}

func (n *fakeNotifier) NotifyInstanceStarted(_ context.Context, _, instanceID string) error {
	n.started = append(n.started, instanceID)
	return nil
}

func (n *fakeNotifier) NotifyInstanceCompleted(_ context.Context, _, _ string, status job.Status, _ string) error {
	n.completed = append(n.completed, status)
	return nil
}

type builderFunc func(ctx context.Context, p models.Policy) ([]models.JobDetails, error)

func (f builderFunc) Build(ctx context.Context, p models.Policy) ([]models.JobDetails, error) {
	return f(ctx, p)
}

type factoryFunc func(d models.JobDetails) (job.Job, error)

func (f factoryFunc) New(d models.JobDetails) (job.Job, error) { return f(d) }

type stubJob struct {
	perform func(ctx context.Context, jc *job.Context) error
}

func (s *stubJob) Init(context.Context, *job.Context) error    { return nil }
func (s *stubJob) Cleanup(context.Context, *job.Context) error { return nil }
func (s *stubJob) Perform(ctx context.Context, jc *job.Context) error {
	return s.perform(ctx, jc)
}
func (s *stubJob) Recover(ctx context.Context, jc *job.Context) error {
	return s.perform(ctx, jc)
}

func newActivities(j job.Job) (*Activities, *fakeInstances, *fakeNotifier) {
	instances := &fakeInstances{}
	notifier := &fakeNotifier{}
	a := &Activities{
		Policies: &fakePolicies{policies: map[string]models.Policy{
			"daily": {ID: "p1", Name: "daily", Type: models.ReplicationTypeFS, Retry: models.Retry{Attempts: 2}},
		}},
		Instances: instances,
		Builder: builderFunc(func(context.Context, models.Policy) ([]models.JobDetails, error) {
			return nil, &jobbuilder.MissingPropertyError{Key: "sourceDir"}
		}),
		Factory:  factoryFunc(func(models.JobDetails) (job.Job, error) { return j, nil }),
		Notifier: notifier,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return now },
	}
	return a, instances, notifier
}

func activityEnv(a *Activities) *testsuite.TestActivityEnvironment {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(a)
	return env
}

func TestCreateInstanceActivity(t *testing.T) {
	a, instances, notifier := newActivities(nil)
	env := activityEnv(a)

	val, err := env.ExecuteActivity(a.CreateInstanceActivity, temporal.WorkflowParams{PolicyName: "daily", InstanceSeq: 3})
	require.NoError(t, err)

	var ref temporal.InstanceRef
	require.NoError(t, val.Get(&ref))
	assert.Equal(t, "p1@3", ref.InstanceID)
	assert.Equal(t, models.ReplicationTypeFS, ref.Type)
	require.Len(t, instances.created, 1)
	assert.Equal(t, "RUNNING", instances.created[0].Status)
	assert.Equal(t, []string{"p1@3"}, notifier.started)
}

func TestCreateInstanceActivityUnknownPolicy(t *testing.T) {
	a, _, _ := newActivities(nil)
	env := activityEnv(a)

	_, err := env.ExecuteActivity(a.CreateInstanceActivity, temporal.WorkflowParams{PolicyName: "ghost", InstanceSeq: 1})
	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestBuildJobsActivityConfigErrorIsNonRetryable(t *testing.T) {
	a, _, _ := newActivities(nil)
	env := activityEnv(a)

	_, err := env.ExecuteActivity(a.BuildJobsActivity, temporal.InstanceRef{PolicyName: "daily"})
	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, temporal.ConfigErrorType, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestBuildJobsActivityCarriesRetry(t *testing.T) {
	a, _, _ := newActivities(nil)
	a.Builder = builderFunc(func(_ context.Context, p models.Policy) ([]models.JobDetails, error) {
		return []models.JobDetails{{Identifier: p.Name + "-FS", Name: p.Name, Type: p.Type}}, nil
	})
	env := activityEnv(a)

	val, err := env.ExecuteActivity(a.BuildJobsActivity, temporal.InstanceRef{PolicyName: "daily"})
	require.NoError(t, err)
	var res temporal.BuildResult
	require.NoError(t, val.Get(&res))
	require.Len(t, res.Stages, 1)
	assert.Equal(t, 2, res.Retry.Attempts)
	assert.Equal(t, int64(models.DefaultRetryDelay), res.Retry.Delay)
}

func TestRunStageActivityPersistsProgressAndState(t *testing.T) {
	j := &stubJob{perform: func(_ context.Context, jc *job.Context) error {
		assert.Equal(t, "hdfs://nn1/dump/7", jc.DumpDirectory())
		jc.SetBootstrap(true)
		jc.ReportProgress(progress.Progress{Total: 4, Completed: 4, BytesCopied: 2048, Percent: 100})
		return nil
	}}
	a, instances, _ := newActivities(j)
	env := activityEnv(a)

	val, err := env.ExecuteActivity(a.RunStageActivity, temporal.StageInput{
		InstanceID: "p1@3",
		PolicyName: "daily",
		Offset:     1,
		Stage:      models.JobDetails{Identifier: "daily-HIVE", Name: "daily", Type: models.ReplicationTypeHive},
		State:      json.RawMessage(`{"dumpDirectory":"hdfs://nn1/dump/7"}`),
	})
	require.NoError(t, err)

	var res temporal.StageResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, job.StatusSuccess, res.Details.Status)
	assert.Equal(t, int64(2048), res.Tracking[progress.KeyBytesCopied])

	state, err := job.DecodeState(res.State)
	require.NoError(t, err)
	assert.True(t, state.Bootstrap)
	require.NotNil(t, state.ExecutionStatus)
	assert.Equal(t, job.StatusSuccess, state.ExecutionStatus.Status)

	require.NotEmpty(t, instances.updates)
	last := instances.updates[len(instances.updates)-1]
	assert.Equal(t, 1, last.offset)
	assert.Equal(t, int64(4), last.tracking[progress.KeyTotal])
	assert.Contains(t, last.state, `"bootstrap":true`)
}

func TestRunStageActivityIgnoredIsNotAnError(t *testing.T) {
	j := &stubJob{perform: func(_ context.Context, jc *job.Context) error {
		jc.SetExecutionDetails(job.NewExecutionDetails(job.StatusIgnored, "nothing new"))
		return nil
	}}
	a, _, _ := newActivities(j)
	env := activityEnv(a)

	val, err := env.ExecuteActivity(a.RunStageActivity, temporal.StageInput{InstanceID: "p1@3", Stage: models.JobDetails{Type: models.ReplicationTypeHive}})
	require.NoError(t, err)
	var res temporal.StageResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, job.StatusIgnored, res.Details.Status)
	assert.Equal(t, "nothing new", res.Details.Message)
}

func TestRunStageActivityFailure(t *testing.T) {
	j := &stubJob{perform: func(context.Context, *job.Context) error {
		return errors.New("distcp failed (1): no space left")
	}}
	a, instances, _ := newActivities(j)
	env := activityEnv(a)

	_, err := env.ExecuteActivity(a.RunStageActivity, temporal.StageInput{InstanceID: "p1@3", Stage: models.JobDetails{Type: models.ReplicationTypeFS}})
	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, temporal.StageErrorType, appErr.Type())
	assert.False(t, appErr.NonRetryable())
	assert.Contains(t, appErr.Error(), "no space left")

	require.NotEmpty(t, instances.updates)
	assert.Contains(t, instances.updates[len(instances.updates)-1].state, `"jobStatus":"FAILED"`)
}

func TestRunStageActivityConfigFailure(t *testing.T) {
	j := &stubJob{perform: func(context.Context, *job.Context) error {
		return &jobbuilder.InvalidPropertyError{Key: "distcpMaxMaps", Value: "many", Err: errors.New("not a number")}
	}}
	a, _, _ := newActivities(j)
	env := activityEnv(a)

	_, err := env.ExecuteActivity(a.RunStageActivity, temporal.StageInput{InstanceID: "p1@3", Stage: models.JobDetails{Type: models.ReplicationTypeFS}})
	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, temporal.ConfigErrorType, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestRunStageActivityUnknownJob(t *testing.T) {
	a, _, _ := newActivities(nil)
	a.Factory = factoryFunc(func(models.JobDetails) (job.Job, error) { return nil, errors.New("no job registered") })
	env := activityEnv(a)

	_, err := env.ExecuteActivity(a.RunStageActivity, temporal.StageInput{InstanceID: "p1@3"})
	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestCompleteInstanceActivity(t *testing.T) {
	a, instances, notifier := newActivities(nil)
	env := activityEnv(a)

	_, err := env.ExecuteActivity(a.CompleteInstanceActivity, temporal.CompleteInput{
		Instance: temporal.InstanceRef{InstanceID: "p1@3", PolicyName: "daily", Type: models.ReplicationTypeFS, StartTime: now.Add(-time.Hour)},
		Status:   job.StatusFailed,
		Message:  "boom",
	})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", instances.completed["p1@3"])
	assert.Equal(t, "boom", instances.messages["p1@3"])
	assert.Equal(t, []job.Status{job.StatusFailed}, notifier.completed)
}
