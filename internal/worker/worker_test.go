package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/replication/fs"
	"github.com/stanstork/stratum-replicator/internal/repository"
	"github.com/stanstork/stratum-replicator/internal/snapshot"
	"github.com/stanstork/stratum-replicator/internal/snapshot/snapshottest"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePolicies struct {
	repository.PolicyRepository
	due    []repository.DuePolicy
	active []models.Policy
}

func (f *fakePolicies) ClaimDue(context.Context, time.Time, int) ([]repository.DuePolicy, error) {
	return f.due, nil
}

func (f *fakePolicies) ListActive(_ context.Context, typ models.ReplicationType) ([]models.Policy, error) {
	var out []models.Policy
	for _, p := range f.active {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeRun struct {
	client.WorkflowRun
	id string
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return "run-" + r.id }

type startCall struct {
	opts   client.StartWorkflowOptions
	params temporal.WorkflowParams
}

type fakeStarter struct {
	calls   []startCall
	running map[string]bool
	fail    map[string]bool
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	params := args[0].(temporal.WorkflowParams)
	f.calls = append(f.calls, startCall{opts: opts, params: params})
	if f.running[params.PolicyName] {
		return nil, &serviceerror.WorkflowExecutionAlreadyStarted{Message: "workflow execution already started"}
	}
	if f.fail[params.PolicyName] {
		return nil, errors.New("frontend unavailable")
	}
	return fakeRun{id: opts.ID}, nil
}

func due(name string, seq int64) repository.DuePolicy {
	return repository.DuePolicy{Policy: models.Policy{ID: name + "-id", Name: name, Type: models.ReplicationTypeFS}, Sequence: seq}
}

func TestSchedulerTickStartsDuePolicies(t *testing.T) {
	policies := &fakePolicies{due: []repository.DuePolicy{due("daily", 4), due("hourly", 9)}}
	starter := &fakeStarter{}
	s := NewScheduler(SchedulerConfig{}, policies, starter, nil, zerolog.Nop())

	started, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	require.Len(t, starter.calls, 2)
	assert.Equal(t, "replication-daily", starter.calls[0].opts.ID)
	assert.Equal(t, temporal.TaskQueueName, starter.calls[0].opts.TaskQueue)
	assert.True(t, starter.calls[0].opts.WorkflowExecutionErrorWhenAlreadyStarted)
	assert.Equal(t, temporal.WorkflowParams{PolicyName: "hourly", InstanceSeq: 9}, starter.calls[1].params)
}

func TestSchedulerSkipsRunningAndFailedStarts(t *testing.T) {
	policies := &fakePolicies{due: []repository.DuePolicy{due("daily", 4), due("hourly", 9), due("weekly", 2)}}
	starter := &fakeStarter{
		running: map[string]bool{"daily": true},
		fail:    map[string]bool{"hourly": true},
	}
	s := NewScheduler(SchedulerConfig{TaskQueue: "custom"}, policies, starter, nil, zerolog.Nop())

	started, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Len(t, starter.calls, 3)
	assert.Equal(t, "custom", starter.calls[2].opts.TaskQueue)
}

type fakeBuilder struct{}

func (fakeBuilder) Build(_ context.Context, p models.Policy) ([]models.JobDetails, error) {
	if p.Name == "broken" {
		return nil, &jobbuilder.MissingPropertyError{Key: jobbuilder.KeySourcePath}
	}
	return []models.JobDetails{{
		Identifier: p.Name + "-FS",
		Name:       p.Name,
		Type:       models.ReplicationTypeFS,
		Properties: map[string]string{
			jobbuilder.KeyName:                 p.Name,
			jobbuilder.KeyType:                 "FS",
			jobbuilder.KeySourcePath:           p.SourceDataset,
			jobbuilder.KeyTargetPath:           p.TargetDataset,
			jobbuilder.KeySourceRetentionAge:   "hours(1)",
			jobbuilder.KeySourceRetentionCount: "1",
			jobbuilder.KeyTargetRetentionAge:   "hours(1)",
			jobbuilder.KeyTargetRetentionCount: "2",
		},
	}}, nil
}

func TestEvictorRunOnce(t *testing.T) {
	memfs := snapshottest.NewMemFS()
	memfs.Now = func() time.Time { return now }
	memfs.Mkdir("/data/in", true)
	memfs.Mkdir("/data/out", true)
	memfs.Mkdir("/plain/in", false)
	memfs.Mkdir("/plain/out", false)
	for i := 1; i <= 3; i++ {
		at := now.Add(-time.Duration(i) * 24 * time.Hour)
		name := snapshot.Name("daily", at)
		memfs.AddSnapshot("/data/in", name, at)
		memfs.AddSnapshot("/data/out", name, at)
	}

	policies := &fakePolicies{active: []models.Policy{
		{Name: "daily", Type: models.ReplicationTypeFS, SourceDataset: "/data/in", TargetDataset: "/data/out"},
		{Name: "plain", Type: models.ReplicationTypeFS, SourceDataset: "/plain/in", TargetDataset: "/plain/out"},
		{Name: "broken", Type: models.ReplicationTypeFS},
		{Name: "sales", Type: models.ReplicationTypeHive},
	}}
	deps := fs.Deps{FileSystem: memfs, Now: func() time.Time { return now }}
	e, err := NewEvictor("@every 1h", policies, fakeBuilder{}, deps, nil, zerolog.Nop())
	require.NoError(t, err)

	total, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, memfs.Snapshots("/data/in"), 1)
	assert.Len(t, memfs.Snapshots("/data/out"), 2)
}

func TestEvictorRejectsBadSchedule(t *testing.T) {
	_, err := NewEvictor("every hour", &fakePolicies{}, fakeBuilder{}, fs.Deps{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
