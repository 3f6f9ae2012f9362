package activities

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/metrics"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stanstork/stratum-replicator/internal/repository"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"
)

type JobBuilder interface {
	Build(ctx context.Context, p models.Policy) ([]models.JobDetails, error)
}

type JobFactory interface {
	New(details models.JobDetails) (job.Job, error)
}

// InstanceNotifier publishes instance lifecycle events.
type InstanceNotifier interface {
	NotifyInstanceStarted(ctx context.Context, policyName, instanceID string) error
	NotifyInstanceCompleted(ctx context.Context, policyName, instanceID string, status job.Status, message string) error
}

type Activities struct {
	Policies  repository.PolicyRepository
	Instances repository.InstanceRepository
	Builder   JobBuilder
	Factory   JobFactory
	Notifier  InstanceNotifier
	Metrics   *metrics.Collector
	Logger    zerolog.Logger

	// HeartbeatInterval paces heartbeats of a running stage between progress reports.
	HeartbeatInterval time.Duration
	Now               func() time.Time
}

func (a *Activities) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func configError(err error) error {
	return sdktemporal.NewNonRetryableApplicationError(err.Error(), temporal.ConfigErrorType, nil)
}

// CreateInstanceActivity records a RUNNING instance for the run and
// announces it.
func (a *Activities) CreateInstanceActivity(ctx context.Context, params temporal.WorkflowParams) (*temporal.InstanceRef, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Creating policy instance", "policy", params.PolicyName, "sequence", params.InstanceSeq)

	policy, err := a.Policies.Get(ctx, params.PolicyName)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, sdktemporal.NewNonRetryableApplicationError("policy "+params.PolicyName+" not found", "PolicyNotFound", nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch policy")
	}

	inst, err := a.Instances.Create(ctx, models.PolicyInstance{
		ID:         models.InstanceID(policy.ID, params.InstanceSeq),
		PolicyID:   policy.ID,
		PolicyName: policy.Name,
		Type:       policy.Type,
		Sequence:   params.InstanceSeq,
		Status:     job.StatusRunning.String(),
		StartTime:  a.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create instance record")
	}

	if a.Notifier != nil {
		if err := a.Notifier.NotifyInstanceStarted(ctx, policy.Name, inst.ID); err != nil {
			logger.Warn("Failed to publish instance start", "instance", inst.ID, "error", err)
		}
	}
	return &temporal.InstanceRef{
		InstanceID: inst.ID,
		PolicyID:   policy.ID,
		PolicyName: policy.Name,
		Type:       policy.Type,
		StartTime:  inst.StartTime,
	}, nil
}

// BuildJobsActivity turns the policy into its ordered job stages.
func (a *Activities) BuildJobsActivity(ctx context.Context, ref temporal.InstanceRef) (*temporal.BuildResult, error) {
	policy, err := a.Policies.Get(ctx, ref.PolicyName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch policy")
	}
	stages, err := a.Builder.Build(ctx, policy)
	if jobbuilder.IsConfigError(err) {
		return nil, configError(err)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to build jobs")
	}
	activity.GetLogger(ctx).Info("Built job stages", "policy", ref.PolicyName, "stages", len(stages))
	return &temporal.BuildResult{Stages: stages, Retry: policy.Retry.WithDefaults()}, nil
}

// RunStageActivity drives one job stage. The first attempt performs the
// job; later attempts recover it from the last heartbeat state.
func (a *Activities) RunStageActivity(ctx context.Context, in temporal.StageInput) (*temporal.StageResult, error) {
	info := activity.GetInfo(ctx)
	logger := activity.GetLogger(ctx)

	encoded := in.State
	if info.Attempt > 1 && activity.HasHeartbeatDetails(ctx) {
		var hb temporal.StageHeartbeat
		if err := activity.GetHeartbeatDetails(ctx, &hb); err == nil && len(hb.State) > 0 {
			encoded = hb.State
		}
	}
	state, err := job.DecodeState(encoded)
	if err != nil {
		return nil, configError(err)
	}

	j, err := a.Factory.New(in.Stage)
	if err != nil {
		return nil, configError(err)
	}

	jc := job.NewContext(in.InstanceID, state, a.Logger.With().
		Str("policy", in.PolicyName).
		Str("job", in.Stage.Identifier).
		Logger())
	jc.Attempt = int(info.Attempt)

	hb := newHeartbeater(ctx, a.Instances, in, jc, a.Logger)
	jc.OnProgress(hb.report)
	stop := hb.start(a.HeartbeatInterval)
	done := a.Metrics.StageStarted()

	mode := job.ModePerform
	if info.Attempt > 1 {
		mode = job.ModeRecover
	}
	logger.Info("Running job stage", "stage", in.Stage.Identifier, "attempt", info.Attempt)
	details, runErr := job.Run(ctx, j, jc, mode)

	done()
	stop()

	final, err := jc.State().Encode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode job context")
	}
	tracking := hb.tracking()
	hb.persist(final, tracking)

	if runErr != nil {
		logger.Error("Job stage failed", "stage", in.Stage.Identifier, "status", details.Status.String(), "error", runErr)
		if jobbuilder.IsConfigError(runErr) {
			return nil, configError(runErr)
		}
		if details.Status == job.StatusKilled && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, sdktemporal.NewApplicationError(details.Message, temporal.StageErrorType)
	}

	if details.Status == job.StatusSuccess {
		a.Metrics.AddBytesCopied(string(in.Stage.Type), progress.FromMap(tracking).BytesCopied)
	}
	return &temporal.StageResult{Details: details, State: final, Tracking: tracking}, nil
}

// CompleteInstanceActivity stores the final outcome of an instance.
func (a *Activities) CompleteInstanceActivity(ctx context.Context, in temporal.CompleteInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Completing policy instance", "instance", in.Instance.InstanceID, "status", in.Status.String())

	end := a.now()
	if err := a.Instances.Complete(ctx, in.Instance.InstanceID, in.Status.String(), in.Message, end); err != nil {
		return errors.Wrap(err, "failed to complete instance record")
	}
	a.Metrics.RecordInstance(string(in.Instance.Type), in.Status.String(), end.Sub(in.Instance.StartTime))

	if a.Notifier != nil {
		if err := a.Notifier.NotifyInstanceCompleted(ctx, in.Instance.PolicyName, in.Instance.InstanceID, in.Status, in.Message); err != nil {
			logger.Warn("Failed to publish instance completion", "instance", in.Instance.InstanceID, "error", err)
		}
	}
	return nil
}

// heartbeater forwards job progress to Temporal heartbeats and the
// instance record, and keeps heartbeating between reports.
type heartbeater struct {
	ctx       context.Context
	instances repository.InstanceRepository
	in        temporal.StageInput
	jc        *job.Context
	logger    zerolog.Logger

	mu   sync.Mutex
	last map[string]int64
}

func newHeartbeater(ctx context.Context, instances repository.InstanceRepository, in temporal.StageInput, jc *job.Context, logger zerolog.Logger) *heartbeater {
	return &heartbeater{ctx: ctx, instances: instances, in: in, jc: jc, logger: logger}
}

func (h *heartbeater) report(p progress.Progress) {
	h.mu.Lock()
	h.last = p.Map()
	h.mu.Unlock()

	state, err := h.jc.State().Encode()
	if err != nil {
		return
	}
	tracking := h.tracking()
	activity.RecordHeartbeat(h.ctx, temporal.StageHeartbeat{Tracking: tracking, State: state})
	h.persist(state, tracking)
}

func (h *heartbeater) tracking() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	out := make(map[string]int64, len(h.last))
	for k, v := range h.last {
		out[k] = v
	}
	return out
}

// persist writes progress and context on its own context so the record
// survives cancellation of the attempt.
func (h *heartbeater) persist(state []byte, tracking map[string]int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.instances.UpdateProgress(ctx, h.in.InstanceID, h.in.Offset, tracking, state); err != nil {
		h.logger.Warn().Err(err).Str("instance", h.in.InstanceID).Msg("failed to persist stage progress")
	}
}

func (h *heartbeater) start(interval time.Duration) func() {
	if interval <= 0 {
		interval = temporal.HeartbeatTimeout / 4
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-h.ctx.Done():
				return
			case <-ticker.C:
				state, err := h.jc.State().Encode()
				if err != nil {
					continue
				}
				activity.RecordHeartbeat(h.ctx, temporal.StageHeartbeat{Tracking: h.tracking(), State: state})
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}
