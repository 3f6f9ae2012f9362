package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/engine"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stanstork/stratum-replicator/internal/resolver"
	"github.com/stanstork/stratum-replicator/internal/snapshot"
)

// KeySnapshotName is the side-channel key holding the snapshot taken for
// the current run.
const KeySnapshotName = "snapshotName"

// Copier submits and tracks distcp jobs. *engine.Hadoop satisfies it.
type Copier interface {
	Distcp(ctx context.Context, req engine.DistcpRequest) (string, error)
	JobStatus(ctx context.Context, id string) (engine.JobStatus, error)
	KillJob(ctx context.Context, id string) error
}

type Deps struct {
	Copier       Copier
	FileSystem   snapshot.FileSystem
	PollInterval time.Duration
	Now          func() time.Time
}

// Job copies a directory tree between clusters with distcp, using
// snapshot diffs when both sides support them.
type Job struct {
	details models.JobDetails
	deps    Deps
	logger  zerolog.Logger

	cfg       copyConfig
	snapshots *snapshot.Manager
	resolver  *resolver.Resolver
	mode      resolver.Mode
}

func New(d models.JobDetails, deps Deps, logger zerolog.Logger) (*Job, error) {
	cfg, err := configOf(d)
	if err != nil {
		return nil, err
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = 10 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	snapshots := snapshot.NewManager(deps.FileSystem, logger, snapshot.WithClock(deps.Now))
	return &Job{
		details:   d,
		deps:      deps,
		logger:    logger,
		cfg:       cfg,
		snapshots: snapshots,
		resolver:  resolver.New(snapshots, logger),
	}, nil
}

func (j *Job) Init(ctx context.Context, jc *job.Context) error {
	if err := job.CheckInterrupted(ctx); err != nil {
		return err
	}
	mode, err := j.resolver.Resolve(ctx, resolver.Endpoints{
		Type:       models.ReplicationTypeFS,
		Source:     j.cfg.source,
		Target:     j.cfg.target,
		TDEEnabled: j.cfg.tde,
	})
	if err != nil {
		return errors.Wrap(err, "failed to resolve replication mode")
	}
	j.mode = mode
	j.logger.Info().Str("mode", string(mode)).Msg("replication mode resolved")
	return nil
}

func (j *Job) Perform(ctx context.Context, jc *job.Context) error {
	return j.copy(ctx, jc, job.ExecutionMain)
}

func (j *Job) copy(ctx context.Context, jc *job.Context, typ job.ExecutionType) error {
	req := j.request()

	if j.mode == resolver.ModeSnapshot {
		name := snapshot.Name(j.cfg.policy, j.deps.Now())
		from, err := j.snapshots.LatestCommon(ctx, j.cfg.source, j.cfg.target)
		if err != nil {
			return err
		}
		if err := job.CheckInterrupted(ctx); err != nil {
			return err
		}
		if err := j.snapshots.Create(ctx, j.cfg.source, name); err != nil {
			return err
		}
		jc.Set(KeySnapshotName, name)
		if from != "" {
			req.DiffFrom, req.DiffTo = from, name
		}
	}

	if err := job.CheckInterrupted(ctx); err != nil {
		return err
	}
	started := j.deps.Now()
	id, err := j.deps.Copier.Distcp(ctx, req)
	if err != nil {
		return errors.Wrap(err, "failed to submit distcp")
	}
	d := job.NewExecutionDetails(job.StatusRunning, "").WithJob(id, typ)
	jc.SetExecutionDetails(d)

	if err := j.wait(ctx, jc, id, started); err != nil {
		return err
	}
	return j.afterCopy(ctx, jc)
}

func (j *Job) request() engine.DistcpRequest {
	return engine.DistcpRequest{
		Source:         j.cfg.source,
		Target:         j.cfg.target,
		Maps:           j.cfg.maps,
		Bandwidth:      j.cfg.bandwidth,
		Queue:          j.cfg.queue,
		Config:         j.cfg.hadoopConf,
		Update:         !j.cfg.overwrite,
		Delete:         j.cfg.removeDeleted,
		Overwrite:      j.cfg.overwrite,
		SkipCRC:        j.cfg.skipCRC,
		IgnoreFailures: j.cfg.ignoreFailures,
		Preserve:       j.cfg.preserve,
	}
}

// wait polls the copy job until it finishes. Cancellation kills the job.
func (j *Job) wait(ctx context.Context, jc *job.Context, id string, started time.Time) error {
	ticker := time.NewTicker(j.deps.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			j.kill(id)
			return job.ErrInterrupted
		}
		st, err := j.deps.Copier.JobStatus(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				j.kill(id)
				return job.ErrInterrupted
			}
			return errors.Wrapf(err, "failed to poll distcp job %s", id)
		}
		now := j.deps.Now()
		jc.ReportProgress(progress.FromCounters(st.Report(started, now), now))

		switch st.State {
		case engine.JobSucceeded:
			return nil
		case engine.JobFailed, engine.JobKilled:
			return fmt.Errorf("distcp job %s %s: %s", id, st.State, st.Failure)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func (j *Job) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := j.deps.Copier.KillJob(ctx, id); err != nil {
		j.logger.Error().Err(err).Str("job_id", id).Msg("failed to kill distcp job")
		return
	}
	j.logger.Warn().Str("job_id", id).Msg("distcp job killed")
}

// afterCopy snapshots the target under the source snapshot name and
// applies retention on both sides.
func (j *Job) afterCopy(ctx context.Context, jc *job.Context) error {
	if j.mode != resolver.ModeSnapshot {
		return nil
	}
	name, ok := jc.Get(KeySnapshotName)
	if !ok || name == "" {
		return nil
	}
	exists, err := j.snapshots.Exists(ctx, j.cfg.target, name)
	if err != nil {
		return err
	}
	if !exists {
		if err := j.snapshots.Create(ctx, j.cfg.target, name); err != nil {
			return err
		}
	}

	j.evict(ctx)
	return nil
}

// Eviction counts the snapshots removed from each side.
type Eviction struct {
	Source int
	Target int
}

// evict applies retention on both sides. Failures are logged and do not
// fail the run.
func (j *Job) evict(ctx context.Context) Eviction {
	var out Eviction
	for _, side := range []struct {
		dir   string
		keep  retention
		count *int
	}{
		{j.cfg.source, j.cfg.sourceKeep, &out.Source},
		{j.cfg.target, j.cfg.targetKeep, &out.Target},
	} {
		evicted, err := j.snapshots.Evict(ctx, side.dir, side.keep.age, side.keep.count)
		if err != nil {
			j.logger.Warn().Err(err).Str("dir", side.dir).Msg("snapshot eviction failed")
		}
		*side.count = len(evicted)
	}
	return out
}

// EvictSnapshots applies the retention settings of the job outside of a
// run. Jobs that do not replicate through snapshots evict nothing.
func (j *Job) EvictSnapshots(ctx context.Context) (Eviction, error) {
	if j.mode == "" {
		if err := j.Init(ctx, nil); err != nil {
			return Eviction{}, err
		}
	}
	if j.mode != resolver.ModeSnapshot {
		return Eviction{}, nil
	}
	return j.evict(ctx), nil
}

// Recover resumes from the copy job recorded by the previous attempt. A
// job still running is awaited, a finished one only gets the post-copy
// steps, and anything else is copied again as a recovery job.
func (j *Job) Recover(ctx context.Context, jc *job.Context) error {
	prev := jc.ExecutionDetails()
	if prev == nil || prev.JobID == "" {
		return j.copy(ctx, jc, job.ExecutionRecovery)
	}

	if err := job.CheckInterrupted(ctx); err != nil {
		return err
	}
	st, err := j.deps.Copier.JobStatus(ctx, prev.JobID)
	if err != nil {
		j.logger.Warn().Err(err).Str("job_id", prev.JobID).Msg("previous distcp job unknown, copying again")
		return j.copy(ctx, jc, job.ExecutionRecovery)
	}

	switch {
	case !st.State.Done():
		j.logger.Info().Str("job_id", prev.JobID).Msg("waiting on previous distcp job")
		if err := j.wait(ctx, jc, prev.JobID, j.deps.Now()); err != nil {
			return err
		}
		return j.afterCopy(ctx, jc)
	case st.State == engine.JobSucceeded:
		return j.afterCopy(ctx, jc)
	default:
		return j.copy(ctx, jc, job.ExecutionRecovery)
	}
}

// Cleanup releases nothing. Copy jobs outlive the instance and are picked
// up by Recover.
func (j *Job) Cleanup(ctx context.Context, jc *job.Context) error {
	return nil
}

// Register binds the FS job to the factory.
func Register(f *job.Factory, deps Deps) {
	f.Register(models.ReplicationTypeFS, "", func(d models.JobDetails, logger zerolog.Logger) (job.Job, error) {
		j, err := New(d, deps, logger)
		if err != nil {
			return nil, err
		}
		return j, nil
	})
}
