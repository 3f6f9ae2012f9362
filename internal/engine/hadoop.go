package engine

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/snapshot"
)

type HadoopConfig struct {
	Container string
	HdfsBin   string
	HadoopBin string
	MapredBin string
	Timeout   time.Duration
}

func (c HadoopConfig) withDefaults() HadoopConfig {
	if c.HdfsBin == "" {
		c.HdfsBin = "hdfs"
	}
	if c.HadoopBin == "" {
		c.HadoopBin = "hadoop"
	}
	if c.MapredBin == "" {
		c.MapredBin = "mapred"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}

// Hadoop drives the hdfs, hadoop and mapred client tools of a client
// container. It implements snapshot.FileSystem.
type Hadoop struct {
	runner Runner
	cfg    HadoopConfig
	logger zerolog.Logger
}

var _ snapshot.FileSystem = (*Hadoop)(nil)

func NewHadoop(r Runner, cfg HadoopConfig, logger zerolog.Logger) *Hadoop {
	return &Hadoop{
		runner: r,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "hadoop_client").Logger(),
	}
}

func (h *Hadoop) exec(ctx context.Context, cmd ...string) (*ExecResult, error) {
	h.logger.Debug().Strs("cmd", cmd).Msg("exec")
	res, err := h.runner.Exec(ctx, h.cfg.Container, cmd, WithTimeout(h.cfg.Timeout))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run %s", cmd[0])
	}
	return res, nil
}

func (h *Hadoop) run(ctx context.Context, cmd ...string) (*ExecResult, error) {
	res, err := h.exec(ctx, cmd...)
	if err != nil {
		return nil, err
	}
	if err := res.Err(cmd[0]); err != nil {
		return res, err
	}
	return res, nil
}

// Exists maps `hdfs dfs -test -e` exit codes: 0 exists, 1 missing.
func (h *Hadoop) Exists(ctx context.Context, p string) (bool, error) {
	res, err := h.exec(ctx, h.cfg.HdfsBin, "dfs", "-test", "-e", p)
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, res.Err(h.cfg.HdfsBin)
	}
}

func (h *Hadoop) AllowSnapshot(ctx context.Context, dir string) error {
	_, err := h.run(ctx, h.cfg.HdfsBin, "dfsadmin", "-allowSnapshot", dir)
	return err
}

func (h *Hadoop) DisallowSnapshot(ctx context.Context, dir string) error {
	_, err := h.run(ctx, h.cfg.HdfsBin, "dfsadmin", "-disallowSnapshot", dir)
	return err
}

func (h *Hadoop) CreateSnapshot(ctx context.Context, dir, name string) error {
	_, err := h.run(ctx, h.cfg.HdfsBin, "dfs", "-createSnapshot", dir, name)
	return err
}

func (h *Hadoop) DeleteSnapshot(ctx context.Context, dir, name string) error {
	_, err := h.run(ctx, h.cfg.HdfsBin, "dfs", "-deleteSnapshot", dir, name)
	return err
}

func (h *Hadoop) ListSnapshots(ctx context.Context, dir string) ([]snapshot.Info, error) {
	res, err := h.run(ctx, h.cfg.HdfsBin, "dfs", "-ls", path.Join(dir, snapshot.ReservedDir))
	if err != nil {
		return nil, err
	}
	return ParseSnapshotListing(res.Stdout)
}

// DistcpRequest describes one asynchronous distcp submission.
type DistcpRequest struct {
	Source    string
	Target    string
	Maps      int
	Bandwidth int
	Queue     string
	// Config entries become -D options.
	Config map[string]string

	Update         bool
	Delete         bool
	Overwrite      bool
	SkipCRC        bool
	IgnoreFailures bool
	// Preserve holds the attribute letters of -p, e.g. "bugp".
	Preserve string
	// DiffFrom and DiffTo select snapshot-diff copy when both are set.
	DiffFrom string
	DiffTo   string
}

// Args renders the distcp command line after the tool name.
func (r DistcpRequest) Args() []string {
	args := []string{"distcp"}

	keys := make([]string, 0, len(r.Config))
	for k := range r.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if r.Queue != "" {
		args = append(args, "-Dmapreduce.job.queuename="+r.Queue)
	}
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-D%s=%s", k, r.Config[k]))
	}

	args = append(args, "-async")
	if r.Maps > 0 {
		args = append(args, "-m", strconv.Itoa(r.Maps))
	}
	if r.Bandwidth > 0 {
		args = append(args, "-bandwidth", strconv.Itoa(r.Bandwidth))
	}

	diff := r.DiffFrom != "" && r.DiffTo != ""
	if r.Update || diff {
		args = append(args, "-update")
	}
	if diff {
		args = append(args, "-diff", r.DiffFrom, r.DiffTo)
	} else {
		if r.Delete {
			args = append(args, "-delete")
		}
		if r.Overwrite {
			args = append(args, "-overwrite")
		}
	}
	if r.SkipCRC {
		args = append(args, "-skipcrccheck")
	}
	if r.IgnoreFailures {
		args = append(args, "-i")
	}
	if r.Preserve != "" {
		args = append(args, "-p"+r.Preserve)
	}
	return append(args, r.Source, r.Target)
}

// Distcp submits an asynchronous copy and returns its MapReduce job id.
func (h *Hadoop) Distcp(ctx context.Context, req DistcpRequest) (string, error) {
	cmd := append([]string{h.cfg.HadoopBin}, req.Args()...)
	res, err := h.run(ctx, cmd...)
	if err != nil {
		return "", err
	}
	id, ok := ParseJobID(res.Output())
	if !ok {
		return "", fmt.Errorf("distcp did not report a job id: %s", res.Output())
	}
	h.logger.Info().Str("job_id", id).Str("source", req.Source).Str("target", req.Target).Msg("distcp submitted")
	return id, nil
}

func (h *Hadoop) JobStatus(ctx context.Context, id string) (JobStatus, error) {
	res, err := h.run(ctx, h.cfg.MapredBin, "job", "-status", id)
	if err != nil {
		return JobStatus{}, err
	}
	return ParseJobStatus(res.Stdout)
}

func (h *Hadoop) KillJob(ctx context.Context, id string) error {
	_, err := h.run(ctx, h.cfg.MapredBin, "job", "-kill", id)
	return err
}
