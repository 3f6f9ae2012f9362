package hive

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stanstork/stratum-replicator/internal/resolver"
)

// MsgNothingToReplicate is recorded when the source has no events beyond
// the target watermark.
const MsgNothingToReplicate = "Current Repl event id must be greater than last repl event id"

type endpoints struct {
	sourceDB   string
	targetDB   string
	sourceHS2  string
	targetHS2  string
	sourcePrn  string
	targetPrn  string
	sourceNN   string
	maxEvents  int64
	replConfig map[string]string
}

func endpointsOf(d models.JobDetails) (endpoints, error) {
	e := endpoints{
		sourceDB:   d.Property(jobbuilder.KeySourcePath),
		targetDB:   d.Property(jobbuilder.KeyTargetPath),
		sourceHS2:  d.Property(jobbuilder.KeySourceHS2),
		targetHS2:  d.Property(jobbuilder.KeyTargetHS2),
		sourcePrn:  d.Property(jobbuilder.KeySourceHSPrn),
		targetPrn:  d.Property(jobbuilder.KeyTargetHSPrn),
		sourceNN:   d.Property(jobbuilder.KeySourceNN),
		replConfig: make(map[string]string),
	}
	if e.targetDB == "" {
		e.targetDB = e.sourceDB
	}
	e.maxEvents = 100
	if v := d.Property(jobbuilder.KeyMaxEvents); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return e, &jobbuilder.InvalidPropertyError{Key: jobbuilder.KeyMaxEvents, Value: v, Err: err}
		}
		e.maxEvents = n
	}
	for k, v := range d.Properties {
		if strings.HasPrefix(k, jobbuilder.HiveReplConfigPrefix) {
			e.replConfig[k] = v
		}
	}
	return e, nil
}

// ExportJob dumps new source events beyond the target watermark and
// publishes the dump location for the import stage.
type ExportJob struct {
	details   models.JobDetails
	ep        endpoints
	connector Connector
	logger    zerolog.Logger

	source Session
	target Session
}

func NewExportJob(d models.JobDetails, connector Connector, logger zerolog.Logger) (*ExportJob, error) {
	ep, err := endpointsOf(d)
	if err != nil {
		return nil, err
	}
	return &ExportJob{details: d, ep: ep, connector: connector, logger: logger}, nil
}

func (j *ExportJob) Init(ctx context.Context, jc *job.Context) error {
	var err error
	if j.source, err = j.connector.Connect(ctx, j.ep.sourceHS2, j.ep.sourcePrn); err != nil {
		return errors.Wrap(err, "source hiveserver2")
	}
	if j.target, err = j.connector.Connect(ctx, j.ep.targetHS2, j.ep.targetPrn); err != nil {
		return errors.Wrap(err, "target hiveserver2")
	}
	return nil
}

func (j *ExportJob) Perform(ctx context.Context, jc *job.Context) error {
	if err := job.CheckInterrupted(ctx); err != nil {
		return err
	}
	last, err := lastReplID(ctx, j.target, j.ep.targetDB)
	if err != nil {
		return err
	}

	if err := job.CheckInterrupted(ctx); err != nil {
		return err
	}
	res, err := j.source.Query(ctx, DumpCommand(j.ep.sourceDB, last, 0, j.ep.maxEvents))
	if err != nil {
		return errors.Wrapf(err, "failed to dump %s", j.ep.sourceDB)
	}
	if p, perr := progress.ParseReplLog(res.Log, progress.ActionExport); perr == nil {
		jc.ReportProgress(p)
	} else {
		j.logger.Warn().Err(perr).Msg("unreadable dump log")
	}

	if len(res.Rows) == 0 || len(res.Rows[0]) < 2 {
		return fmt.Errorf("repl dump of %s returned no dump location", j.ep.sourceDB)
	}
	dir := strings.TrimSpace(res.Rows[0][0])
	current, err := strconv.ParseInt(strings.TrimSpace(res.Rows[0][1]), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid repl event id %q", res.Rows[0][1])
	}

	j.logger.Info().Int64("last_repl_id", last).Int64("current_repl_id", current).Str("dump_dir", dir).Msg("dump finished")
	if current <= last {
		jc.SetExecutionDetails(job.NewExecutionDetails(job.StatusIgnored, MsgNothingToReplicate))
		return nil
	}

	jc.SetDumpDirectory(resolver.Qualify(j.ep.sourceNN, dir))
	jc.SetBootstrap(last == -1 || last == 0)
	return nil
}

// Recover re-runs the export. The watermark is read from the target again
// so an already applied dump is never repeated.
func (j *ExportJob) Recover(ctx context.Context, jc *job.Context) error {
	return j.Perform(ctx, jc)
}

func (j *ExportJob) Cleanup(ctx context.Context, jc *job.Context) error {
	return closeAll(&j.source, &j.target)
}

func closeAll(sessions ...*Session) error {
	var first error
	for _, s := range sessions {
		if *s == nil {
			continue
		}
		if err := (*s).Close(); err != nil && first == nil {
			first = err
		}
		*s = nil
	}
	return first
}
