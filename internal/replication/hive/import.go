package hive

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
)

const defaultDB = "default"

// ImportJob loads the dump published by the export stage into the target.
type ImportJob struct {
	details   models.JobDetails
	ep        endpoints
	connector Connector
	logger    zerolog.Logger

	target Session
}

func NewImportJob(d models.JobDetails, connector Connector, logger zerolog.Logger) (*ImportJob, error) {
	ep, err := endpointsOf(d)
	if err != nil {
		return nil, err
	}
	return &ImportJob{details: d, ep: ep, connector: connector, logger: logger}, nil
}

func (j *ImportJob) Init(ctx context.Context, jc *job.Context) error {
	var err error
	if j.target, err = j.connector.Connect(ctx, j.ep.targetHS2, j.ep.targetPrn); err != nil {
		return errors.Wrap(err, "target hiveserver2")
	}
	return nil
}

func (j *ImportJob) Perform(ctx context.Context, jc *job.Context) error {
	dir := jc.DumpDirectory()
	if dir == "" {
		return fmt.Errorf("no dump directory for %s", j.ep.targetDB)
	}
	if err := job.CheckInterrupted(ctx); err != nil {
		return err
	}

	res, err := j.target.Query(ctx, LoadCommand(j.ep.targetDB, dir, j.ep.replConfig))
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", j.ep.targetDB)
	}
	if p, perr := progress.ParseReplLog(res.Log, progress.ActionImport); perr == nil {
		jc.ReportProgress(p)
	} else {
		j.logger.Warn().Err(perr).Msg("unreadable load log")
	}
	j.logger.Info().Str("dump_dir", dir).Msg("load finished")
	return nil
}

// Recover wipes a partially loaded bootstrap before loading again. An
// incremental load is replayed as is.
func (j *ImportJob) Recover(ctx context.Context, jc *job.Context) error {
	if jc.Bootstrap() {
		if err := job.CheckInterrupted(ctx); err != nil {
			return err
		}
		if err := j.dropTarget(ctx); err != nil {
			return err
		}
	}
	return j.Perform(ctx, jc)
}

func (j *ImportJob) dropTarget(ctx context.Context) error {
	db := j.ep.targetDB
	if !strings.EqualFold(db, defaultDB) {
		j.logger.Warn().Str("database", db).Msg("dropping partially bootstrapped database")
		_, err := j.target.Query(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s CASCADE", db))
		return errors.Wrapf(err, "failed to drop %s", db)
	}

	// The default database cannot be dropped, so empty it instead.
	tables, err := j.target.Query(ctx, "SHOW TABLES IN "+defaultDB)
	if err != nil {
		return errors.Wrap(err, "failed to list tables of default")
	}
	funcs, err := j.target.Query(ctx, "SHOW FUNCTIONS LIKE '"+defaultDB+".*'")
	if err != nil {
		return errors.Wrap(err, "failed to list functions of default")
	}

	var stmts []string
	for _, row := range tables.Rows {
		if len(row) > 0 && row[0] != "" {
			stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", defaultDB, row[0]))
		}
	}
	for _, row := range funcs.Rows {
		if len(row) > 0 && row[0] != "" {
			stmts = append(stmts, "DROP FUNCTION IF EXISTS "+row[0])
		}
	}
	if len(stmts) == 0 {
		return nil
	}
	j.logger.Warn().Int("objects", len(stmts)).Msg("emptying partially bootstrapped default database")
	if _, err := j.target.Script(ctx, stmts); err != nil {
		return errors.Wrap(err, "failed to empty default")
	}
	return nil
}

func (j *ImportJob) Cleanup(ctx context.Context, jc *job.Context) error {
	return closeAll(&j.target)
}
