package hive

import (
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// Register binds the export and import stages to the factory.
func Register(f *job.Factory, connector Connector) {
	f.Register(models.ReplicationTypeHive, jobbuilder.ActionExport, func(d models.JobDetails, logger zerolog.Logger) (job.Job, error) {
		j, err := NewExportJob(d, connector, logger)
		if err != nil {
			return nil, err
		}
		return j, nil
	})
	f.Register(models.ReplicationTypeHive, jobbuilder.ActionImport, func(d models.JobDetails, logger zerolog.Logger) (job.Job, error) {
		j, err := NewImportJob(d, connector, logger)
		if err != nil {
			return nil, err
		}
		return j, nil
	})
}
