package worker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/metrics"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/replication/fs"
	"github.com/stanstork/stratum-replicator/internal/repository"
)

type JobBuilder interface {
	Build(ctx context.Context, p models.Policy) ([]models.JobDetails, error)
}

// Evictor applies snapshot retention to every active FS policy on a cron
// schedule, independently of replication runs.
type Evictor struct {
	schedule cron.Schedule
	policies repository.PolicyRepository
	builder  JobBuilder
	deps     fs.Deps
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewEvictor(spec string, policies repository.PolicyRepository, builder JobBuilder, deps fs.Deps, m *metrics.Collector, logger zerolog.Logger) (*Evictor, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid eviction schedule %q: %w", spec, err)
	}
	return &Evictor{
		schedule: schedule,
		policies: policies,
		builder:  builder,
		deps:     deps,
		metrics:  m,
		logger:   logger.With().Str("component", "evictor").Logger(),
	}, nil
}

// Start runs eviction cycles until ctx is done.
func (e *Evictor) Start(ctx context.Context) error {
	c := cron.New()
	c.Schedule(e.schedule, cron.FuncJob(func() {
		if _, err := e.RunOnce(ctx); err != nil {
			e.logger.Error().Err(err).Msg("eviction cycle failed")
		}
	}))
	c.Start()
	e.logger.Info().Msg("eviction cycle scheduled")

	<-ctx.Done()
	c.Stop()
	e.logger.Info().Msg("evictor stopped")
	return ctx.Err()
}

// RunOnce evicts snapshots of every active FS policy and returns the total
// removed. A failing policy is logged and skipped.
func (e *Evictor) RunOnce(ctx context.Context) (int, error) {
	policies, err := e.policies.ListActive(ctx, models.ReplicationTypeFS)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active FS policies")
	}

	total := 0
	for _, p := range policies {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := e.evict(ctx, p)
		if err != nil {
			e.logger.Warn().Err(err).Str("policy", p.Name).Msg("snapshot eviction skipped")
			continue
		}
		e.metrics.RecordEvicted("source", res.Source)
		e.metrics.RecordEvicted("target", res.Target)
		total += res.Source + res.Target
	}
	return total, nil
}

func (e *Evictor) evict(ctx context.Context, p models.Policy) (fs.Eviction, error) {
	stages, err := e.builder.Build(ctx, p)
	if err != nil {
		return fs.Eviction{}, err
	}
	logger := e.logger.With().Str("policy", p.Name).Logger()

	var out fs.Eviction
	for _, d := range stages {
		j, err := fs.New(d, e.deps, logger)
		if err != nil {
			return out, err
		}
		res, err := j.EvictSnapshots(ctx)
		if err != nil {
			return out, err
		}
		out.Source += res.Source
		out.Target += res.Target
	}
	return out, nil
}
