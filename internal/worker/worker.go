package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/metrics"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/repository"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"github.com/stanstork/stratum-replicator/internal/temporal/workflows"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// WorkflowStarter starts workflows. client.Client satisfies it.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	TaskQueue    string
}

// Scheduler polls for due policies and starts one replication workflow
// per due policy.
type Scheduler struct {
	cfg      SchedulerConfig
	policies repository.PolicyRepository
	starter  WorkflowStarter
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

func NewScheduler(cfg SchedulerConfig, policies repository.PolicyRepository, starter WorkflowStarter, m *metrics.Collector, logger zerolog.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = temporal.TaskQueueName
	}
	return &Scheduler{
		cfg:      cfg,
		policies: policies,
		starter:  starter,
		metrics:  m,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().Dur("poll_interval", s.cfg.PollInterval).Msg("scheduler started, polling for due policies")
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error().Err(err).Msg("error scheduling policies")
			}
		}
	}
}

// Tick claims the due policies and starts their workflows. It returns how
// many workflows were started.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.policies.ClaimDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, d := range due {
		ok, err := s.start(ctx, d)
		if err != nil {
			s.logger.Error().Err(err).Str("policy", d.Policy.Name).Int64("sequence", d.Sequence).Msg("failed to start replication workflow")
			continue
		}
		if ok {
			started++
		}
	}

	s.refreshGauges(ctx)
	return started, nil
}

func (s *Scheduler) start(ctx context.Context, d repository.DuePolicy) (bool, error) {
	opts := client.StartWorkflowOptions{
		ID:                                       temporal.WorkflowID(d.Policy.Name),
		TaskQueue:                                s.cfg.TaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	params := temporal.WorkflowParams{PolicyName: d.Policy.Name, InstanceSeq: d.Sequence}

	run, err := s.starter.ExecuteWorkflow(ctx, opts, workflows.ReplicationWorkflow, params)
	var running *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &running) {
		s.logger.Info().Str("policy", d.Policy.Name).Msg("previous instance still running, skipping")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info().
		Str("policy", d.Policy.Name).
		Int64("sequence", d.Sequence).
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Msg("replication workflow started")
	return true, nil
}

func (s *Scheduler) refreshGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	for _, typ := range []models.ReplicationType{models.ReplicationTypeFS, models.ReplicationTypeHive} {
		active, err := s.policies.ListActive(ctx, typ)
		if err != nil {
			s.logger.Warn().Err(err).Str("type", string(typ)).Msg("failed to count active policies")
			continue
		}
		s.metrics.SetActivePolicies(string(typ), len(active))
	}
}
