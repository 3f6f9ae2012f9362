package conflict

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// DatasetSource lists the datasets of active policies of one replication type.
type DatasetSource interface {
	ActiveDatasets(ctx context.Context, typ models.ReplicationType) ([]models.ActiveDataset, error)
}

// Detector serializes policy activation so that the overlap check and the
// registration of the new policy happen as one step.
type Detector struct {
	mu     sync.Mutex
	source DatasetSource
	logger zerolog.Logger
}

func NewDetector(source DatasetSource, logger zerolog.Logger) *Detector {
	return &Detector{
		source: source,
		logger: logger.With().Str("component", "conflict_detector").Logger(),
	}
}

// Check returns a *ConflictError if the candidate overlaps any active policy
// of the same type.
func (d *Detector) Check(ctx context.Context, candidate models.ActiveDataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.check(ctx, candidate)
}

// Activate runs activate only when the candidate has no overlap. The active
// set is re-read for every call.
func (d *Detector) Activate(ctx context.Context, candidate models.ActiveDataset, activate func(context.Context) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(ctx, candidate); err != nil {
		return err
	}
	return activate(ctx)
}

func (d *Detector) check(ctx context.Context, candidate models.ActiveDataset) error {
	active, err := d.source.ActiveDatasets(ctx, candidate.Type)
	if err != nil {
		return errors.Wrap(err, "failed to list active datasets")
	}
	if err := Find(candidate, active); err != nil {
		d.logger.Warn().Err(err).Str("policy", candidate.Policy).Msg("dataset conflict detected")
		return err
	}
	return nil
}

// Find checks the candidate's source dataset against the target datasets
// of other active policies, so that nothing is replicated out of a directory
// another policy is writing into. Two policies writing into overlapping
// targets also conflict. Sharing a source is allowed.
func Find(candidate models.ActiveDataset, active []models.ActiveDataset) error {
	overlap := FSOverlap
	if candidate.Type == models.ReplicationTypeHive {
		overlap = HiveOverlap
	}

	for _, a := range active {
		if a.Policy == candidate.Policy || a.Type != candidate.Type || a.TargetDataset == "" {
			continue
		}
		if candidate.SourceDataset != "" && overlap(candidate.SourceDataset, a.TargetDataset) {
			return &ConflictError{Candidate: candidate.SourceDataset, Existing: a.TargetDataset, Policy: a.Policy}
		}
		if candidate.TargetDataset != "" && overlap(candidate.TargetDataset, a.TargetDataset) {
			return &ConflictError{Candidate: candidate.TargetDataset, Existing: a.TargetDataset, Policy: a.Policy}
		}
	}
	return nil
}
