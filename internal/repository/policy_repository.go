package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// DuePolicy is a policy claimed for a run together with the run sequence.
type DuePolicy struct {
	Policy   models.Policy
	Sequence int64
}

type PolicyRepository interface {
	Create(ctx context.Context, p models.Policy) (models.Policy, error)
	Get(ctx context.Context, name string) (models.Policy, error)
	List(ctx context.Context) ([]models.Policy, error)
	ListActive(ctx context.Context, typ models.ReplicationType) ([]models.Policy, error)
	UpdateStatus(ctx context.Context, name string, status models.PolicyStatus) error
	ActiveDatasets(ctx context.Context, typ models.ReplicationType) ([]models.ActiveDataset, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]DuePolicy, error)
}

type policyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) PolicyRepository {
	return &policyRepository{db: db}
}

const policyColumns = `id, name, type, source_dataset, target_dataset, source_cluster, target_cluster,
	start_time, end_time, frequency_in_sec, custom_properties, retry_attempts, retry_delay,
	notification_type, notification_to, status, next_run_at, created_at, updated_at`

func (r *policyRepository) Create(ctx context.Context, p models.Policy) (models.Policy, error) {
	props, err := json.Marshal(nonNilMap(p.CustomProperties))
	if err != nil {
		return models.Policy{}, fmt.Errorf("marshal custom properties: %w", err)
	}
	retry := p.Retry.WithDefaults()
	if p.Status == "" {
		p.Status = models.PolicyStatusSubmitted
	}
	next := p.NextRunAt
	if next == nil {
		first := time.Now().UTC()
		if p.StartTime != nil && p.StartTime.After(first) {
			first = *p.StartTime
		}
		next = &first
	}

	query := `
		INSERT INTO replication.policies (name, type, source_dataset, target_dataset, source_cluster, target_cluster,
			start_time, end_time, frequency_in_sec, custom_properties, retry_attempts, retry_delay,
			notification_type, notification_to, status, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + policyColumns
	row := r.db.QueryRowContext(ctx, query,
		p.Name, p.Type, p.SourceDataset, p.TargetDataset, p.SourceCluster, p.TargetCluster,
		p.StartTime, p.EndTime, p.FrequencyInSec, props, retry.Attempts, retry.Delay,
		p.Notification.Type, p.Notification.To, p.Status, next,
	)
	out, err := scanPolicy(row)
	return out, translate(err)
}

func (r *policyRepository) Get(ctx context.Context, name string) (models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM replication.policies WHERE name = $1 AND status <> 'DELETED'`
	p, err := scanPolicy(r.db.QueryRowContext(ctx, query, name))
	return p, translate(err)
}

func (r *policyRepository) List(ctx context.Context) ([]models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM replication.policies WHERE status <> 'DELETED' ORDER BY name`
	return r.queryPolicies(ctx, query)
}

func (r *policyRepository) ListActive(ctx context.Context, typ models.ReplicationType) ([]models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM replication.policies
		WHERE type = $1 AND status IN ('SUBMITTED', 'RUNNING') ORDER BY name`
	return r.queryPolicies(ctx, query, typ)
}

func (r *policyRepository) queryPolicies(ctx context.Context, query string, args ...interface{}) ([]models.Policy, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *policyRepository) UpdateStatus(ctx context.Context, name string, status models.PolicyStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE replication.policies SET status = $1, updated_at = NOW() WHERE name = $2 AND status <> 'DELETED'`,
		status, name,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveDatasets lists the datasets of every schedulable policy of a type.
func (r *policyRepository) ActiveDatasets(ctx context.Context, typ models.ReplicationType) ([]models.ActiveDataset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, type, source_dataset, target_dataset
		FROM replication.policies
		WHERE type = $1 AND status IN ('SUBMITTED', 'RUNNING')`, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActiveDataset
	for rows.Next() {
		var d models.ActiveDataset
		if err := rows.Scan(&d.Policy, &d.Type, &d.SourceDataset, &d.TargetDataset); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClaimDue locks due policies, advances their schedule and returns them
// with the sequence of the run to start. Rows locked by another scheduler
// are skipped. Policies past their end time are closed instead.
func (r *policyRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]DuePolicy, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `SELECT ` + policyColumns + `, last_sequence FROM replication.policies
		WHERE status IN ('SUBMITTED', 'RUNNING') AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select due policies")
	}

	var claimed []DuePolicy
	for rows.Next() {
		var d DuePolicy
		p, err := scanPolicy(rows, &d.Sequence)
		if err != nil {
			rows.Close()
			return nil, err
		}
		d.Policy = p
		claimed = append(claimed, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var due []DuePolicy
	for _, d := range claimed {
		p := d.Policy
		if p.EndTime != nil && !p.EndTime.After(now) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE replication.policies SET status = 'SUCCEEDED', next_run_at = NULL, updated_at = NOW() WHERE id = $1`,
				p.ID); err != nil {
				return nil, errors.Wrapf(err, "failed to close policy %s", p.Name)
			}
			continue
		}

		next := nextRun(*p.NextRunAt, p.FrequencyInSec, now)
		d.Sequence++
		if _, err := tx.ExecContext(ctx,
			`UPDATE replication.policies SET status = 'RUNNING', next_run_at = $1, last_sequence = $2, updated_at = NOW() WHERE id = $3`,
			next, d.Sequence, p.ID); err != nil {
			return nil, errors.Wrapf(err, "failed to advance policy %s", p.Name)
		}
		d.Policy.Status = models.PolicyStatusRunning
		d.Policy.NextRunAt = &next
		due = append(due, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit claimed policies")
	}
	return due, nil
}

// nextRun advances from by whole periods until it is after now, so that
// missed runs are skipped rather than replayed.
func nextRun(from time.Time, freqSec int64, now time.Time) time.Time {
	period := time.Duration(freqSec) * time.Second
	if period <= 0 {
		return now
	}
	next := from.Add(period)
	if next.After(now) {
		return next
	}
	missed := now.Sub(from) / period
	return from.Add((missed + 1) * period)
}

func scanPolicy(s rowScanner, extra ...interface{}) (models.Policy, error) {
	var (
		p         models.Policy
		props     []byte
		startTime sql.NullTime
		endTime   sql.NullTime
		nextRunAt sql.NullTime
	)
	dest := []interface{}{
		&p.ID,
		&p.Name,
		&p.Type,
		&p.SourceDataset,
		&p.TargetDataset,
		&p.SourceCluster,
		&p.TargetCluster,
		&startTime,
		&endTime,
		&p.FrequencyInSec,
		&props,
		&p.Retry.Attempts,
		&p.Retry.Delay,
		&p.Notification.Type,
		&p.Notification.To,
		&p.Status,
		&nextRunAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return models.Policy{}, err
	}
	if startTime.Valid {
		t := startTime.Time
		p.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		p.EndTime = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		p.NextRunAt = &t
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &p.CustomProperties); err != nil {
			return models.Policy{}, fmt.Errorf("unmarshal custom properties: %w", err)
		}
	}
	return p, nil
}
