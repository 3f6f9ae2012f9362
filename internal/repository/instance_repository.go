package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stanstork/stratum-replicator/internal/models"
)

type InstanceRepository interface {
	Create(ctx context.Context, inst models.PolicyInstance) (models.PolicyInstance, error)
	Get(ctx context.Context, id string) (models.PolicyInstance, error)
	Latest(ctx context.Context, policyName string) (models.PolicyInstance, error)
	ListByPolicy(ctx context.Context, policyName string, limit int) ([]models.PolicyInstance, error)
	UpdateProgress(ctx context.Context, id string, offset int, tracking map[string]int64, state json.RawMessage) error
	Complete(ctx context.Context, id, status, message string, end time.Time) error
	Stats(ctx context.Context, days int) (models.InstanceStat, error)
}

type instanceRepository struct {
	db *sql.DB
}

func NewInstanceRepository(db *sql.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

const instanceColumns = `id, policy_id, policy_name, type, sequence, status, message, start_time, end_time,
	current_offset, tracking, context, created_at, updated_at`

func (r *instanceRepository) Create(ctx context.Context, inst models.PolicyInstance) (models.PolicyInstance, error) {
	if inst.ID == "" {
		inst.ID = models.InstanceID(inst.PolicyID, inst.Sequence)
	}
	query := `
		INSERT INTO replication.instances (id, policy_id, policy_name, type, sequence, status, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING ` + instanceColumns
	row := r.db.QueryRowContext(ctx, query,
		inst.ID, inst.PolicyID, inst.PolicyName, inst.Type, inst.Sequence, inst.Status, inst.StartTime,
	)
	out, err := scanInstance(row)
	return out, translate(err)
}

func (r *instanceRepository) Get(ctx context.Context, id string) (models.PolicyInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM replication.instances WHERE id = $1`
	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	return inst, translate(err)
}

func (r *instanceRepository) Latest(ctx context.Context, policyName string) (models.PolicyInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM replication.instances
		WHERE policy_id = (SELECT id FROM replication.policies WHERE name = $1 AND status <> 'DELETED')
		ORDER BY start_time DESC, sequence DESC LIMIT 1`
	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, policyName))
	return inst, translate(err)
}

func (r *instanceRepository) ListByPolicy(ctx context.Context, policyName string, limit int) ([]models.PolicyInstance, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `SELECT ` + instanceColumns + ` FROM replication.instances
		WHERE policy_id = (SELECT id FROM replication.policies WHERE name = $1 AND status <> 'DELETED')
		ORDER BY start_time DESC, sequence DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, policyName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PolicyInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *instanceRepository) UpdateProgress(ctx context.Context, id string, offset int, tracking map[string]int64, state json.RawMessage) error {
	if tracking == nil {
		tracking = map[string]int64{}
	}
	trackingJSON, err := json.Marshal(tracking)
	if err != nil {
		return fmt.Errorf("marshal tracking: %w", err)
	}
	if len(state) == 0 {
		state = json.RawMessage("{}")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE replication.instances
		SET current_offset = $1, tracking = $2, context = $3, updated_at = NOW()
		WHERE id = $4`,
		offset, trackingJSON, []byte(state), id,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *instanceRepository) Complete(ctx context.Context, id, status, message string, end time.Time) error {
	var msg interface{}
	if message != "" {
		msg = message
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE replication.instances
		SET status = $1, message = $2, end_time = $3, updated_at = NOW()
		WHERE id = $4`,
		status, msg, end, id,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Stats aggregates instance outcomes over the last days.
func (r *instanceRepository) Stats(ctx context.Context, days int) (models.InstanceStat, error) {
	if days <= 0 {
		days = 7
	}
	var stat models.InstanceStat

	rows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc('day', start_time) AS day,
			COUNT(*) FILTER (WHERE status = 'SUCCESS'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'IGNORED'),
			COUNT(*) FILTER (WHERE status = 'KILLED'),
			COUNT(*) FILTER (WHERE status = 'RUNNING')
		FROM replication.instances
		WHERE start_time >= NOW() - make_interval(days => $1)
		GROUP BY day
		ORDER BY day`, days)
	if err != nil {
		return stat, err
	}
	defer rows.Close()

	for rows.Next() {
		var d models.InstanceStatDay
		if err := rows.Scan(&d.Day, &d.Succeeded, &d.Failed, &d.Ignored, &d.Killed, &d.Running); err != nil {
			return stat, err
		}
		stat.PerDay = append(stat.PerDay, d)
		stat.Succeeded += d.Succeeded
		stat.Failed += d.Failed
		stat.Ignored += d.Ignored
		stat.Killed += d.Killed
		stat.Running += d.Running
		stat.Total += d.Succeeded + d.Failed + d.Ignored + d.Killed + d.Running
	}
	if err := rows.Err(); err != nil {
		return stat, err
	}
	if stat.Total > 0 {
		stat.SuccessRate = float64(stat.Succeeded) / float64(stat.Total)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replication.policies WHERE status IN ('SUBMITTED', 'RUNNING')`,
	).Scan(&stat.ActivePolicies)
	return stat, err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstance(s rowScanner) (models.PolicyInstance, error) {
	var (
		inst     models.PolicyInstance
		message  sql.NullString
		endTime  sql.NullTime
		tracking []byte
		state    []byte
	)
	if err := s.Scan(
		&inst.ID,
		&inst.PolicyID,
		&inst.PolicyName,
		&inst.Type,
		&inst.Sequence,
		&inst.Status,
		&message,
		&inst.StartTime,
		&endTime,
		&inst.CurrentOffset,
		&tracking,
		&state,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return models.PolicyInstance{}, err
	}
	if message.Valid {
		m := message.String
		inst.Message = &m
	}
	if endTime.Valid {
		t := endTime.Time
		inst.EndTime = &t
	}
	if len(tracking) > 0 {
		if err := json.Unmarshal(tracking, &inst.Tracking); err != nil {
			return models.PolicyInstance{}, fmt.Errorf("unmarshal tracking: %w", err)
		}
	}
	if len(state) > 0 {
		inst.Context = json.RawMessage(state)
	}
	return inst, nil
}
