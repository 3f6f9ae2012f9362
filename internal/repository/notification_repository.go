package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stanstork/stratum-replicator/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	ListRecent(ctx context.Context, policyName string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (models.Notification, error)
}

type notificationRepository struct {
	db *sql.DB
}

type CreateNotificationParams struct {
	PolicyName *string
	Event      models.NotificationEvent
	Severity   models.NotificationSeverity
	Title      string
	Message    string
	Metadata   map[string]interface{}
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, policy_name, event_type, severity, title, message, metadata, created_at, read_at`

// DefaultNotificationLimit caps ListRecent when no sensible limit is given.
const DefaultNotificationLimit = 25

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	var metadata interface{}
	if len(params.Metadata) > 0 {
		raw, err := json.Marshal(params.Metadata)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = raw
	}

	query := `
		INSERT INTO replication.notifications (policy_name, event_type, severity, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + notificationColumns
	row := r.db.QueryRowContext(ctx, query,
		nullString(params.PolicyName), string(params.Event), string(params.Severity),
		params.Title, params.Message, metadata,
	)
	return scanNotification(row)
}

// ListRecent returns the newest notifications, optionally for one policy.
func (r *notificationRepository) ListRecent(ctx context.Context, policyName string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultNotificationLimit
	}
	query := `SELECT ` + notificationColumns + ` FROM replication.notifications
		WHERE $1 = '' OR policy_name = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(policyName), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID string) (models.Notification, error) {
	query := `UPDATE replication.notifications SET read_at = NOW() WHERE id = $1 RETURNING ` + notificationColumns
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, strings.TrimSpace(notificationID)))
	return n, translate(err)
}

// nullString maps a nil or blank name onto SQL NULL.
func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}

func scanNotification(s rowScanner) (models.Notification, error) {
	var (
		n          models.Notification
		policyName sql.NullString
		metadata   []byte
		readAt     sql.NullTime
	)
	err := s.Scan(&n.ID, &policyName, &n.EventType, &n.Severity, &n.Title, &n.Message, &metadata, &n.CreatedAt, &readAt)
	if err != nil {
		return models.Notification{}, err
	}
	if policyName.Valid {
		n.PolicyName = &policyName.String
	}
	if len(metadata) > 0 {
		n.Metadata = metadata
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	return n, nil
}
