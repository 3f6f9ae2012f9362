package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/repository"
)

type Event struct {
	PolicyName string
	Event      models.NotificationEvent
	Severity   models.NotificationSeverity
	Title      string
	Message    string
	Metadata   map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyPolicySubmitted(ctx context.Context, policy models.Policy) error
	NotifyInstanceStarted(ctx context.Context, policyName, instanceID string) error
	NotifyInstanceCompleted(ctx context.Context, policyName, instanceID string, status job.Status, message string) error
	ListRecent(ctx context.Context, policyName string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

// Publish persists the event and then hands it to every notifier.
// Delivery failures are logged and never fail the publish.
func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	message := strings.TrimSpace(evt.Message)
	if title == "" {
		title = string(evt.Event)
	}
	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  message,
		Metadata: evt.Metadata,
	}
	if name := strings.TrimSpace(evt.PolicyName); name != "" {
		params.PolicyName = &name
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyPolicySubmitted(ctx context.Context, policy models.Policy) error {
	_, err := s.Publish(ctx, Event{
		PolicyName: policy.Name,
		Event:      models.NotificationEventPolicySubmitted,
		Title:      fmt.Sprintf("Policy submitted: %s", policy.Name),
		Message:    fmt.Sprintf("%s policy %s replicates %s from %s to %s.", policy.Type, policy.Name, policy.SourceDataset, policy.SourceCluster, policy.TargetCluster),
		Metadata: map[string]interface{}{
			"type":           string(policy.Type),
			"source_cluster": policy.SourceCluster,
			"target_cluster": policy.TargetCluster,
		},
	})
	return err
}

func (s *service) NotifyInstanceStarted(ctx context.Context, policyName, instanceID string) error {
	_, err := s.Publish(ctx, Event{
		PolicyName: policyName,
		Event:      models.NotificationEventInstanceStarted,
		Title:      fmt.Sprintf("Replication started: %s", policyName),
		Message:    fmt.Sprintf("Instance %s of policy %s has started.", instanceID, policyName),
		Metadata:   map[string]interface{}{"instance_id": instanceID},
	})
	return err
}

func (s *service) NotifyInstanceCompleted(ctx context.Context, policyName, instanceID string, status job.Status, message string) error {
	evt := Event{
		PolicyName: policyName,
		Metadata: map[string]interface{}{
			"instance_id": instanceID,
			"status":      status.String(),
		},
	}
	switch status {
	case job.StatusSuccess:
		evt.Event = models.NotificationEventInstanceSucceeded
		evt.Title = fmt.Sprintf("Replication succeeded: %s", policyName)
		evt.Message = fmt.Sprintf("Instance %s of policy %s completed successfully.", instanceID, policyName)
	case job.StatusIgnored:
		evt.Event = models.NotificationEventInstanceIgnored
		evt.Title = fmt.Sprintf("Replication skipped: %s", policyName)
		evt.Message = fmt.Sprintf("Instance %s of policy %s had nothing to replicate.", instanceID, policyName)
	case job.StatusKilled:
		evt.Event = models.NotificationEventInstanceKilled
		evt.Severity = models.NotificationSeverityWarning
		evt.Title = fmt.Sprintf("Replication killed: %s", policyName)
		evt.Message = fmt.Sprintf("Instance %s of policy %s was killed.", instanceID, policyName)
	case job.StatusFailed:
		reason := strings.TrimSpace(message)
		if reason == "" {
			reason = "Unknown error"
		}
		evt.Event = models.NotificationEventInstanceFailed
		evt.Severity = models.NotificationSeverityError
		evt.Title = fmt.Sprintf("Replication failed: %s", policyName)
		evt.Message = fmt.Sprintf("Instance %s of policy %s failed: %s", instanceID, policyName, reason)
		evt.Metadata["reason"] = reason
	default:
		return fmt.Errorf("status %s is not final", status)
	}
	_, err := s.Publish(ctx, evt)
	return err
}

func (s *service) ListRecent(ctx context.Context, policyName string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, policyName, limit)
}

func (s *service) MarkRead(ctx context.Context, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, notificationID)
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
