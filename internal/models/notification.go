package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

type NotificationEvent string

const (
	NotificationEventInstanceStarted   NotificationEvent = "instance_started"
	NotificationEventInstanceSucceeded NotificationEvent = "instance_succeeded"
	NotificationEventInstanceFailed    NotificationEvent = "instance_failed"
	NotificationEventInstanceKilled    NotificationEvent = "instance_killed"
	NotificationEventInstanceIgnored   NotificationEvent = "instance_ignored"
	NotificationEventPolicySubmitted   NotificationEvent = "policy_submitted"
)

type Notification struct {
	ID         string               `json:"id" db:"id"`
	PolicyName *string              `json:"policyName,omitempty" db:"policy_name"`
	EventType  NotificationEvent    `json:"eventType" db:"event_type"`
	Severity   NotificationSeverity `json:"severity" db:"severity"`
	Title      string               `json:"title" db:"title"`
	Message    string               `json:"message" db:"message"`
	Metadata   json.RawMessage      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time            `json:"createdAt" db:"created_at"`
	ReadAt     *time.Time           `json:"readAt,omitempty" db:"read_at"`
}
