package models

import (
	"fmt"
	"strings"
	"time"
)

type ReplicationType string

const (
	ReplicationTypeFS   ReplicationType = "FS"
	ReplicationTypeHive ReplicationType = "HIVE"
)

func ParseReplicationType(s string) (ReplicationType, error) {
	switch t := ReplicationType(strings.ToUpper(strings.TrimSpace(s))); t {
	case ReplicationTypeFS, ReplicationTypeHive:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported replication type %q", s)
	}
}

type PolicyStatus string

const (
	PolicyStatusSubmitted PolicyStatus = "SUBMITTED"
	PolicyStatusRunning   PolicyStatus = "RUNNING"
	PolicyStatusSuspended PolicyStatus = "SUSPENDED"
	PolicyStatusSucceeded PolicyStatus = "SUCCEEDED"
	PolicyStatusFailed    PolicyStatus = "FAILED"
	PolicyStatusDeleted   PolicyStatus = "DELETED"
)

// Active reports whether instances of the policy may still be scheduled.
func (s PolicyStatus) Active() bool {
	return s == PolicyStatusSubmitted || s == PolicyStatusRunning
}

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 30 // seconds
)

type Retry struct {
	Attempts int   `json:"attempts" yaml:"attempts"`
	Delay    int64 `json:"delay" yaml:"delay"` // seconds
}

func (r Retry) WithDefaults() Retry {
	if r.Attempts <= 0 {
		r.Attempts = DefaultRetryAttempts
	}
	if r.Delay <= 0 {
		r.Delay = DefaultRetryDelay
	}
	return r
}

type NotificationTarget struct {
	Type string `json:"type,omitempty" yaml:"type"`
	To   string `json:"to,omitempty" yaml:"to"`
}

type Policy struct {
	ID               string             `json:"id" db:"id"`
	Name             string             `json:"name" db:"name" yaml:"name"`
	Type             ReplicationType    `json:"type" db:"type" yaml:"type"`
	SourceDataset    string             `json:"sourceDataset" db:"source_dataset" yaml:"sourceDataset"`
	TargetDataset    string             `json:"targetDataset" db:"target_dataset" yaml:"targetDataset"`
	SourceCluster    string             `json:"sourceCluster" db:"source_cluster" yaml:"sourceCluster"`
	TargetCluster    string             `json:"targetCluster" db:"target_cluster" yaml:"targetCluster"`
	StartTime        *time.Time         `json:"startTime,omitempty" db:"start_time" yaml:"startTime"`
	EndTime          *time.Time         `json:"endTime,omitempty" db:"end_time" yaml:"endTime"`
	FrequencyInSec   int64              `json:"frequencyInSec" db:"frequency_in_sec" yaml:"frequencyInSec"`
	CustomProperties map[string]string  `json:"customProperties,omitempty" db:"custom_properties" yaml:"customProperties"`
	Retry            Retry              `json:"retry" db:"retry" yaml:"retry"`
	Notification     NotificationTarget `json:"notification,omitempty" db:"notification" yaml:"notification"`
	Status           PolicyStatus       `json:"status" db:"status"`
	NextRunAt        *time.Time         `json:"nextRunAt,omitempty" db:"next_run_at"`
	CreatedAt        time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time          `json:"updatedAt" db:"updated_at"`
}

// Property returns a custom property, or def when it is unset or blank.
func (p Policy) Property(key, def string) string {
	if v, ok := p.CustomProperties[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// ActiveDataset is the view of an active policy used for overlap detection.
type ActiveDataset struct {
	Policy        string          `json:"policy" db:"name"`
	Type          ReplicationType `json:"type" db:"type"`
	SourceDataset string          `json:"sourceDataset" db:"source_dataset"`
	TargetDataset string          `json:"targetDataset" db:"target_dataset"`
}

// JobDetails is the immutable, serializable description of one job stage
// built from a policy run.
type JobDetails struct {
	Identifier string            `json:"identifier"`
	Name       string            `json:"name"`
	Type       ReplicationType   `json:"type"`
	Properties map[string]string `json:"properties"`
}

func (d JobDetails) Property(key string) string {
	return d.Properties[key]
}
