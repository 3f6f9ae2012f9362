package temporal

import (
	"encoding/json"
	"time"

	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// TaskQueueName is the default task queue for replication workflows.
const TaskQueueName = "REPLICATION"

// WorkflowIDPrefix prefixes the policy name in workflow IDs, so at most one
// instance of a policy runs at a time.
const WorkflowIDPrefix = "replication-"

// DefaultActivityTimeout bounds the bookkeeping activities.
const DefaultActivityTimeout = 5 * time.Minute

// StageTimeout bounds one attempt of a job stage. Copies can take hours.
const StageTimeout = 24 * time.Hour

// HeartbeatTimeout is how long a stage may go without heartbeating before
// the attempt is considered lost.
const HeartbeatTimeout = 2 * time.Minute

// ConfigErrorType is the application error type of configuration failures.
// Errors of this type are never retried.
const ConfigErrorType = "ConfigurationError"

// StageErrorType is the application error type of a failed stage attempt.
const StageErrorType = "StageFailed"

func WorkflowID(policyName string) string {
	return WorkflowIDPrefix + policyName
}

// WorkflowParams defines the input of ReplicationWorkflow.
type WorkflowParams struct {
	PolicyName  string
	InstanceSeq int64
}

// WorkflowResult is the outcome of one policy instance.
type WorkflowResult struct {
	InstanceID string
	Status     job.Status
	Message    string
}

// InstanceRef identifies the instance record created for a run.
type InstanceRef struct {
	InstanceID string
	PolicyID   string
	PolicyName string
	Type       models.ReplicationType
	StartTime  time.Time
}

// BuildResult holds the ordered job stages of a run and the retry settings
// of its policy.
type BuildResult struct {
	Stages []models.JobDetails
	Retry  models.Retry
}

// StageInput is the input of RunStageActivity. State carries the encoded
// job context produced by the previous stage.
type StageInput struct {
	InstanceID string
	PolicyName string
	Offset     int
	Stage      models.JobDetails
	State      json.RawMessage
}

// StageResult is returned by a stage that ended SUCCESS or IGNORED.
type StageResult struct {
	Details  job.ExecutionDetails
	State    json.RawMessage
	Tracking map[string]int64
}

// StageHeartbeat is recorded while a stage runs. A retried attempt resumes
// from the state of the last heartbeat.
type StageHeartbeat struct {
	Tracking map[string]int64
	State    json.RawMessage
}

// CompleteInput is the input of CompleteInstanceActivity.
type CompleteInput struct {
	Instance InstanceRef
	Status   job.Status
	Message  string
}
