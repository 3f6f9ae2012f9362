package job

// ExecutionType tells a first attempt of an external copy job from one
// started during recovery.
type ExecutionType string

const (
	ExecutionMain     ExecutionType = "MAIN"
	ExecutionRecovery ExecutionType = "RECOVERY"
)

// ExecutionDetails is the outcome record of one job stage. JobID and
// ExecutionType are omitted from JSON when no external job was started.
type ExecutionDetails struct {
	Status        Status        `json:"jobStatus"`
	Message       string        `json:"message,omitempty"`
	JobID         string        `json:"jobId,omitempty"`
	ExecutionType ExecutionType `json:"jobExecutionType,omitempty"`
}

func NewExecutionDetails(status Status, message string) *ExecutionDetails {
	return &ExecutionDetails{Status: status, Message: message}
}

// WithJob attaches the handle of an external job.
func (d *ExecutionDetails) WithJob(id string, typ ExecutionType) *ExecutionDetails {
	d.JobID = id
	d.ExecutionType = typ
	return d
}
