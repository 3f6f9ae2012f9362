package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PolicyInstance is the stored record of one scheduled run of a policy.
type PolicyInstance struct {
	ID            string           `json:"instanceId" db:"id"`
	PolicyID      string           `json:"policyId" db:"policy_id"`
	PolicyName    string           `json:"name" db:"policy_name"`
	Type          ReplicationType  `json:"type" db:"type"`
	Sequence      int64            `json:"sequence" db:"sequence"`
	Status        string           `json:"status" db:"status"`
	Message       *string          `json:"message,omitempty" db:"message"`
	StartTime     time.Time        `json:"startTime" db:"start_time"`
	EndTime       *time.Time       `json:"endTime,omitempty" db:"end_time"`
	CurrentOffset int              `json:"currentOffset" db:"current_offset"`
	Tracking      map[string]int64 `json:"tracking,omitempty" db:"tracking"`
	Context       json.RawMessage  `json:"-" db:"context"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time        `json:"updatedAt" db:"updated_at"`
}

// InstanceID formats the identifier of the n-th run of a policy.
func InstanceID(policyID string, sequence int64) string {
	return fmt.Sprintf("%s@%d", policyID, sequence)
}
