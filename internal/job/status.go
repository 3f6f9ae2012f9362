package job

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job instance.
type Status string

const (
	StatusInit    Status = "INIT"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusKilled  Status = "KILLED"
	StatusIgnored Status = "IGNORED"
)

// Final reports whether no further transition is possible from s.
func (s Status) Final() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusKilled, StatusIgnored:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

func ParseStatus(v string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(v))); s {
	case StatusInit, StatusRunning, StatusSuccess, StatusFailed, StatusKilled, StatusIgnored:
		return s, nil
	default:
		return "", fmt.Errorf("unknown job status %q", v)
	}
}
