package jobbuilder

import (
	"errors"
	"fmt"
)

// ErrConfiguration classifies every error raised while building a job.
// Such errors fail fast and are never retried.
var ErrConfiguration = errors.New("invalid replication configuration")

// MissingPropertyError names a required property absent from a job.
type MissingPropertyError struct {
	Key string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("missing required property: %s", e.Key)
}

func (e *MissingPropertyError) Is(target error) bool {
	return target == ErrConfiguration
}

// InvalidPropertyError reports a property whose value cannot be used.
type InvalidPropertyError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidPropertyError) Error() string {
	return fmt.Sprintf("invalid value %q for property %s: %v", e.Value, e.Key, e.Err)
}

func (e *InvalidPropertyError) Unwrap() error { return e.Err }

func (e *InvalidPropertyError) Is(target error) bool {
	return target == ErrConfiguration
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
