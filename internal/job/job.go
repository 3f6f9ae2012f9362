package job

import (
	"context"
	"errors"
)

// ErrInterrupted is returned by a job that observed cancellation before a
// blocking step.
var ErrInterrupted = errors.New("interrupted")

// Job is one stage of a replication instance.
//
// Init acquires what the stage needs. Perform runs one attempt and
// Recover resumes after a crash from the persisted side channel. Cleanup
// releases everything acquired in Init and must tolerate being called on
// a partially initialized job or more than once.
type Job interface {
	Init(ctx context.Context, jc *Context) error
	Perform(ctx context.Context, jc *Context) error
	Cleanup(ctx context.Context, jc *Context) error
	Recover(ctx context.Context, jc *Context) error
}

// CheckInterrupted returns ErrInterrupted once ctx is done. Jobs call it
// before every remote command.
func CheckInterrupted(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// IsInterrupted reports whether err stems from cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
