package job

import (
	"context"
	"time"
)

// Mode selects between a regular attempt and crash recovery.
type Mode int

const (
	ModePerform Mode = iota
	ModeRecover
)

// Run drives j through init, perform or recover, and cleanup, then records
// the outcome in the side channel under KeyExecutionStatus.
//
// SUCCESS and IGNORED outcomes return a nil error. Any other outcome
// returns the underlying failure so callers can retry.
func Run(ctx context.Context, j Job, jc *Context, mode Mode) (ExecutionDetails, error) {
	logger := jc.Logger
	start := time.Now()
	begin(jc)

	if err := j.Init(ctx, jc); err != nil {
		if cerr := cleanup(j, jc); cerr != nil {
			logger.Warn().Err(cerr).Msg("cleanup after failed init")
		}
		return record(jc, err), err
	}

	var err error
	if err = CheckInterrupted(ctx); err == nil {
		if mode == ModeRecover {
			logger.Info().Int("attempt", jc.Attempt).Msg("recovering job")
			err = j.Recover(ctx, jc)
		} else {
			err = j.Perform(ctx, jc)
		}
	}

	if cerr := cleanup(j, jc); cerr != nil {
		logger.Warn().Err(cerr).Msg("cleanup failed")
	}

	details := record(jc, err)
	logger.Info().
		Str("status", details.Status.String()).
		Dur("elapsed", time.Since(start)).
		Msg("job finished")
	if details.Status == StatusSuccess || details.Status == StatusIgnored {
		return details, nil
	}
	return details, err
}

// cleanup uses its own context so it still runs after cancellation.
func cleanup(j Job, jc *Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return j.Cleanup(ctx, jc)
}

// begin marks the stage RUNNING. The external job handle of an earlier
// attempt is kept for recovery.
func begin(jc *Context) {
	d := ExecutionDetails{Status: StatusRunning}
	if prev := jc.ExecutionDetails(); prev != nil {
		d.JobID = prev.JobID
		d.ExecutionType = prev.ExecutionType
	}
	jc.SetExecutionDetails(&d)
}

// record merges err into whatever the job reported during this attempt.
func record(jc *Context, err error) ExecutionDetails {
	var d ExecutionDetails
	if prev := jc.ExecutionDetails(); prev != nil {
		d = *prev
	}

	switch {
	case err == nil:
		if d.Status != StatusIgnored {
			d.Status = StatusSuccess
		}
	case IsInterrupted(err):
		d.Status = StatusKilled
		d.Message = ErrInterrupted.Error()
	default:
		d.Status = StatusFailed
		d.Message = err.Error()
	}

	jc.SetExecutionDetails(&d)
	return d
}
