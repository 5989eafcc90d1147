package sched

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrDuplicateJobID = errors.New("duplicate job id")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotRunning     = errors.New("scheduler not running")
)

// BodyError reports a job body that returned an error or panicked. It is
// routed to the error sinks (log, event bus, history) and never reaches the
// tick loop.
type BodyError struct {
	JobID uuid.UUID
	Name  string
	Err   error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("job %s (%s) body failed: %v", e.Name, e.JobID, e.Err)
}

func (e *BodyError) Unwrap() error { return e.Err }
