package sched

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobState tracks one job's execution state. Running is held only while the
// body executes; the dispatcher's compare-and-set on this state is what
// suppresses overlapping executions.
type JobState int32

const (
	StateScheduled JobState = iota
	StateRunning
	StateStopped
)

func (s JobState) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// RunState is the scheduler lifecycle: Created -> Started -> ShuttingDown ->
// Stopped. Started is entered exactly once.
type RunState int32

const (
	Created RunState = iota
	Started
	ShuttingDown
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// NotifyKind selects which lifecycle event a notification is bound to.
type NotifyKind int

const (
	OnStart NotifyKind = iota
	OnDone
	OnRemoved
)

func (k NotifyKind) String() string {
	switch k {
	case OnStart:
		return "on_start"
	case OnDone:
		return "on_done"
	case OnRemoved:
		return "on_removed"
	}
	return "unknown"
}

// JobFunc is a synchronous job body. It receives its own id and a read-only
// scheduler handle so it can e.g. query its next occurrence; it must not
// close over the Scheduler itself.
type JobFunc func(ctx context.Context, id uuid.UUID, h *Handle) error

// JobAsyncFunc starts the body's work and returns a channel yielding the
// final result. The dispatcher waits on the channel: a job is not done until
// its work is, sync or async.
type JobAsyncFunc func(ctx context.Context, id uuid.UUID, h *Handle) <-chan error

// NotifyFunc is a synchronous notification callback.
type NotifyFunc func(jobID, notificationID uuid.UUID, kind NotifyKind)

// NotifyAsyncFunc launches a notification callback and returns a channel that
// is closed when its work completes. Dispatch only guarantees the launch, not
// the completion.
type NotifyAsyncFunc func(jobID, notificationID uuid.UUID, kind NotifyKind) <-chan struct{}

// Event types published on the event bus.
const (
	EventSchedulerStarted = "scheduler.started"
	EventSchedulerStopped = "scheduler.stopped"
	EventJobStarted       = "job.started"
	EventJobCompleted     = "job.completed"
	EventJobFailed        = "job.failed"
	EventJobRemoved       = "job.removed"
)

// JobEvent is the bus payload for job lifecycle events.
type JobEvent struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started,omitzero"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}
