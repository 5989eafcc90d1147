package sched

import (
	"time"

	"github.com/google/uuid"

	"tickwork/internal/trigger"
)

// Job is a unit of schedulable work: an immutable schedule plus a body,
// either synchronous or asynchronous. Construct with NewJob, NewOneShot or
// NewRepeated (or their Async variants) and hand it to Scheduler.Add.
type Job struct {
	id       uuid.UUID
	name     string
	schedule trigger.Schedule
	timeout  time.Duration

	// exactly one of run / runAsync is non-nil
	run      JobFunc
	runAsync JobAsyncFunc
}

type JobOption func(*Job)

// WithID sets an explicit id. Adding two jobs with the same explicit id fails
// with ErrDuplicateJobID; auto-generated ids never collide.
func WithID(id uuid.UUID) JobOption {
	return func(j *Job) { j.id = id }
}

// WithName sets a display name used in logs, events and history.
func WithName(name string) JobOption {
	return func(j *Job) { j.name = name }
}

// WithTimeout bounds a single execution of the body via its context. The body
// still decides whether to honor cancellation; the dispatcher never kills it.
func WithTimeout(d time.Duration) JobOption {
	return func(j *Job) { j.timeout = d }
}

// NewJob creates a cron-triggered job from a six-field expression
// (seconds minutes hours day-of-month month day-of-week).
func NewJob(expr string, fn JobFunc, opts ...JobOption) (*Job, error) {
	s, err := trigger.ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return newJob(s, fn, nil, opts), nil
}

// NewJobAsync is NewJob with an asynchronous body.
func NewJobAsync(expr string, fn JobAsyncFunc, opts ...JobOption) (*Job, error) {
	s, err := trigger.ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return newJob(s, nil, fn, opts), nil
}

// NewOneShot creates a job that fires once, delay from now, then is removed.
func NewOneShot(delay time.Duration, fn JobFunc, opts ...JobOption) (*Job, error) {
	return NewOneShotAt(time.Now().Add(delay), fn, opts...)
}

// NewOneShotAsync is NewOneShot with an asynchronous body.
func NewOneShotAsync(delay time.Duration, fn JobAsyncFunc, opts ...JobOption) (*Job, error) {
	return NewOneShotAtAsync(time.Now().Add(delay), fn, opts...)
}

// NewOneShotAt creates a job that fires once at the given instant. An instant
// already in the past makes the job inert, not an error.
func NewOneShotAt(at time.Time, fn JobFunc, opts ...JobOption) (*Job, error) {
	return newJob(trigger.OneShot(at), fn, nil, opts), nil
}

// NewOneShotAtAsync is NewOneShotAt with an asynchronous body.
func NewOneShotAtAsync(at time.Time, fn JobAsyncFunc, opts ...JobOption) (*Job, error) {
	return newJob(trigger.OneShot(at), nil, fn, opts), nil
}

// NewRepeated creates a job that fires a fixed interval after each completed
// run.
func NewRepeated(every time.Duration, fn JobFunc, opts ...JobOption) (*Job, error) {
	s, err := trigger.Interval(every)
	if err != nil {
		return nil, err
	}
	return newJob(s, fn, nil, opts), nil
}

// NewRepeatedAsync is NewRepeated with an asynchronous body.
func NewRepeatedAsync(every time.Duration, fn JobAsyncFunc, opts ...JobOption) (*Job, error) {
	s, err := trigger.Interval(every)
	if err != nil {
		return nil, err
	}
	return newJob(s, nil, fn, opts), nil
}

func newJob(s trigger.Schedule, fn JobFunc, fnAsync JobAsyncFunc, opts []JobOption) *Job {
	j := &Job{schedule: s, run: fn, runAsync: fnAsync}
	for _, o := range opts {
		o(j)
	}
	if j.id == uuid.Nil {
		j.id = uuid.New()
	}
	if j.name == "" {
		j.name = s.Kind().String() + ":" + j.id.String()[:8]
	}
	return j
}

func (j *Job) ID() uuid.UUID              { return j.id }
func (j *Job) Name() string               { return j.name }
func (j *Job) Schedule() trigger.Schedule { return j.schedule }
