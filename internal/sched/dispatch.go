package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tickwork/internal/history"
	"tickwork/pkg/logx"
)

// dispatch runs one due occurrence of a job. The caller has already claimed
// the record via markRunning, so no second execution of the same job can be
// in flight.
//
// Order per occurrence: OnStart, body, reschedule-or-remove, OnDone. The next
// fire time is recomputed from the completion instant, not the trigger
// instant, so a slow run pushes the schedule forward instead of piling up
// missed occurrences; at most one catch-up fires on the following tick.
func (s *Scheduler) dispatch(rec *record) {
	j := rec.job
	start := s.now()

	rec.mu.Lock()
	rec.lastFire = start
	rec.mu.Unlock()

	s.log.Debug("job started", logx.String("job", j.name), logx.String("id", j.id.String()))
	s.publish(EventJobStarted, JobEvent{ID: j.id, Name: j.name, Started: start})
	s.notify.dispatch(j.id, OnStart, s.notifySink(j))

	err := s.runBody(j)
	finish := s.now()
	dur := finish.Sub(start)

	item := history.Item{JobID: j.id, Name: j.name, Started: start, Duration: dur}
	if err != nil {
		berr := &BodyError{JobID: j.id, Name: j.name, Err: err}
		item.Error = err.Error()
		if s.failWarn.Allow(j.id.String()) {
			s.log.Warn("job failed", logx.String("job", j.name), logx.Duration("dur", dur), logx.Err(berr))
		}
		s.publish(EventJobFailed, JobEvent{ID: j.id, Name: j.name, Started: start, Duration: dur, Error: item.Error})
	} else {
		s.log.Debug("job completed", logx.String("job", j.name), logx.Duration("dur", dur))
		s.publish(EventJobCompleted, JobEvent{ID: j.id, Name: j.name, Started: start, Duration: dur})
	}
	s.record(item)

	// Capture OnDone callbacks while the job still counts as Running. A
	// Remove landing just after the state transition below drops the notify
	// index, and this run's OnDone must still fire.
	onDone := s.notify.snapshot(j.id, OnDone)

	// Resolve the job's fate under its lock so a concurrent Remove either
	// sees Running (and defers to us) or completes before we transition.
	rec.mu.Lock()
	removed := rec.removeOnDone
	expired := false
	if removed {
		rec.state.Store(int32(StateStopped))
	} else if next, ok := j.schedule.Next(finish); ok {
		rec.nextFire = next
		rec.state.Store(int32(StateScheduled))
	} else {
		// One-shot (or exhausted schedule): remove instead of rescheduling.
		expired = true
		rec.nextFire = time.Time{}
		rec.state.Store(int32(StateStopped))
	}
	rec.mu.Unlock()

	if expired {
		s.registry.drop(j.id)
	}
	if removed || expired {
		s.finishRemoval(j)
	}

	s.notify.dispatchList(onDone, s.notifySink(j))

	if removed || expired {
		s.notify.drop(j.id)
	}
}

// runBody executes the body with panic containment. Asynchronous bodies are
// waited on: the job does not count as done until the returned channel
// yields.
func (s *Scheduler) runBody(j *Job) (err error) {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panicked",
				logx.String("job", j.name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	h := &Handle{s: s}
	if j.runAsync != nil {
		done := j.runAsync(ctx, j.id, h)
		if done == nil {
			return nil
		}
		return <-done
	}
	return j.run(ctx, j.id, h)
}
