package sched

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tickwork/internal/eventbus"
	"tickwork/internal/history"
	"tickwork/pkg/logx"
)

const defaultResolution = 500 * time.Millisecond

// Scheduler ties the registries, the tick loop and the dispatcher together.
type Scheduler struct {
	log logx.Logger
	bus eventbus.Bus
	now func() time.Time

	resolution  time.Duration
	historySize int

	registry *registry
	notify   *notifyRegistry

	ring      *history.Ring
	recorders []history.Recorder

	state    atomic.Int32
	stopCh   chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
	running  atomic.Int32 // dispatches currently in flight

	hookMu sync.Mutex
	hook   func()

	failWarn *logx.Throttle
}

type Option func(*Scheduler)

// WithResolution sets the tick granularity; due jobs are detected at this
// cadence, not continuously.
func WithResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.resolution = d
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithBus publishes lifecycle events (see the Event* constants) to bus.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithHistorySize bounds the in-memory run history ring.
func WithHistorySize(n int) Option {
	return func(s *Scheduler) { s.historySize = n }
}

// WithRecorder adds an extra run-history recorder (e.g. the SQLite store).
func WithRecorder(rec history.Recorder) Option {
	return func(s *Scheduler) {
		if rec != nil {
			s.recorders = append(s.recorders, rec)
		}
	}
}

// WithClock overrides the time source. Tests use this to drive due-set
// computation deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:        logx.Nop(),
		now:        time.Now,
		resolution: defaultResolution,
		registry:   newRegistry(),
		notify:     newNotifyRegistry(),
		stopCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
		failWarn:   logx.NewThrottle(time.Minute, 3),
	}
	for _, o := range opts {
		o(s)
	}
	s.ring = history.NewRing(s.historySize)
	s.recorders = append([]history.Recorder{s.ring}, s.recorders...)
	return s
}

func (s *Scheduler) State() RunState {
	return RunState(s.state.Load())
}

// Add registers the job with its first fire time computed from the current
// clock. A one-shot whose instant already elapsed is stored inert and will
// simply never fire.
func (s *Scheduler) Add(j *Job) (uuid.UUID, error) {
	var nf time.Time
	if next, ok := j.schedule.Next(s.now()); ok {
		nf = next
	}
	if err := s.registry.add(j, nf); err != nil {
		return uuid.Nil, err
	}
	s.log.Debug("job added",
		logx.String("job", j.name),
		logx.String("id", j.id.String()),
		logx.String("spec", j.schedule.Spec()),
		logx.Time("next", nf))
	return j.id, nil
}

// Remove takes the job out of the registry. A job that is mid-execution is
// only marked: the entry disappears immediately, the in-flight body keeps
// running and the dispatcher completes the removal (firing OnRemoved) when
// the body finishes.
func (s *Scheduler) Remove(id uuid.UUID) error {
	rec, deferred, err := s.registry.remove(id)
	if err != nil {
		return err
	}
	if deferred {
		s.log.Debug("job removal deferred until current run completes",
			logx.String("job", rec.job.name), logx.String("id", id.String()))
		return nil
	}
	s.finishRemoval(rec.job)
	s.notify.drop(id)
	return nil
}

// finishRemoval fires OnRemoved callbacks and publishes the removal. The
// caller decides when the notification index is dropped (the dispatcher keeps
// it alive until after the final OnDone).
func (s *Scheduler) finishRemoval(j *Job) {
	s.notify.dispatch(j.id, OnRemoved, s.notifySink(j))
	s.publish(EventJobRemoved, JobEvent{ID: j.id, Name: j.name})
	s.failWarn.Forget(j.id.String())
	s.log.Info("job removed", logx.String("job", j.name), logx.String("id", j.id.String()))
}

// NextTick reports the job's next fire instant; the zero time means the job
// has no future occurrence. Inside a running body the stored value still
// points at the occurrence being executed, so the result is recomputed from
// the current clock instead.
func (s *Scheduler) NextTick(id uuid.UUID) (time.Time, error) {
	rec, ok := s.registry.get(id)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if rec.jobState() == StateRunning {
		if next, ok := rec.job.schedule.Next(s.now()); ok {
			return next, nil
		}
		return time.Time{}, nil
	}
	rec.mu.Lock()
	nf := rec.nextFire
	rec.mu.Unlock()
	return nf, nil
}

// LastTick reports when the job last started executing; zero if it never ran.
func (s *Scheduler) LastTick(id uuid.UUID) (time.Time, error) {
	rec, ok := s.registry.get(id)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	rec.mu.Lock()
	lf := rec.lastFire
	rec.mu.Unlock()
	return lf, nil
}

// SetShutdownHook installs a callback invoked exactly once, after the loop
// has stopped and in-flight work has drained.
func (s *Scheduler) SetShutdownHook(fn func()) {
	s.hookMu.Lock()
	s.hook = fn
	s.hookMu.Unlock()
}

// Start launches the tick loop. It fails with ErrAlreadyStarted unless the
// scheduler is still in Created.
func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwap(int32(Created), int32(Started)) {
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, s.State())
	}
	go s.loop()
	s.log.Info("scheduler started",
		logx.Duration("resolution", s.resolution),
		logx.Int("jobs", s.registry.len()))
	s.publish(EventSchedulerStarted, nil)
	return nil
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	t := time.NewTicker(s.resolution)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.tick(s.now())
		}
	}
}

// tick computes the due set synchronously, which keeps ticks strictly ordered
// in time, then hands each due job to its own dispatch goroutine so a slow
// job never delays detection of the others.
func (s *Scheduler) tick(now time.Time) {
	for _, rec := range s.registry.listDue(now) {
		if !rec.markRunning() {
			continue
		}
		s.inflight.Add(1)
		s.running.Add(1)
		go func(rec *record) {
			defer s.inflight.Done()
			defer s.running.Add(-1)
			s.dispatch(rec)
		}(rec)
	}
}

// Shutdown stops the loop, waits for in-flight executions to drain (bounded
// by ctx; on expiry the remaining work is abandoned and reported, not
// silently dropped), runs the shutdown hook exactly once, then moves to
// Stopped. It fails with ErrNotRunning unless the scheduler is Started.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Started), int32(ShuttingDown)) {
		return fmt.Errorf("%w: state %s", ErrNotRunning, s.State())
	}
	s.log.Info("shutting down")
	close(s.stopCh)
	<-s.loopDone

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		// The scheduler's own counter, not the registry's view: a job removed
		// while its body runs is already gone from the registry but its
		// dispatch is still in flight.
		s.log.Warn("shutdown wait expired, abandoning in-flight jobs",
			logx.Int("running", int(s.running.Load())),
			logx.Err(ctx.Err()))
	}

	s.hookMu.Lock()
	hook := s.hook
	s.hookMu.Unlock()
	if hook != nil {
		hook()
	}

	s.state.Store(int32(Stopped))
	s.publish(EventSchedulerStopped, nil)
	s.log.Info("scheduler stopped")
	return nil
}

// Handle is the read-only scheduler view passed to job bodies.
type Handle struct {
	s *Scheduler
}

func (h *Handle) NextTick(id uuid.UUID) (time.Time, error) { return h.s.NextTick(id) }
func (h *Handle) LastTick(id uuid.UUID) (time.Time, error) { return h.s.LastTick(id) }

// Notification surface. Add always succeeds, even before the job itself is
// added (the callback stays detached and inert if the job never arrives);
// Remove reports whether a matching active notification was deactivated.

func (s *Scheduler) OnStartAdd(jobID uuid.UUID, fn NotifyFunc) uuid.UUID {
	return s.notify.add(jobID, OnStart, fn, nil)
}

func (s *Scheduler) OnStartAddAsync(jobID uuid.UUID, fn NotifyAsyncFunc) uuid.UUID {
	return s.notify.add(jobID, OnStart, nil, fn)
}

func (s *Scheduler) OnStartRemove(jobID, notificationID uuid.UUID) bool {
	return s.notify.remove(jobID, notificationID)
}

func (s *Scheduler) OnDoneAdd(jobID uuid.UUID, fn NotifyFunc) uuid.UUID {
	return s.notify.add(jobID, OnDone, fn, nil)
}

func (s *Scheduler) OnDoneAddAsync(jobID uuid.UUID, fn NotifyAsyncFunc) uuid.UUID {
	return s.notify.add(jobID, OnDone, nil, fn)
}

func (s *Scheduler) OnDoneRemove(jobID, notificationID uuid.UUID) bool {
	return s.notify.remove(jobID, notificationID)
}

func (s *Scheduler) OnRemovedAdd(jobID uuid.UUID, fn NotifyFunc) uuid.UUID {
	return s.notify.add(jobID, OnRemoved, fn, nil)
}

func (s *Scheduler) OnRemovedAddAsync(jobID uuid.UUID, fn NotifyAsyncFunc) uuid.UUID {
	return s.notify.add(jobID, OnRemoved, nil, fn)
}

func (s *Scheduler) OnRemovedRemove(jobID, notificationID uuid.UUID) bool {
	return s.notify.remove(jobID, notificationID)
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}

func (s *Scheduler) record(item history.Item) {
	for _, r := range s.recorders {
		r.Record(item)
	}
}

func (s *Scheduler) notifySink(j *Job) func(error) {
	return func(err error) {
		s.log.Warn("notification callback failed",
			logx.String("job", j.name),
			logx.String("id", j.id.String()),
			logx.Err(err))
	}
}
