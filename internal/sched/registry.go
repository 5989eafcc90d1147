package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// record is the registry's view of one job. State transitions go through the
// atomic so dispatchers racing on the same job serialize without holding the
// registry lock across an execution.
type record struct {
	job   *Job
	state atomic.Int32

	mu           sync.Mutex // guards the fields below
	nextFire     time.Time  // zero = no future occurrence
	lastFire     time.Time
	removeOnDone bool
}

func (rec *record) jobState() JobState {
	return JobState(rec.state.Load())
}

// markRunning claims the job for one execution. Exactly one claim succeeds
// per due occurrence; a failed claim means another dispatch is in flight and
// this tick is skipped.
func (rec *record) markRunning() bool {
	return rec.state.CompareAndSwap(int32(StateScheduled), int32(StateRunning))
}

type registry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*record
}

func newRegistry() *registry {
	return &registry{jobs: map[uuid.UUID]*record{}}
}

func (r *registry) add(j *Job, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJobID, j.id)
	}
	rec := &record{job: j, nextFire: next}
	r.jobs[j.id] = rec
	return nil
}

func (r *registry) get(id uuid.UUID) (*record, bool) {
	r.mu.RLock()
	rec, ok := r.jobs[id]
	r.mu.RUnlock()
	return rec, ok
}

// remove takes the entry out of the map, so the job is immediately invisible
// to lookups and listDue. If the body is mid-execution the removal is
// deferred: the dispatcher finishes it (and fires OnRemoved) when the body
// completes.
func (r *registry) remove(id uuid.UUID) (rec *record, deferred bool, err error) {
	r.mu.Lock()
	rec, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(r.jobs, id)
	r.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.nextFire = time.Time{}
	// CAS, not a read: if a tick claimed the job concurrently the claim wins
	// and the removal lands in the deferred path.
	if rec.state.CompareAndSwap(int32(StateScheduled), int32(StateStopped)) {
		return rec, false, nil
	}
	rec.removeOnDone = true
	return rec, true, nil
}

// drop removes a completed one-shot (or exhausted schedule) entry. Unlike
// remove it is called by the dispatcher itself, after the body finished.
func (r *registry) drop(id uuid.UUID) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// listDue returns the records whose next fire time has arrived and that are
// not already running.
func (r *registry) listDue(now time.Time) []*record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []*record
	for _, rec := range r.jobs {
		if rec.jobState() != StateScheduled {
			continue
		}
		rec.mu.Lock()
		nf := rec.nextFire
		rec.mu.Unlock()
		if !nf.IsZero() && !nf.After(now) {
			due = append(due, rec)
		}
	}
	return due
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *registry) all() []*record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*record, 0, len(r.jobs))
	for _, rec := range r.jobs {
		out = append(out, rec)
	}
	return out
}
