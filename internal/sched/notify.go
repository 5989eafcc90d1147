package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// notification is one registered callback. Removal flips active off instead
// of deleting the entry, so a dispatch already iterating the list never sees
// it vanish mid-flight; that is what lets a callback remove itself (or a
// sibling) from inside its own invocation.
type notification struct {
	id      uuid.UUID
	jobID   uuid.UUID
	kind    NotifyKind
	fn      NotifyFunc
	fnAsync NotifyAsyncFunc
	active  atomic.Bool
}

// notifyRegistry owns the job-id -> callbacks index. The job never references
// its notifications; ownership is strictly one-directional.
type notifyRegistry struct {
	mu    sync.RWMutex
	byJob map[uuid.UUID][]*notification
}

func newNotifyRegistry() *notifyRegistry {
	return &notifyRegistry{byJob: map[uuid.UUID][]*notification{}}
}

// add registers a callback for (jobID, kind). The job does not have to exist
// yet: pre-registered notifications stay detached and inert until (and
// unless) the job is added.
func (n *notifyRegistry) add(jobID uuid.UUID, kind NotifyKind, fn NotifyFunc, fnAsync NotifyAsyncFunc) uuid.UUID {
	nt := &notification{id: uuid.New(), jobID: jobID, kind: kind, fn: fn, fnAsync: fnAsync}
	nt.active.Store(true)
	n.mu.Lock()
	n.byJob[jobID] = append(n.byJob[jobID], nt)
	n.mu.Unlock()
	return nt.id
}

// remove deactivates a notification. It is idempotent: the second and later
// calls (or a wrong id) return false.
func (n *notifyRegistry) remove(jobID, id uuid.UUID) bool {
	n.mu.RLock()
	list := n.byJob[jobID]
	n.mu.RUnlock()
	for _, nt := range list {
		if nt.id == id {
			return nt.active.CompareAndSwap(true, false)
		}
	}
	return false
}

// dispatch invokes every active callback registered for (jobID, kind).
func (n *notifyRegistry) dispatch(jobID uuid.UUID, kind NotifyKind, sink func(error)) {
	n.dispatchList(n.snapshot(jobID, kind), sink)
}

// snapshot captures the callbacks currently registered for (jobID, kind).
// Holders of a snapshot can dispatch it after the job's index is dropped; the
// dispatcher relies on this for a run's final OnDone.
func (n *notifyRegistry) snapshot(jobID uuid.UUID, kind NotifyKind) []*notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*notification
	for _, nt := range n.byJob[jobID] {
		if nt.kind == kind {
			out = append(out, nt)
		}
	}
	return out
}

// dispatchList invokes a snapshot in insertion order. Synchronous callbacks
// all run before it returns; asynchronous ones are all launched before it
// returns. The active flag is checked per invocation, so deactivations up to
// this point still suppress the callback. A panicking callback is reported to
// sink and never blocks its siblings or the job itself.
func (n *notifyRegistry) dispatchList(list []*notification, sink func(error)) {
	for _, nt := range list {
		if !nt.active.Load() {
			continue
		}
		if nt.fnAsync != nil {
			go invokeAsync(nt, sink)
			continue
		}
		invoke(nt, sink)
	}
}

// drop discards a job's callback index once its OnRemoved callbacks have had
// their chance to fire.
func (n *notifyRegistry) drop(jobID uuid.UUID) {
	n.mu.Lock()
	delete(n.byJob, jobID)
	n.mu.Unlock()
}

func (n *notifyRegistry) countForJob(jobID uuid.UUID) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c := 0
	for _, nt := range n.byJob[jobID] {
		if nt.active.Load() {
			c++
		}
	}
	return c
}

func invoke(nt *notification, sink func(error)) {
	defer notifyRecover(nt, sink)
	nt.fn(nt.jobID, nt.id, nt.kind)
}

func invokeAsync(nt *notification, sink func(error)) {
	defer notifyRecover(nt, sink)
	done := nt.fnAsync(nt.jobID, nt.id, nt.kind)
	if done != nil {
		<-done
	}
}

func notifyRecover(nt *notification, sink func(error)) {
	if r := recover(); r != nil && sink != nil {
		sink(fmt.Errorf("notification %s (%s) panicked: %v", nt.id, nt.kind, r))
	}
}
