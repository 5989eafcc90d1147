package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNotifyDispatchOrderAndKinds(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()

	var mu sync.Mutex
	var got []string
	cb := func(tag string) NotifyFunc {
		return func(_, _ uuid.UUID, _ NotifyKind) {
			mu.Lock()
			got = append(got, tag)
			mu.Unlock()
		}
	}

	n.add(jobID, OnStart, cb("a"), nil)
	n.add(jobID, OnStart, cb("b"), nil)
	n.add(jobID, OnDone, cb("done"), nil)

	n.dispatch(jobID, OnStart, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("dispatch order = %v, want [a b]", got)
	}
}

func TestNotifyRemoveIdempotent(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()
	id := n.add(jobID, OnDone, func(_, _ uuid.UUID, _ NotifyKind) {}, nil)

	if !n.remove(jobID, id) {
		t.Fatal("first remove should report true")
	}
	if n.remove(jobID, id) {
		t.Fatal("second remove should report false")
	}
	if n.remove(jobID, uuid.New()) {
		t.Fatal("removing an unknown id should report false")
	}
}

func TestNotifyRemovedBeforeEventNeverFires(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()

	fired := false
	id := n.add(jobID, OnStart, func(_, _ uuid.UUID, _ NotifyKind) { fired = true }, nil)
	n.remove(jobID, id)
	n.dispatch(jobID, OnStart, nil)

	if fired {
		t.Fatal("deactivated notification fired")
	}
}

// A callback may remove itself from inside its own invocation: removal only
// flips the active flag, it never mutates the list being iterated.
func TestNotifySelfRemoval(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()

	count := 0
	n.add(jobID, OnStart, func(jID, nID uuid.UUID, _ NotifyKind) {
		count++
		if !n.remove(jID, nID) {
			t.Error("self-removal should report true on first firing")
		}
	}, nil)

	n.dispatch(jobID, OnStart, nil)
	n.dispatch(jobID, OnStart, nil)

	if count != 1 {
		t.Fatalf("callback fired %d times, want once", count)
	}
}

func TestNotifyPanicDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()

	n.add(jobID, OnDone, func(_, _ uuid.UUID, _ NotifyKind) { panic("boom") }, nil)
	sibling := false
	n.add(jobID, OnDone, func(_, _ uuid.UUID, _ NotifyKind) { sibling = true }, nil)

	var sunk error
	n.dispatch(jobID, OnDone, func(err error) { sunk = err })

	if !sibling {
		t.Fatal("sibling callback did not fire after a panic")
	}
	if sunk == nil {
		t.Fatal("panic was not reported to the sink")
	}
}

// A snapshot taken before the job's index is dropped still dispatches: this
// is what keeps a run's final OnDone alive when a removal races the run's
// closing state transition.
func TestNotifySnapshotOutlivesDrop(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()

	fired := false
	n.add(jobID, OnDone, func(_, _ uuid.UUID, _ NotifyKind) { fired = true }, nil)
	n.add(jobID, OnStart, func(_, _ uuid.UUID, _ NotifyKind) { t.Error("wrong kind captured") }, nil)

	list := n.snapshot(jobID, OnDone)
	if len(list) != 1 {
		t.Fatalf("snapshot captured %d callbacks, want 1", len(list))
	}
	n.drop(jobID)
	n.dispatchList(list, nil)

	if !fired {
		t.Fatal("snapshotted callback did not fire after the index was dropped")
	}
}

func TestNotifyAsyncLaunchedBeforeReturn(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	jobID := uuid.New()

	ran := make(chan struct{})
	n.add(jobID, OnStart, nil, func(_, _ uuid.UUID, _ NotifyKind) <-chan struct{} {
		done := make(chan struct{})
		go func() {
			close(ran)
			close(done)
		}()
		return done
	})

	n.dispatch(jobID, OnStart, nil)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("async callback was not scheduled")
	}
}

func TestNotifyPreRegistrationInert(t *testing.T) {
	t.Parallel()
	n := newNotifyRegistry()
	ghost := uuid.New() // job never added anywhere

	fired := false
	n.add(ghost, OnRemoved, func(_, _ uuid.UUID, _ NotifyKind) { fired = true }, nil)

	// Dispatching for some other job must not touch it.
	n.dispatch(uuid.New(), OnRemoved, nil)
	if fired {
		t.Fatal("detached notification fired for an unrelated job")
	}
	if n.countForJob(ghost) != 1 {
		t.Fatal("detached notification should remain registered")
	}
}
