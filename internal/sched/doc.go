// Package sched implements the scheduling core: the job registry, the
// notification registry, the tick loop and the execution dispatcher.
//
// A Scheduler is an explicit handle; there is no ambient global instance, so
// multiple independent schedulers can coexist in one process (which is also
// how the tests run them side by side).
package sched
