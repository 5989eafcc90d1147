package sched

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"tickwork/internal/history"
)

// JobInfo is a diagnostic view of one registered job.
type JobInfo struct {
	ID    uuid.UUID
	Name  string
	Spec  string
	State JobState
	Next  time.Time
	Prev  time.Time
}

// Snapshot is a point-in-time diagnostic view of the scheduler.
type Snapshot struct {
	State      RunState
	Resolution time.Duration
	Jobs       []JobInfo
	History    []history.Item
}

func (s *Scheduler) Snapshot() Snapshot {
	recs := s.registry.all()
	jobs := make([]JobInfo, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		info := JobInfo{
			ID:    rec.job.id,
			Name:  rec.job.name,
			Spec:  rec.job.schedule.Spec(),
			State: rec.jobState(),
			Next:  rec.nextFire,
			Prev:  rec.lastFire,
		}
		rec.mu.Unlock()
		jobs = append(jobs, info)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })

	return Snapshot{
		State:      s.State(),
		Resolution: s.resolution,
		Jobs:       jobs,
		History:    s.ring.Items(),
	}
}
