// Package history records completed job dispatches for diagnostics: a bounded
// in-memory ring the scheduler always keeps, plus an optional SQLite-backed
// run log for hosts that want executions to survive a restart. Jobs themselves
// are never persisted.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Item is one completed dispatch.
type Item struct {
	JobID    uuid.UUID     `json:"job_id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Recorder receives items as executions finish. Implementations must be safe
// for concurrent use; dispatch goroutines call Record independently.
type Recorder interface {
	Record(item Item)
}

// Ring is a bounded in-memory Recorder. The oldest items are trimmed once the
// bound is exceeded.
type Ring struct {
	mu    sync.Mutex
	max   int
	items []Item
}

const defaultRingSize = 200

func NewRing(max int) *Ring {
	if max <= 0 {
		max = defaultRingSize
	}
	return &Ring{max: max}
}

func (r *Ring) Record(item Item) {
	r.mu.Lock()
	r.items = append(r.items, item)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
	r.mu.Unlock()
}

// Items returns a copy, oldest first.
func (r *Ring) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
