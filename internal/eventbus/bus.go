// Package eventbus decouples the scheduler core from host applications that
// want to observe job lifecycle events.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one lifecycle signal. Type names what happened (the scheduler
// uses its Event* constants) and Data carries the matching payload, small
// enough to copy per subscriber.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

type subscriber struct {
	id uint64
	ch chan Event
}

type memBus struct {
	mu   sync.RWMutex
	subs []subscriber
	seq  atomic.Uint64
}

// New returns an in-memory fanout bus. Delivery happens on the publisher's
// goroutine; the bus runs nothing in the background.
func New() Bus {
	return &memBus{}
}

// Publish hands e to every current subscriber without ever blocking the
// caller. A subscriber whose buffer is full misses the event.
func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.send(s.ch, e)
	}
}

// send delivers without blocking. Unsubscribe may close the channel
// concurrently, so a send panic is swallowed rather than synchronized away.
func (b *memBus) send(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	s := subscriber{id: b.seq.Add(1), ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs = append(append([]subscriber{}, b.subs...), s)
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			kept := make([]subscriber, 0, len(b.subs))
			for _, cur := range b.subs {
				if cur.id != s.id {
					kept = append(kept, cur)
				}
			}
			b.subs = kept
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}
