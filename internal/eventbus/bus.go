// Package eventbus is an in-process fanout of domain events.
//
// Publish never blocks; subscribers use buffered channels and a slow
// subscriber drops events.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	RecordPublished   = "record.published"
	BroadcastFinished = "broadcast.finished"
	DeliveryFailed    = "delivery.failed"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// PublishedData accompanies RecordPublished.
type PublishedData struct {
	RecordID      int64
	Name          string
	ChannelPostID int
}

// BroadcastData accompanies BroadcastFinished.
type BroadcastData struct {
	JobID  string
	Name   string
	Total  int
	Sent   int
	Failed int
}

// DeliveryData accompanies DeliveryFailed.
type DeliveryData struct {
	ChatID    int64
	MessageID int
	Err       string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch    chan Event
	types map[string]bool
}

func (s *sub) wants(t string) bool { return len(s.types) == 0 || s.types[t] }

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*sub
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s.ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		// A concurrent unsubscribe may close ch.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

// Subscribe registers a subscriber for the given event types, or all types
// when none are given.
func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// Dropped returns how many events were dropped on full subscriber buffers.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
