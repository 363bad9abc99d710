// Package events carries post-commit mutation notifications to
// in-process subscribers.
package events

import (
	"sync"
	"time"
)

// Event describes one committed mutation.
type Event struct {
	ActionID   int64
	ActionType string
	WorkItemID string
	OccurredAt time.Time
}

// Bus fans events out to subscribers. Publish never blocks: a
// subscriber whose channel is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered channel and returns it with an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with room.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
