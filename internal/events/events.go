// Package events provides the in-process publish/subscribe bus shared by the
// cascade manager, the calendar engines and the HTTP layer.
package events

import (
	"context"
	"log"
	"sync"
)

// Topic names a kind of event.
type Topic string

const (
	// TopicRemoved is published after a cached entity row is removed or trashed.
	TopicRemoved Topic = "removed"
	// TopicRestored is published after a trashed entity row is restored.
	TopicRestored Topic = "restored"
	// TopicTaskHint carries task field values saved by another component.
	TopicTaskHint Topic = "task.hint"
)

// Event is a single bus message.
type Event struct {
	Topic   Topic
	Payload any
}

// RemovedPayload identifies a row that list views should drop.
type RemovedPayload struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	Permanent bool   `json:"permanent"`
}

// RestoredPayload identifies a row that came back from the trash.
type RestoredPayload struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

// Handler handles one event.
type Handler func(ctx context.Context, event Event)

// Bus is the injected publish/subscribe interface.
type Bus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler and returns a function that removes it.
	Subscribe(topic Topic, handler Handler) func()
}

type subscription struct {
	id      uint64
	handler Handler
}

// MemoryBus delivers events synchronously to the handlers registered in this process.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[Topic][]subscription
	nextID   uint64
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[Topic][]subscription),
	}
}

// Subscribe registers a handler for a topic.
func (b *MemoryBus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *MemoryBus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == id {
			kept := make([]subscription, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			kept = append(kept, subs[i+1:]...)
			b.handlers[topic] = kept
			return
		}
	}
}

// Publish runs every handler for the event's topic in registration order.
// A panicking handler is logged and does not stop the others.
func (b *MemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := b.handlers[event.Topic]
	b.mu.RUnlock()

	for _, s := range subs {
		func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] Handler panic for %s: %v", event.Topic, r)
				}
			}()
			h(ctx, event)
		}(s.handler)
	}
}

// HandlerCount returns the number of handlers for a topic.
func (b *MemoryBus) HandlerCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
