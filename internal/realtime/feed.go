// Package realtime carries row-level change events from writers to the
// calendar engines, in process and across instances.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// ChangeEvent describes one row change on a table. New and Old hold the
// (possibly partial) row as JSON.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   EventType       `json:"type"`
	ID     string          `json:"id"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

// NewChangeEvent marshals the new row into an event.
func NewChangeEvent(table string, typ EventType, id string, row any) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Type: typ, ID: id}
	if row == nil {
		return ev, nil
	}
	data, err := json.Marshal(row)
	if err != nil {
		return ev, err
	}
	if typ == Delete {
		ev.Old = data
	} else {
		ev.New = data
	}
	return ev, nil
}

// Handler receives change events for one table.
type Handler func(ctx context.Context, ev ChangeEvent)

// Feed is the subscription side of the change feed.
type Feed interface {
	// Subscribe registers a handler and returns a function that removes it.
	Subscribe(table string, handler Handler) func()
}

// Publisher is the emitting side of the change feed.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Broker fans change events out to local subscribers and, when a forwarder is
// attached, to other instances.
type Broker struct {
	origin string

	mu      sync.RWMutex
	subs    map[string][]subscriber
	nextID  uint64
	forward Publisher
}

// NewBroker creates a broker with a fresh origin id.
func NewBroker() *Broker {
	return &Broker{
		origin: uuid.New().String(),
		subs:   make(map[string][]subscriber),
	}
}

// Origin identifies events emitted by this process.
func (b *Broker) Origin() string {
	return b.origin
}

// SetForwarder attaches a cross-instance publisher.
func (b *Broker) SetForwarder(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forward = p
}

func (b *Broker) Subscribe(table string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[table] = append(b.subs[table], subscriber{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[table]
			for i, s := range list {
				if s.id == id {
					b.subs[table] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers locally, then forwards. Local delivery always happens;
// the returned error is the forwarder's.
func (b *Broker) Publish(ctx context.Context, ev ChangeEvent) error {
	if ev.Origin == "" {
		ev.Origin = b.origin
	}
	b.Deliver(ctx, ev)

	b.mu.RLock()
	fwd := b.forward
	b.mu.RUnlock()
	if fwd == nil || ev.Origin != b.origin {
		return nil
	}
	return fwd.Publish(ctx, ev)
}

// Deliver hands the event to local subscribers only.
func (b *Broker) Deliver(ctx context.Context, ev ChangeEvent) {
	b.mu.RLock()
	list := b.subs[ev.Table]
	b.mu.RUnlock()

	for _, s := range list {
		func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[feed] Handler panic for %s %s: %v", ev.Table, ev.Type, r)
				}
			}()
			h(ctx, ev)
		}(s.handler)
	}
}
