package calendar

import (
	"context"
	"sync"

	"github.com/yukikurage/tasker/internal/events"
	"github.com/yukikurage/tasker/internal/realtime"
)

// Registry runs one engine per scope, all sharing one scope cache.
type Registry struct {
	source Source
	feed   realtime.Feed
	bus    events.Bus
	cache  *ScopeCache
	opts   Options

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewRegistry(source Source, feed realtime.Feed, bus events.Bus, opts Options) *Registry {
	return &Registry{
		source:  source,
		feed:    feed,
		bus:     bus,
		cache:   NewScopeCache(),
		opts:    opts,
		engines: make(map[string]*Engine),
	}
}

// Engine returns the started engine for a scope, starting it on first use.
func (r *Registry) Engine(ctx context.Context, scope Scope) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := scope.Key()
	if e, ok := r.engines[key]; ok {
		return e, nil
	}
	e := NewEngine(scope, r.source, r.feed, r.bus, r.cache, r.opts)
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	r.engines[key] = e
	return e, nil
}

// Close stops every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	for _, e := range engines {
		e.Close()
	}
}
