package calendar

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Snapshot is an immutable view of a projection. Merges that change nothing
// keep the same *Snapshot; any change produces a new one.
type Snapshot struct {
	tasks map[string]*Task
}

func newSnapshot(tasks []Task) *Snapshot {
	s := &Snapshot{tasks: make(map[string]*Task, len(tasks))}
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
	}
	return s
}

func (s *Snapshot) Get(id string) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Snapshot) Len() int {
	return len(s.tasks)
}

// Tasks returns the records ordered by id.
func (s *Snapshot) Tasks() []*Task {
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// with returns a copy where id maps to t, or is absent when t is nil.
func (s *Snapshot) with(id string, t *Task) *Snapshot {
	next := &Snapshot{tasks: make(map[string]*Task, len(s.tasks)+1)}
	for k, v := range s.tasks {
		next.tasks[k] = v
	}
	if t == nil {
		delete(next.tasks, id)
	} else {
		next.tasks[id] = t
	}
	return next
}

// children indexes tasks by parent id.
func (s *Snapshot) children() map[string][]*Task {
	idx := make(map[string][]*Task)
	for _, t := range s.tasks {
		if t.ParentID != nil {
			idx[*t.ParentID] = append(idx[*t.ParentID], t)
		}
	}
	return idx
}

// ScopeCache holds the last snapshot of every scope for the whole process so
// that a calendar opened again shows its tasks without refetching. Writes are
// last-write-wins; concurrent loads of one scope share a single fetch.
type ScopeCache struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot
	group   singleflight.Group
}

func NewScopeCache() *ScopeCache {
	return &ScopeCache{entries: make(map[string]*Snapshot)}
}

func (c *ScopeCache) Get(key string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *ScopeCache) Store(key string, s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = s
}

func (c *ScopeCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Load returns the cached snapshot or runs fetch once for all concurrent
// callers and caches its result.
func (c *ScopeCache) Load(ctx context.Context, key string, fetch func(ctx context.Context) (*Snapshot, error)) (*Snapshot, bool, error) {
	if s, ok := c.Get(key); ok {
		return s, true, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if s, ok := c.Get(key); ok {
			return s, nil
		}
		s, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Store(key, s)
		return s, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Snapshot), false, nil
}
