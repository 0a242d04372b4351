package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/yukikurage/tasker/internal/events"
	"github.com/yukikurage/tasker/internal/realtime"
)

var (
	ErrTaskNotFound = errors.New("task not in calendar")
	ErrClosed       = errors.New("calendar engine closed")
)

// taskEntity is the entity name trash events carry for tasks.
const taskEntity = "task"

// Source is the system of record behind a calendar.
type Source interface {
	// FetchScope returns every non-deleted task in the scope, fully joined.
	FetchScope(ctx context.Context, scope Scope) ([]Task, error)
	// FetchTask returns one joined task, or nil when it is missing or deleted.
	FetchTask(ctx context.Context, id string) (*Task, error)
	// UpdateDueDates sets the due date of all ids in one mutation.
	UpdateDueDates(ctx context.Context, ids []string, due time.Time) error
	// SetCompletion sets or clears the end timestamp.
	SetCompletion(ctx context.Context, id string, endAt *time.Time) error
}

// Hint is the payload of events.TopicTaskHint. Insert marks a genuinely new
// task, which may be added to a projection that does not know it yet.
type Hint struct {
	Patch  TaskPatch
	Insert bool
}

// Options tunes the suppression windows and hydration debounce.
type Options struct {
	// RecentWindow holds back feed payloads for ids edited locally.
	RecentWindow time.Duration
	// PauseWindow holds back all feed payloads right after a local action.
	PauseWindow time.Duration
	// HydrateDelay debounces the per-id full refetch.
	HydrateDelay time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func DefaultOptions() Options {
	return Options{
		RecentWindow: 6 * time.Second,
		PauseWindow:  900 * time.Millisecond,
		HydrateDelay: 140 * time.Millisecond,
	}
}

// Engine maintains the projection of one scope. Its mutex is never held
// while calling the source, the feed or the bus: those deliver synchronously
// and may call back into the engine.
type Engine struct {
	scope  Scope
	source Source
	feed   realtime.Feed
	bus    events.Bus
	cache  *ScopeCache
	opts   Options

	mu          sync.Mutex
	snap        *Snapshot
	sigs        map[string]Fingerprint
	recent      map[string]time.Time
	pausedUntil time.Time
	edits       map[string]uint64
	hydrations  map[string]*time.Timer
	stops       []func()
	started     bool
	closed      bool
}

// NewEngine creates an engine. feed and bus may be nil.
func NewEngine(scope Scope, source Source, feed realtime.Feed, bus events.Bus, cache *ScopeCache, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if cache == nil {
		cache = NewScopeCache()
	}
	return &Engine{
		scope:      scope,
		source:     source,
		feed:       feed,
		bus:        bus,
		cache:      cache,
		opts:       opts,
		snap:       newSnapshot(nil),
		sigs:       make(map[string]Fingerprint),
		recent:     make(map[string]time.Time),
		edits:      make(map[string]uint64),
		hydrations: make(map[string]*time.Timer),
	}
}

// Start loads the projection, from the scope cache when present, and
// subscribes to the feed and hint events.
func (e *Engine) Start(ctx context.Context) error {
	snap, cached, err := e.cache.Load(ctx, e.scope.Key(), func(ctx context.Context) (*Snapshot, error) {
		tasks, err := e.source.FetchScope(ctx, e.scope)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch calendar scope %s: %w", e.scope.Key(), err)
		}
		kept := make([]Task, 0, len(tasks))
		for _, t := range tasks {
			t = Normalize(t)
			if t.DeletedAt == nil && e.scope.Includes(t) {
				kept = append(kept, t)
			}
		}
		return newSnapshot(kept), nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.snap = snap
	e.sigs = make(map[string]Fingerprint, snap.Len())
	for id, t := range snap.tasks {
		e.sigs[id] = FingerprintOf(*t)
	}
	e.mu.Unlock()

	if cached {
		log.Printf("[calendar] Reusing cached projection for %s (%d tasks)", e.scope.Key(), snap.Len())
	} else {
		log.Printf("[calendar] Loaded projection for %s (%d tasks)", e.scope.Key(), snap.Len())
	}

	var stops []func()
	if e.feed != nil {
		stops = append(stops,
			e.feed.Subscribe("tasks", e.onTaskChange),
			e.feed.Subscribe("task_users", e.onLinkChange),
			e.feed.Subscribe("task_projects", e.onLinkChange),
		)
	}
	if e.bus != nil {
		stops = append(stops,
			e.bus.Subscribe(events.TopicTaskHint, e.onHint),
			e.bus.Subscribe(events.TopicRemoved, e.onRemoved),
			e.bus.Subscribe(events.TopicRestored, e.onRestored),
		)
	}
	e.mu.Lock()
	e.stops = stops
	e.mu.Unlock()
	return nil
}

// Close unsubscribes and stops pending hydrations. The cached snapshot stays.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	stops := e.stops
	e.stops = nil
	for id, timer := range e.hydrations {
		timer.Stop()
		delete(e.hydrations, id)
	}
	e.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// Snapshot returns the current projection.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// UpsertLocal merges a patch into the projection. A task unknown to the
// projection is added only with insert set. The returned pointer is the
// stored record, unchanged from before when the merged fingerprint matches;
// it is nil when the task is not (or no longer) in the projection.
func (e *Engine) UpsertLocal(patch TaskPatch, insert bool) (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upsertLocked(patch, insert)
}

func (e *Engine) upsertLocked(patch TaskPatch, insert bool) (*Task, bool) {
	if patch.ID == "" {
		return nil, false
	}
	prev, known := e.snap.Get(patch.ID)
	base := Task{ID: patch.ID}
	if known {
		base = *prev
	} else if !insert {
		return nil, false
	}

	merged := Normalize(patch.Apply(base))
	if merged.DeletedAt != nil || !e.scope.Includes(merged) {
		if known {
			e.removeLocked(patch.ID)
			return nil, true
		}
		return nil, false
	}

	sig := FingerprintOf(merged)
	if known && e.sigs[patch.ID] == sig {
		return prev, false
	}
	e.sigs[patch.ID] = sig
	e.snap = e.snap.with(patch.ID, &merged)
	e.cache.Store(e.scope.Key(), e.snap)
	return &merged, true
}

// Remove drops a task from the projection.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(id)
}

func (e *Engine) removeLocked(id string) bool {
	if _, ok := e.snap.Get(id); !ok {
		return false
	}
	delete(e.sigs, id)
	e.snap = e.snap.with(id, nil)
	e.cache.Store(e.scope.Key(), e.snap)
	return true
}

// markLocalLocked records a local edit of ids. Feed payloads for them are not
// merged during the recent window, nor any payload during the pause window;
// those events only schedule a fetch. Hydrations already in flight for ids
// become stale.
func (e *Engine) markLocalLocked(ids ...string) {
	now := e.opts.Clock()
	e.pausedUntil = now.Add(e.opts.PauseWindow)
	for _, id := range ids {
		e.recent[id] = now.Add(e.opts.RecentWindow)
		e.edits[id]++
	}
}

func (e *Engine) suppressedLocked(id string) bool {
	now := e.opts.Clock()
	if now.Before(e.pausedUntil) {
		return true
	}
	until, ok := e.recent[id]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(e.recent, id)
	return false
}

// ScheduleHydration refetches the task after the debounce delay. Repeated
// calls within the delay collapse into one fetch.
func (e *Engine) ScheduleHydration(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduleLocked(id)
}

func (e *Engine) scheduleLocked(id string) {
	if e.closed {
		return
	}
	if timer, ok := e.hydrations[id]; ok {
		timer.Reset(e.opts.HydrateDelay)
		return
	}
	e.hydrations[id] = time.AfterFunc(e.opts.HydrateDelay, func() { e.hydrate(id) })
}

// hydrate merges a full record. A result fetched before a newer local edit
// of the same id is dropped and the fetch is scheduled again.
func (e *Engine) hydrate(id string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	delete(e.hydrations, id)
	edit := e.edits[id]
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	task, err := e.source.FetchTask(ctx, id)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.edits[id] != edit {
		e.scheduleLocked(id)
		return
	}
	if err != nil {
		log.Printf("[calendar] Failed to hydrate task %s: %v", id, err)
		return
	}
	if task == nil {
		e.removeLocked(id)
		return
	}
	e.upsertLocked(FullPatch(*task), true)
}

// MoveResult reports a group move.
type MoveResult struct {
	IDs     []string  `json:"ids"`
	DueDate time.Time `json:"due_date"`
	Changed bool      `json:"changed"`
}

// Group returns the drag group of a task: its root ancestor and every
// transitive descendant of that root, ordered by id.
func (e *Engine) Group(id string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return groupOf(e.snap, id)
}

func groupOf(snap *Snapshot, id string) ([]string, error) {
	task, ok := snap.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	root := task
	seen := map[string]bool{root.ID: true}
	for root.ParentID != nil {
		parent, ok := snap.Get(*root.ParentID)
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		root = parent
	}

	children := snap.children()
	members := map[string]bool{root.ID: true}
	queue := []string{root.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if !members[c.ID] {
				members[c.ID] = true
				queue = append(queue, c.ID)
			}
		}
	}

	ids := make([]string, 0, len(members))
	for m := range members {
		ids = append(ids, m)
	}
	sort.Strings(ids)
	return ids, nil
}

// MoveGroup sets the due date of the task's whole group with one batch
// mutation. The projection is patched first and reverted if the mutation
// fails. Nothing is sent when every member already has the date.
func (e *Engine) MoveGroup(ctx context.Context, id string, day time.Time) (*MoveResult, error) {
	target := DateOf(day)

	e.mu.Lock()
	ids, err := groupOf(e.snap, id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	result := &MoveResult{IDs: ids, DueDate: target}

	previous := make(map[string]*time.Time, len(ids))
	for _, mid := range ids {
		t, _ := e.snap.Get(mid)
		previous[mid] = t.DueDate
		if t.DueDate == nil || !t.DueDate.Equal(target) {
			result.Changed = true
		}
	}
	if !result.Changed {
		e.mu.Unlock()
		return result, nil
	}
	for _, mid := range ids {
		due := target
		e.upsertLocked(TaskPatch{ID: mid, DueDate: Value(&due)}, false)
	}
	e.markLocalLocked(ids...)
	e.mu.Unlock()

	if err := e.source.UpdateDueDates(ctx, ids, target); err != nil {
		e.mu.Lock()
		for _, mid := range ids {
			e.upsertLocked(TaskPatch{ID: mid, DueDate: Value(previous[mid])}, false)
		}
		e.markLocalLocked(ids...)
		e.mu.Unlock()
		return nil, err
	}

	e.mu.Lock()
	for _, mid := range ids {
		e.scheduleLocked(mid)
	}
	e.mu.Unlock()
	return result, nil
}

// ToggleCompletion completes an open task or reopens a completed one.
func (e *Engine) ToggleCompletion(ctx context.Context, id string) (*Task, error) {
	e.mu.Lock()
	task, ok := e.snap.Get(id)
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	previous := task.EndAt
	var next *time.Time
	if previous == nil {
		now := e.opts.Clock().UTC()
		next = &now
	}
	updated, _ := e.upsertLocked(TaskPatch{ID: id, EndAt: Value(next)}, false)
	e.markLocalLocked(id)
	e.mu.Unlock()

	if err := e.source.SetCompletion(ctx, id, next); err != nil {
		e.mu.Lock()
		e.upsertLocked(TaskPatch{ID: id, EndAt: Value(previous)}, false)
		e.markLocalLocked(id)
		e.mu.Unlock()
		return nil, err
	}

	e.ScheduleHydration(id)
	return updated, nil
}

// ApplyHint merges values saved elsewhere in the application, exactly like
// a local edit.
func (e *Engine) ApplyHint(h Hint) {
	if h.Patch.ID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.upsertLocked(h.Patch, h.Insert)
	e.markLocalLocked(h.Patch.ID)
	e.scheduleLocked(h.Patch.ID)
}

func (e *Engine) onHint(_ context.Context, ev events.Event) {
	switch h := ev.Payload.(type) {
	case Hint:
		e.ApplyHint(h)
	case *Hint:
		e.ApplyHint(*h)
	}
}

// onTaskChange handles tasks rows. Removals always apply. Other events inside
// a suppression window may be echoes of local edits, so they are not merged;
// a fetch is scheduled instead, which brings in whatever else changed.
func (e *Engine) onTaskChange(_ context.Context, ev realtime.ChangeEvent) {
	var patch TaskPatch
	if ev.Type != realtime.Delete && len(ev.New) > 0 {
		if err := json.Unmarshal(ev.New, &patch); err != nil {
			log.Printf("[calendar] Dropping malformed change for task %s: %v", ev.ID, err)
			return
		}
	}
	if patch.ID == "" {
		patch.ID = ev.ID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if ev.Type == realtime.Delete || (patch.DeletedAt.Set && patch.DeletedAt.Value != nil) {
		e.dropLocked(patch.ID)
		return
	}
	if e.suppressedLocked(patch.ID) {
		e.scheduleLocked(patch.ID)
		return
	}
	e.upsertLocked(patch, false)
	e.scheduleLocked(patch.ID)
}

// dropLocked removes a task deleted elsewhere. Fetches already in flight for
// it become stale.
func (e *Engine) dropLocked(id string) {
	e.edits[id]++
	if timer, ok := e.hydrations[id]; ok {
		timer.Stop()
		delete(e.hydrations, id)
	}
	e.removeLocked(id)
}

func (e *Engine) onRemoved(_ context.Context, ev events.Event) {
	p, ok := ev.Payload.(events.RemovedPayload)
	if !ok || p.Entity != taskEntity {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.dropLocked(p.ID)
	}
}

func (e *Engine) onRestored(_ context.Context, ev events.Event) {
	p, ok := ev.Payload.(events.RestoredPayload)
	if !ok || p.Entity != taskEntity {
		return
	}
	e.ScheduleHydration(p.ID)
}

// onLinkChange refreshes a task whose assignees or projects changed.
func (e *Engine) onLinkChange(_ context.Context, ev realtime.ChangeEvent) {
	var row struct {
		TaskID string `json:"task_id"`
	}
	raw := ev.New
	if len(raw) == 0 {
		raw = ev.Old
	}
	if err := json.Unmarshal(raw, &row); err != nil || row.TaskID == "" {
		return
	}

	e.ScheduleHydration(row.TaskID)
}
