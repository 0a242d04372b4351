package cascade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yukikurage/tasker/internal/events"
	"github.com/yukikurage/tasker/internal/identity"
	"github.com/yukikurage/tasker/internal/realtime"
)

var (
	ErrUnknownEntity       = errors.New("unknown entity type")
	ErrNotLookup           = errors.New("entity type is not a lookup")
	ErrNotFound            = errors.New("record not found")
	ErrReplacementRequired = errors.New("a replacement value is required")
	ErrSameReplacement     = errors.New("replacement must differ from the value being replaced")
	ErrReplacementNotFound = errors.New("replacement value not found")
	ErrReferencesRemain    = errors.New("lookup value is still referenced")
	ErrIdentityUnavailable = errors.New("identity provider is not configured")
)

// Report counts affected rows per table. Cleared reference columns are keyed
// as table.column.
type Report struct {
	Transition Transition       `json:"transition"`
	Rows       map[string]int64 `json:"rows"`
}

func newReport(tr Transition) *Report {
	return &Report{Transition: tr, Rows: make(map[string]int64)}
}

func (r *Report) add(key string, n int64) {
	if n > 0 {
		r.Rows[key] += n
	}
}

// Manager applies lifecycle transitions. Steps run one after another without
// a surrounding transaction; each step is idempotent, so a failed cascade is
// recovered by running it again.
type Manager struct {
	registry *Registry
	store    Store
	bus      events.Bus
	feed     realtime.Publisher
	identity identity.Deleter
	now      func() time.Time
}

// NewManager wires a manager. bus, feed and ident may be nil; without ident,
// hard deletes of entities with an external identity are refused.
func NewManager(registry *Registry, store Store, bus events.Bus, feed realtime.Publisher, ident identity.Deleter) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		bus:      bus,
		feed:     feed,
		identity: ident,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// SoftDelete trashes the record and its dependents. Lookup values only trash
// their own row.
func (m *Manager) SoftDelete(ctx context.Context, entity EntityType, id string) (*Report, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	if err := m.mustExist(ctx, def, id); err != nil {
		return nil, err
	}
	return m.run(ctx, SoftDelete, def, id, m.now())
}

// Restore brings the record back from the trash together with the dependents
// trashed by the same cascade. Dependents trashed on their own, before or
// after the record, keep their own deleted_at. Restoring a live record is a
// no-op.
func (m *Manager) Restore(ctx context.Context, entity EntityType, id string) (*Report, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	if err := m.mustExist(ctx, def, id); err != nil {
		return nil, err
	}
	at, err := m.store.TrashedAt(ctx, def.Table, id)
	if err != nil {
		return nil, err
	}
	if at == nil {
		return newReport(Restore), nil
	}
	return m.run(ctx, Restore, def, id, *at)
}

// HardDelete permanently removes the record and its dependents, children
// before parents. Deleting a record that is already gone is not an error.
func (m *Manager) HardDelete(ctx context.Context, entity EntityType, id string) (*Report, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	if def.ExternalIdentity && m.identity == nil {
		return nil, ErrIdentityUnavailable
	}
	if def.Lookup {
		n, err := m.references(ctx, def, id, AnyRows)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: %d rows point at %s %s", ErrReferencesRemain, n, def.Entity, id)
		}
	}
	return m.run(ctx, HardDelete, def, id, m.now())
}

// ReplaceReferences points every row referencing lookup value oldID at newID,
// trashed rows included. It must complete before oldID can be hard deleted.
func (m *Manager) ReplaceReferences(ctx context.Context, entity EntityType, oldID, newID string) (*Report, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	if !def.Lookup {
		return nil, fmt.Errorf("%w: %s", ErrNotLookup, entity)
	}
	if newID == "" {
		return nil, ErrReplacementRequired
	}
	if newID == oldID {
		return nil, ErrSameReplacement
	}
	ok, err := m.store.Exists(ctx, def.Table, newID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrReplacementNotFound, entity, newID)
	}

	report := newReport("replace")
	for _, ref := range def.References {
		n, err := m.store.Reassign(ctx, ref.Table, ref.Column, oldID, newID)
		if err != nil {
			return report, err
		}
		report.add(ref.Table+"."+ref.Column, n)
	}
	log.Printf("[cascade] Replaced %s %s with %s: %v", entity, oldID, newID, report.Rows)
	return report, nil
}

// References counts rows pointing at a lookup value. Only live rows are
// counted when live is set.
func (m *Manager) References(ctx context.Context, entity EntityType, id string, live bool) (int64, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return 0, err
	}
	if !def.Lookup {
		return 0, fmt.Errorf("%w: %s", ErrNotLookup, entity)
	}
	state := AnyRows
	if live {
		state = LiveRows
	}
	return m.references(ctx, def, id, state)
}

func (m *Manager) references(ctx context.Context, def *Definition, id string, state RowState) (int64, error) {
	var total int64
	for _, ref := range def.References {
		n, err := m.store.Count(ctx, ref.Table, ref.Column, []string{id}, state)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (m *Manager) mustExist(ctx context.Context, def *Definition, id string) error {
	ids, err := m.store.Pluck(ctx, def.Table, "id", "id", []string{id}, AnyRows)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, def.Entity, id)
	}
	return nil
}

// frame is one entity batch on the walk stack. next indexes the dependency
// to process; when it runs past the end the batch's own rows are handled.
type frame struct {
	def  *Definition
	ids  []string
	next int
}

// run walks the dependency graph depth first with an explicit stack. Each
// entity id is visited once per run. at is the deletion timestamp written by
// a soft delete, or the one a restore matches.
func (m *Manager) run(ctx context.Context, tr Transition, root *Definition, id string, at time.Time) (*Report, error) {
	report := newReport(tr)

	visited := make(map[EntityType]map[string]bool)
	fresh := func(entity EntityType, ids []string) []string {
		seen := visited[entity]
		if seen == nil {
			seen = make(map[string]bool)
			visited[entity] = seen
		}
		var out []string
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		return out
	}

	stack := []*frame{{def: root, ids: fresh(root.Entity, []string{id})}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next < len(top.def.Dependencies) {
			dep := top.def.Dependencies[top.next]
			top.next++

			if dep.Kind == DependEntity {
				child, err := m.registry.Get(dep.Entity)
				if err != nil {
					return report, err
				}
				ids, err := m.childIDs(ctx, dep, top.ids)
				if err != nil {
					return report, err
				}
				if ids = fresh(child.Entity, ids); len(ids) > 0 {
					stack = append(stack, &frame{def: child, ids: ids})
				}
				continue
			}
			if err := m.applyRows(ctx, tr, at, dep, top.ids, report); err != nil {
				return report, err
			}
			continue
		}

		stack = stack[:len(stack)-1]
		if err := m.applyOwn(ctx, tr, at, top.def, top.ids, report); err != nil {
			return report, err
		}
	}

	log.Printf("[cascade] %s %s %s: %v", tr, root.Entity, id, report.Rows)
	return report, nil
}

func (m *Manager) childIDs(ctx context.Context, dep Dependency, ids []string) ([]string, error) {
	if dep.Via != nil {
		return m.store.Pluck(ctx, dep.Via.Table, dep.Via.TargetKey, dep.Via.SourceKey, ids, AnyRows)
	}
	return m.store.Pluck(ctx, dep.Table, "id", dep.ForeignKey, ids, AnyRows)
}

func (m *Manager) applyRows(ctx context.Context, tr Transition, at time.Time, dep Dependency, ids []string, report *Report) error {
	var (
		n   int64
		err error
	)
	switch {
	case dep.Kind == DependNullify:
		if tr != HardDelete {
			return nil
		}
		n, err = m.store.Nullify(ctx, dep.Table, dep.ForeignKey, ids)
		report.add(dep.Table+"."+dep.ForeignKey, n)
		return err
	case tr == HardDelete:
		n, err = m.store.Remove(ctx, dep.Table, dep.ForeignKey, ids)
	case tr == SoftDelete:
		n, err = m.store.Mark(ctx, dep.Table, dep.ForeignKey, ids, at)
	default:
		n, err = m.store.Unmark(ctx, dep.Table, dep.ForeignKey, ids, at)
	}
	report.add(dep.Table, n)
	return err
}

// applyOwn transitions the batch's own rows, after all of its dependencies.
func (m *Manager) applyOwn(ctx context.Context, tr Transition, at time.Time, def *Definition, ids []string, report *Report) error {
	var (
		targets []string
		err     error
	)
	switch tr {
	case SoftDelete:
		targets, err = m.store.Pluck(ctx, def.Table, "id", "id", ids, LiveRows)
	case Restore:
		targets, err = m.store.Stamped(ctx, def.Table, ids, at)
	default:
		targets, err = m.store.Pluck(ctx, def.Table, "id", "id", ids, AnyRows)
	}
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}

	var n int64
	switch tr {
	case HardDelete:
		if def.ExternalIdentity {
			if m.identity == nil {
				return ErrIdentityUnavailable
			}
			for _, id := range targets {
				if err := m.identity.DeleteIdentity(ctx, id); err != nil {
					return err
				}
			}
		}
		n, err = m.store.Remove(ctx, def.Table, "id", targets)
	case SoftDelete:
		n, err = m.store.Mark(ctx, def.Table, "id", targets, at)
	default:
		n, err = m.store.Unmark(ctx, def.Table, "id", targets, at)
	}
	report.add(def.Table, n)
	if err != nil {
		return err
	}

	m.announce(ctx, tr, at, def, targets)
	return nil
}

// announce tells list views and live calendars about the transition. Failures
// are logged; the rows are already changed.
func (m *Manager) announce(ctx context.Context, tr Transition, at time.Time, def *Definition, ids []string) {
	if m.bus != nil && def.Cached {
		for _, id := range ids {
			if tr == Restore {
				m.bus.Publish(ctx, events.Event{
					Topic:   events.TopicRestored,
					Payload: events.RestoredPayload{Entity: string(def.Entity), ID: id},
				})
				continue
			}
			m.bus.Publish(ctx, events.Event{
				Topic:   events.TopicRemoved,
				Payload: events.RemovedPayload{Entity: string(def.Entity), ID: id, Permanent: tr == HardDelete},
			})
		}
	}

	if m.feed == nil || def.Entity != EntityTask {
		return
	}
	for _, id := range ids {
		var (
			ev  realtime.ChangeEvent
			err error
		)
		switch tr {
		case HardDelete:
			ev, err = realtime.NewChangeEvent(def.Table, realtime.Delete, id, map[string]any{"id": id})
		case SoftDelete:
			ev, err = realtime.NewChangeEvent(def.Table, realtime.Update, id, map[string]any{"id": id, "deleted_at": at})
		default:
			ev, err = realtime.NewChangeEvent(def.Table, realtime.Update, id, map[string]any{"id": id, "deleted_at": nil})
		}
		if err == nil {
			err = m.feed.Publish(ctx, ev)
		}
		if err != nil {
			log.Printf("[cascade] Failed to publish %s change for %s: %v", tr, id, err)
		}
	}
}
