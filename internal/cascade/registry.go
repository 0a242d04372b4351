// Package cascade applies lifecycle transitions (soft delete, restore, hard
// delete) to an entity and everything that depends on it. Which rows depend on
// which entity is declared in a Registry rather than coded per entity.
package cascade

import (
	"fmt"
	"sort"
)

type EntityType string

const (
	EntityTask         EntityType = "task"
	EntityProject      EntityType = "project"
	EntityClient       EntityType = "client"
	EntityUser         EntityType = "user"
	EntityComment      EntityType = "comment"
	EntityNotification EntityType = "notification"
	EntityStatus       EntityType = "status"
	EntityPriority     EntityType = "priority"
	EntityRole         EntityType = "role"
)

// Transition is a lifecycle change applied by the manager.
type Transition string

const (
	SoftDelete Transition = "soft_delete"
	Restore    Transition = "restore"
	HardDelete Transition = "hard_delete"
)

// DependencyKind says how a dependency follows its owner.
type DependencyKind int

const (
	// DependEntity walks into another entity, which cascades in turn.
	DependEntity DependencyKind = iota
	// DependRows applies the transition to plain rows keyed by the owner id.
	DependRows
	// DependNullify clears a reference column on hard delete and leaves the row.
	DependNullify
)

// Join resolves dependent entity ids through a link table.
type Join struct {
	Table     string
	SourceKey string
	TargetKey string
}

// Dependency is one row of an entity's dependency table. For DependEntity the
// child ids are Entity rows whose ForeignKey matches, or Via.TargetKey values
// of link rows whose Via.SourceKey matches.
type Dependency struct {
	Kind       DependencyKind
	Table      string
	ForeignKey string
	Entity     EntityType
	Via        *Join
}

// Reference is a column pointing at a lookup value.
type Reference struct {
	Table  string
	Column string
}

// Definition declares an entity type.
type Definition struct {
	Entity EntityType
	Table  string
	// Label is the column shown in trash listings.
	Label string
	// Cached entities are held by list views and announce removals on the bus.
	Cached bool
	// Lookup entities are referenced from many places. They do not cascade;
	// hard delete requires their References to be reassigned first.
	Lookup     bool
	References []Reference
	// Dependencies are processed in order, before the entity's own rows.
	Dependencies []Dependency
	// ExternalIdentity entities own an identity at the auth provider which is
	// deleted right before the row.
	ExternalIdentity bool
}

// Registry maps entity types to their definitions.
type Registry struct {
	defs map[EntityType]*Definition
}

func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[EntityType]*Definition, len(defs))}
	for _, d := range defs {
		if _, dup := r.defs[d.Entity]; dup {
			return nil, fmt.Errorf("duplicate definition for %s", d.Entity)
		}
		r.defs[d.Entity] = d
	}
	for _, d := range defs {
		for _, dep := range d.Dependencies {
			if dep.Kind != DependEntity {
				continue
			}
			if _, ok := r.defs[dep.Entity]; !ok {
				return nil, fmt.Errorf("%s depends on undefined entity %s", d.Entity, dep.Entity)
			}
		}
	}
	return r, nil
}

// Get returns the definition for an entity type.
func (r *Registry) Get(entity EntityType) (*Definition, error) {
	d, ok := r.defs[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return d, nil
}

// Entities lists the registered entity types in name order.
func (r *Registry) Entities() []EntityType {
	out := make([]EntityType, 0, len(r.defs))
	for e := range r.defs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tables lists every table a registry touches.
func (r *Registry) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, e := range r.Entities() {
		d := r.defs[e]
		add(d.Table)
		for _, ref := range d.References {
			add(ref.Table)
		}
		for _, dep := range d.Dependencies {
			add(dep.Table)
			if dep.Via != nil {
				add(dep.Via.Table)
			}
		}
	}
	return out
}

// DefaultRegistry describes the Tasker schema.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		&Definition{
			Entity: EntityTask,
			Table:  "tasks",
			Label:  "name",
			Cached: true,
			Dependencies: []Dependency{
				{Kind: DependEntity, Entity: EntityTask, Table: "tasks", ForeignKey: "parent_id"},
				{Kind: DependEntity, Entity: EntityComment, Table: "comments", ForeignKey: "task_id"},
				{Kind: DependRows, Table: "task_users", ForeignKey: "task_id"},
				{Kind: DependRows, Table: "task_projects", ForeignKey: "task_id"},
				{Kind: DependRows, Table: "time_entries", ForeignKey: "task_id"},
				{Kind: DependRows, Table: "task_durations", ForeignKey: "task_id"},
				{Kind: DependEntity, Entity: EntityNotification, Table: "notifications", ForeignKey: "task_id"},
			},
		},
		&Definition{
			Entity: EntityComment,
			Table:  "comments",
			Label:  "body",
			Dependencies: []Dependency{
				{Kind: DependEntity, Entity: EntityComment, Table: "comments", ForeignKey: "parent_id"},
				{Kind: DependRows, Table: "comment_recipients", ForeignKey: "comment_id"},
				{Kind: DependEntity, Entity: EntityNotification, Table: "notifications", ForeignKey: "comment_id"},
			},
		},
		&Definition{
			Entity: EntityNotification,
			Table:  "notifications",
			Label:  "title",
			Dependencies: []Dependency{
				{Kind: DependRows, Table: "notification_recipients", ForeignKey: "notification_id"},
			},
		},
		&Definition{
			Entity: EntityProject,
			Table:  "projects",
			Label:  "name",
			Cached: true,
			Dependencies: []Dependency{
				{Kind: DependEntity, Entity: EntityTask, Via: &Join{Table: "task_projects", SourceKey: "project_id", TargetKey: "task_id"}},
				{Kind: DependRows, Table: "task_projects", ForeignKey: "project_id"},
				{Kind: DependRows, Table: "project_users", ForeignKey: "project_id"},
				{Kind: DependRows, Table: "time_entries", ForeignKey: "project_id"},
				{Kind: DependEntity, Entity: EntityNotification, Table: "notifications", ForeignKey: "project_id"},
			},
		},
		&Definition{
			Entity: EntityClient,
			Table:  "clients",
			Label:  "name",
			Cached: true,
			Dependencies: []Dependency{
				{Kind: DependEntity, Entity: EntityProject, Table: "projects", ForeignKey: "client_id"},
			},
		},
		&Definition{
			Entity:           EntityUser,
			Table:            "users",
			Label:            "email",
			Cached:           true,
			ExternalIdentity: true,
			Dependencies: []Dependency{
				{Kind: DependRows, Table: "task_users", ForeignKey: "user_id"},
				{Kind: DependRows, Table: "project_users", ForeignKey: "user_id"},
				{Kind: DependRows, Table: "comment_recipients", ForeignKey: "user_id"},
				{Kind: DependRows, Table: "notification_recipients", ForeignKey: "user_id"},
				{Kind: DependRows, Table: "notification_preferences", ForeignKey: "user_id"},
				{Kind: DependRows, Table: "task_durations", ForeignKey: "user_id"},
				{Kind: DependRows, Table: "time_entries", ForeignKey: "user_id"},
				{Kind: DependNullify, Table: "comments", ForeignKey: "author_id"},
				{Kind: DependNullify, Table: "notifications", ForeignKey: "actor_id"},
			},
		},
		&Definition{
			Entity: EntityStatus,
			Table:  "statuses",
			Label:  "name",
			Cached: true,
			Lookup: true,
			References: []Reference{
				{Table: "tasks", Column: "status_id"},
				{Table: "projects", Column: "status_id"},
			},
		},
		&Definition{
			Entity: EntityPriority,
			Table:  "priorities",
			Label:  "name",
			Cached: true,
			Lookup: true,
			References: []Reference{
				{Table: "tasks", Column: "priority_id"},
				{Table: "projects", Column: "priority_id"},
			},
		},
		&Definition{
			Entity: EntityRole,
			Table:  "roles",
			Label:  "name",
			Cached: true,
			Lookup: true,
			References: []Reference{
				{Table: "users", Column: "role_id"},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}
