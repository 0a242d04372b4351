package calendar

import (
	"sort"
	"time"

	"github.com/yukikurage/tasker/internal/constants"
)

// DayGroup is a parent task and its sub-tasks shown on one day. Placeholder
// groups stand in for a parent that is not shown that day; their Parent
// carries only what the projection knows about it.
type DayGroup struct {
	Parent      *Task   `json:"parent"`
	Placeholder bool    `json:"placeholder"`
	Children    []*Task `json:"children"`
}

// DayColumn is one day of a week view.
type DayColumn struct {
	Date   string     `json:"date"`
	Groups []DayGroup `json:"groups"`
}

// effectiveDay is the due day of the top-most dated ancestor in the
// projection, the task itself included. Sub-tasks therefore follow their
// parent's day.
func effectiveDay(snap *Snapshot, t *Task) (time.Time, bool) {
	var day time.Time
	found := false
	seen := make(map[string]bool)
	for cur := t; cur != nil && !seen[cur.ID]; {
		seen[cur.ID] = true
		if cur.DueDate != nil {
			day, found = *cur.DueDate, true
		}
		if cur.ParentID == nil {
			break
		}
		cur, _ = snap.Get(*cur.ParentID)
	}
	return day, found
}

// DayView derives the groups shown for a day. Unless showAll is set only
// tasks assigned to userID are selected. Each selected sub-task is nested
// under its top-most selected ancestor, or under a placeholder for its
// parent when no ancestor is selected. Real groups sort before placeholders,
// then by parent name.
//
// A sub-task with a dated ancestor is placed on that ancestor's day only. A
// sub-task due on the 14th under a parent due on the 10th shows up nested in
// the parent's group on the 10th and not at all on the 14th. Its own due date
// is kept and still counts once the ancestors have no date.
func DayView(snap *Snapshot, day time.Time, userID string, showAll bool) []DayGroup {
	target := DateOf(day)

	selected := make(map[string]*Task)
	for _, t := range snap.tasks {
		d, ok := effectiveDay(snap, t)
		if !ok || !d.Equal(target) {
			continue
		}
		if !showAll && !t.AssignedTo(userID) {
			continue
		}
		selected[t.ID] = t
	}

	groups := make(map[string]*DayGroup)
	group := func(parent *Task, placeholder bool) *DayGroup {
		g, ok := groups[parent.ID]
		if !ok {
			g = &DayGroup{Parent: parent, Placeholder: placeholder, Children: []*Task{}}
			groups[parent.ID] = g
		}
		return g
	}

	for _, t := range selected {
		if t.ParentID == nil {
			group(t, false)
			continue
		}
		if anchor := topSelectedAncestor(snap, selected, t); anchor != nil {
			g := group(anchor, false)
			g.Children = append(g.Children, t)
			continue
		}
		parent := &Task{ID: *t.ParentID}
		if known, ok := snap.Get(*t.ParentID); ok {
			parent = known
		}
		g := group(parent, true)
		g.Children = append(g.Children, t)
	}

	out := make([]DayGroup, 0, len(groups))
	for _, g := range groups {
		sortTasks(g.Children)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Placeholder != b.Placeholder {
			return !a.Placeholder
		}
		if a.Parent.Name != b.Parent.Name {
			return a.Parent.Name < b.Parent.Name
		}
		return a.Parent.ID < b.Parent.ID
	})
	return out
}

func topSelectedAncestor(snap *Snapshot, selected map[string]*Task, t *Task) *Task {
	var top *Task
	seen := map[string]bool{t.ID: true}
	for cur := t; cur.ParentID != nil; {
		parent, ok := snap.Get(*cur.ParentID)
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		if _, ok := selected[parent.ID]; ok {
			top = parent
		}
		cur = parent
	}
	return top
}

func sortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Name != tasks[j].Name {
			return tasks[i].Name < tasks[j].Name
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// WeekStart returns the Monday of the anchor's week.
func WeekStart(anchor time.Time) time.Time {
	d := DateOf(anchor)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekView derives seven day columns starting at the Monday of the anchor's week.
func WeekView(snap *Snapshot, anchor time.Time, userID string, showAll bool) []DayColumn {
	start := WeekStart(anchor)
	cols := make([]DayColumn, 7)
	for i := range cols {
		day := start.AddDate(0, 0, i)
		cols[i] = DayColumn{
			Date:   day.Format(constants.DateLayout),
			Groups: DayView(snap, day, userID, showAll),
		}
	}
	return cols
}
