// Package calendar keeps a render-stable in-memory projection of the tasks in
// a scope and reconciles it against local edits, hints from other components
// and the live change feed.
package calendar

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Scope selects the tasks a calendar shows: every task, or the tasks linked
// to one project.
type Scope struct {
	ProjectID string `json:"project_id,omitempty"`
}

// Key identifies the scope in caches and preference namespaces.
func (s Scope) Key() string {
	if s.ProjectID == "" {
		return "all"
	}
	return "project:" + s.ProjectID
}

// Includes reports whether a task belongs to the scope.
func (s Scope) Includes(t Task) bool {
	if s.ProjectID == "" {
		return true
	}
	for _, id := range t.ProjectIDs {
		if id == s.ProjectID {
			return true
		}
	}
	return false
}

type Lookup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Task is an enriched task record as shown on the calendar. A non-nil EndAt
// means the task is completed.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Note        *string    `json:"note"`
	DueDate     *time.Time `json:"due_date"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	ParentID    *string    `json:"parent_id"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	ProjectName string     `json:"project_name"`
	ProjectIDs  []string   `json:"project_ids"`
	Status      *Lookup    `json:"status"`
	Priority    *Lookup    `json:"priority"`
	AssigneeIDs []string   `json:"assignee_ids"`
}

func (t *Task) Completed() bool {
	return t.EndAt != nil
}

func (t *Task) AssignedTo(userID string) bool {
	for _, id := range t.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Field is an optional patch value. Set distinguishes "keep the previous
// value" (unset) from an explicit value, null included.
type Field[T any] struct {
	Set   bool
	Value T
}

// Value returns a set field.
func Value[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.Value = zero
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

func (f Field[T]) apply(dst *T) {
	if f.Set {
		*dst = f.Value
	}
}

// TaskPatch is a partial task. Absent JSON keys stay unset.
type TaskPatch struct {
	ID          string            `json:"id"`
	Name        Field[string]     `json:"name"`
	Note        Field[*string]    `json:"note"`
	DueDate     Field[*time.Time] `json:"due_date"`
	StartAt     Field[*time.Time] `json:"start_at"`
	EndAt       Field[*time.Time] `json:"end_at"`
	ParentID    Field[*string]    `json:"parent_id"`
	DeletedAt   Field[*time.Time] `json:"deleted_at"`
	ProjectName Field[string]     `json:"project_name"`
	ProjectIDs  Field[[]string]   `json:"project_ids"`
	Status      Field[*Lookup]    `json:"status"`
	Priority    Field[*Lookup]    `json:"priority"`
	AssigneeIDs Field[[]string]   `json:"assignee_ids"`
}

// FullPatch sets every field from a complete record.
func FullPatch(t Task) TaskPatch {
	return TaskPatch{
		ID:          t.ID,
		Name:        Value(t.Name),
		Note:        Value(t.Note),
		DueDate:     Value(t.DueDate),
		StartAt:     Value(t.StartAt),
		EndAt:       Value(t.EndAt),
		ParentID:    Value(t.ParentID),
		DeletedAt:   Value(t.DeletedAt),
		ProjectName: Value(t.ProjectName),
		ProjectIDs:  Value(t.ProjectIDs),
		Status:      Value(t.Status),
		Priority:    Value(t.Priority),
		AssigneeIDs: Value(t.AssigneeIDs),
	}
}

// Apply returns base with every set field overwritten.
func (p TaskPatch) Apply(base Task) Task {
	out := base
	if p.ID != "" {
		out.ID = p.ID
	}
	p.Name.apply(&out.Name)
	p.Note.apply(&out.Note)
	p.DueDate.apply(&out.DueDate)
	p.StartAt.apply(&out.StartAt)
	p.EndAt.apply(&out.EndAt)
	p.ParentID.apply(&out.ParentID)
	p.DeletedAt.apply(&out.DeletedAt)
	p.ProjectName.apply(&out.ProjectName)
	p.ProjectIDs.apply(&out.ProjectIDs)
	p.Status.apply(&out.Status)
	p.Priority.apply(&out.Priority)
	p.AssigneeIDs.apply(&out.AssigneeIDs)
	return out
}

// Normalize puts a record in canonical form: due dates become UTC midnight of
// their calendar day, timestamps become UTC and id lists are sorted sets.
func Normalize(t Task) Task {
	if t.DueDate != nil {
		d := DateOf(*t.DueDate)
		t.DueDate = &d
	}
	t.StartAt = utcPtr(t.StartAt)
	t.EndAt = utcPtr(t.EndAt)
	t.DeletedAt = utcPtr(t.DeletedAt)
	if t.ParentID != nil && *t.ParentID == "" {
		t.ParentID = nil
	}
	t.ProjectIDs = sortedSet(t.ProjectIDs)
	t.AssigneeIDs = sortedSet(t.AssigneeIDs)
	return t
}

// DateOf truncates a time to its calendar day, as a UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func sortedSet(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
