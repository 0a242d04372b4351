package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/events"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/repository"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrNameRequired   = errors.New("name is required")
	ErrNameEmpty      = errors.New("name cannot be empty")
	ErrParentNotFound = errors.New("parent task not found")
	ErrParentCycle    = errors.New("a task cannot be nested under itself")
)

// TaskService handles task editing. Saved values are broadcast as calendar
// hints so open calendars show them without waiting for the change feed.
type TaskService struct {
	taskRepo repository.TaskRepository
	bus      events.Bus
}

// NewTaskService creates a new TaskService. bus may be nil.
func NewTaskService(taskRepo repository.TaskRepository, bus events.Bus) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		bus:      bus,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Name        string
	Note        *string
	DueDate     *time.Time
	StartAt     *time.Time
	EndAt       *time.Time
	ParentID    *string
	StatusID    *string
	PriorityID  *string
	AssigneeIDs []string
	ProjectIDs  []string
}

// UpdateTaskInput represents a partial update. Unset fields are kept; set
// fields may carry nil to clear the value.
type UpdateTaskInput struct {
	Name        calendar.Field[string]
	Note        calendar.Field[*string]
	DueDate     calendar.Field[*time.Time]
	StartAt     calendar.Field[*time.Time]
	EndAt       calendar.Field[*time.Time]
	ParentID    calendar.Field[*string]
	StatusID    calendar.Field[*string]
	PriorityID  calendar.Field[*string]
	AssigneeIDs calendar.Field[[]string]
	ProjectIDs  calendar.Field[[]string]
}

// GetTask returns a joined task
func (s *TaskService) GetTask(ctx context.Context, id string) (*calendar.Task, error) {
	task, err := s.taskRepo.FetchTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// CreateTask creates a task and announces it as new to open calendars
func (s *TaskService) CreateTask(ctx context.Context, input CreateTaskInput) (*calendar.Task, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if input.ParentID != nil && *input.ParentID != "" {
		if _, err := s.taskRepo.FindByID(ctx, *input.ParentID); err != nil {
			return nil, mapTaskError(err, ErrParentNotFound)
		}
	}

	task := &models.Task{
		Name:       name,
		Note:       input.Note,
		DueDate:    dayPtr(input.DueDate),
		StartAt:    input.StartAt,
		EndAt:      input.EndAt,
		ParentID:   emptyToNil(input.ParentID),
		StatusID:   emptyToNil(input.StatusID),
		PriorityID: emptyToNil(input.PriorityID),
	}
	if err := s.taskRepo.Create(ctx, task, input.AssigneeIDs, input.ProjectIDs); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	created, err := s.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	s.hint(ctx, *created, true)
	return created, nil
}

// UpdateTask applies the set fields of input
func (s *TaskService) UpdateTask(ctx context.Context, id string, input UpdateTaskInput) (*calendar.Task, error) {
	if _, err := s.taskRepo.FindByID(ctx, id); err != nil {
		return nil, mapTaskError(err, ErrTaskNotFound)
	}

	columns := make(map[string]any)
	if input.Name.Set {
		name := strings.TrimSpace(input.Name.Value)
		if name == "" {
			return nil, ErrNameEmpty
		}
		columns["name"] = name
	}
	if input.Note.Set {
		columns["note"] = input.Note.Value
	}
	if input.DueDate.Set {
		columns["due_date"] = dayPtr(input.DueDate.Value)
	}
	if input.StartAt.Set {
		columns["start_at"] = input.StartAt.Value
	}
	if input.EndAt.Set {
		columns["end_at"] = input.EndAt.Value
	}
	if input.ParentID.Set {
		parent := emptyToNil(input.ParentID.Value)
		if parent != nil {
			if err := s.checkParent(ctx, id, *parent); err != nil {
				return nil, err
			}
		}
		columns["parent_id"] = parent
	}
	if input.StatusID.Set {
		columns["status_id"] = emptyToNil(input.StatusID.Value)
	}
	if input.PriorityID.Set {
		columns["priority_id"] = emptyToNil(input.PriorityID.Value)
	}

	if err := s.taskRepo.Update(ctx, id, columns); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if input.AssigneeIDs.Set {
		if err := s.taskRepo.ReplaceAssignees(ctx, id, input.AssigneeIDs.Value); err != nil {
			return nil, fmt.Errorf("failed to update assignees: %w", err)
		}
	}
	if input.ProjectIDs.Set {
		if err := s.taskRepo.ReplaceProjects(ctx, id, input.ProjectIDs.Value); err != nil {
			return nil, fmt.Errorf("failed to update projects: %w", err)
		}
	}

	updated, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.hint(ctx, *updated, false)
	return updated, nil
}

// checkParent walks up from the proposed parent and fails if it reaches id
func (s *TaskService) checkParent(ctx context.Context, id, parentID string) error {
	seen := make(map[string]bool)
	for cur := parentID; cur != ""; {
		if cur == id {
			return ErrParentCycle
		}
		if seen[cur] {
			return nil
		}
		seen[cur] = true

		task, err := s.taskRepo.FindByID(ctx, cur)
		if err != nil {
			if cur == parentID {
				return mapTaskError(err, ErrParentNotFound)
			}
			return nil
		}
		if task.ParentID == nil {
			return nil
		}
		cur = *task.ParentID
	}
	return nil
}

func (s *TaskService) hint(ctx context.Context, task calendar.Task, insert bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Topic:   events.TopicTaskHint,
		Payload: calendar.Hint{Patch: calendar.FullPatch(task), Insert: insert},
	})
	log.Printf("[events] Broadcast task hint for %s (insert=%t)", task.ID, insert)
}

func mapTaskError(err, notFound error) error {
	if errors.Is(err, repository.ErrTaskNotFound) {
		return notFound
	}
	return fmt.Errorf("failed to find task: %w", err)
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := calendar.DateOf(*t)
	return &d
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
