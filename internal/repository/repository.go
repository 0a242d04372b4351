package repository

import (
	"context"
	"errors"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/models"
)

// ErrTaskNotFound is returned when a task does not exist or is in the trash.
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository defines the interface for task data access. Besides plain
// reads and writes it serves calendars as their calendar.Source.
type TaskRepository interface {
	calendar.Source

	// Create inserts a task together with its assignee and project links
	Create(ctx context.Context, task *models.Task, assigneeIDs, projectIDs []string) error

	// FindByID finds a live task row
	FindByID(ctx context.Context, id string) (*models.Task, error)

	// Update writes the given columns of a task
	Update(ctx context.Context, id string, columns map[string]any) error

	// ReplaceAssignees makes userIDs the exact set of assignees
	ReplaceAssignees(ctx context.Context, taskID string, userIDs []string) error

	// ReplaceProjects makes projectIDs the exact set of linked projects
	ReplaceProjects(ctx context.Context, taskID string, projectIDs []string) error
}

// UserRepository defines the interface for user profile access
type UserRepository interface {
	// FindByID finds a live user profile
	FindByID(ctx context.Context, id string) (*models.User, error)

	// EnsureProfile creates the profile on first sign-in and returns the stored row
	EnsureProfile(ctx context.Context, user *models.User) (*models.User, error)
}
