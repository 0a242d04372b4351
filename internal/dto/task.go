package dto

import (
	"time"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/services"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Surname   string  `json:"surname"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Surname:   user.Surname,
		AvatarURL: user.AvatarURL,
	}
}

// SessionRequest carries an identity provider ID token
type SessionRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// CreateTaskRequest is the body of POST /api/tasks
type CreateTaskRequest struct {
	Name        string     `json:"name" binding:"required"`
	Note        *string    `json:"note"`
	DueDate     *time.Time `json:"due_date"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	ParentID    *string    `json:"parent_id"`
	StatusID    *string    `json:"status_id"`
	PriorityID  *string    `json:"priority_id"`
	AssigneeIDs []string   `json:"assignee_ids"`
	ProjectIDs  []string   `json:"project_ids"`
}

// ToInput converts the request to service input
func (r CreateTaskRequest) ToInput() services.CreateTaskInput {
	return services.CreateTaskInput{
		Name:        r.Name,
		Note:        r.Note,
		DueDate:     r.DueDate,
		StartAt:     r.StartAt,
		EndAt:       r.EndAt,
		ParentID:    r.ParentID,
		StatusID:    r.StatusID,
		PriorityID:  r.PriorityID,
		AssigneeIDs: r.AssigneeIDs,
		ProjectIDs:  r.ProjectIDs,
	}
}

// UpdateTaskRequest is the body of PATCH /api/tasks/:id. Absent keys are
// left untouched; explicit nulls clear the value.
type UpdateTaskRequest struct {
	Name        calendar.Field[string]     `json:"name"`
	Note        calendar.Field[*string]    `json:"note"`
	DueDate     calendar.Field[*time.Time] `json:"due_date"`
	StartAt     calendar.Field[*time.Time] `json:"start_at"`
	EndAt       calendar.Field[*time.Time] `json:"end_at"`
	ParentID    calendar.Field[*string]    `json:"parent_id"`
	StatusID    calendar.Field[*string]    `json:"status_id"`
	PriorityID  calendar.Field[*string]    `json:"priority_id"`
	AssigneeIDs calendar.Field[[]string]   `json:"assignee_ids"`
	ProjectIDs  calendar.Field[[]string]   `json:"project_ids"`
}

// ToInput converts the request to service input
func (r UpdateTaskRequest) ToInput() services.UpdateTaskInput {
	return services.UpdateTaskInput{
		Name:        r.Name,
		Note:        r.Note,
		DueDate:     r.DueDate,
		StartAt:     r.StartAt,
		EndAt:       r.EndAt,
		ParentID:    r.ParentID,
		StatusID:    r.StatusID,
		PriorityID:  r.PriorityID,
		AssigneeIDs: r.AssigneeIDs,
		ProjectIDs:  r.ProjectIDs,
	}
}
