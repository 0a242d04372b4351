package models

import (
	"time"

	"gorm.io/gorm"
)

type Task struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	Note       *string        `gorm:"type:text" json:"note"`
	DueDate    *time.Time     `gorm:"index" json:"due_date"`
	StartAt    *time.Time     `json:"start_at"`
	EndAt      *time.Time     `json:"end_at"`
	ParentID   *string        `gorm:"type:varchar(36);index" json:"parent_id"`
	StatusID   *string        `gorm:"type:varchar(36);index" json:"status_id"`
	PriorityID *string        `gorm:"type:varchar(36);index" json:"priority_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TaskUser assigns a user to a task.
type TaskUser struct {
	TaskID    string         `gorm:"type:varchar(36);primaryKey" json:"task_id"`
	UserID    string         `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TaskProject links a task to a project.
type TaskProject struct {
	TaskID    string         `gorm:"type:varchar(36);primaryKey" json:"task_id"`
	ProjectID string         `gorm:"type:varchar(36);primaryKey" json:"project_id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TaskDuration aggregates tracked seconds per task and user.
type TaskDuration struct {
	TaskID       string         `gorm:"type:varchar(36);primaryKey" json:"task_id"`
	UserID       string         `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	TotalSeconds int64          `gorm:"not null;default:0" json:"total_seconds"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

type TimeEntry struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string         `gorm:"type:varchar(36);index;not null" json:"user_id"`
	ProjectID       *string        `gorm:"type:varchar(36);index" json:"project_id"`
	TaskID          *string        `gorm:"type:varchar(36);index" json:"task_id"`
	StartAt         time.Time      `json:"start_at"`
	EndAt           *time.Time     `json:"end_at"`
	DurationSeconds int64          `gorm:"not null;default:0" json:"duration_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
