package models

import (
	"time"

	"gorm.io/gorm"
)

type Project struct {
	ID                string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	Note              *string        `gorm:"type:text" json:"note"`
	ClientID          *string        `gorm:"type:varchar(36);index" json:"client_id"`
	StatusID          *string        `gorm:"type:varchar(36);index" json:"status_id"`
	PriorityID        *string        `gorm:"type:varchar(36);index" json:"priority_id"`
	DueDate           *time.Time     `json:"due_date"`
	EstimatedDuration string         `gorm:"type:varchar(50)" json:"estimated_duration"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// ProjectUser makes a user a member of a project.
type ProjectUser struct {
	ProjectID string         `gorm:"type:varchar(36);primaryKey" json:"project_id"`
	UserID    string         `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Client struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	ContactName  string         `gorm:"type:varchar(255)" json:"contact_name"`
	ContactEmail string         `gorm:"type:varchar(255)" json:"contact_email"`
	ContactPhone string         `gorm:"type:varchar(50)" json:"contact_phone"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
