package models

import (
	"time"

	"gorm.io/gorm"
)

type Notification struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Kind      string         `gorm:"type:varchar(50);not null" json:"kind"`
	Title     string         `gorm:"type:varchar(255)" json:"title"`
	TaskID    *string        `gorm:"type:varchar(36);index" json:"task_id"`
	ProjectID *string        `gorm:"type:varchar(36);index" json:"project_id"`
	CommentID *string        `gorm:"type:varchar(36);index" json:"comment_id"`
	ActorID   *string        `gorm:"type:varchar(128);index" json:"actor_id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// NotificationRecipient tracks per-user delivery state of a notification.
type NotificationRecipient struct {
	NotificationID string         `gorm:"type:varchar(36);primaryKey" json:"notification_id"`
	UserID         string         `gorm:"type:varchar(128);primaryKey" json:"user_id"`
	ReadAt         *time.Time     `json:"read_at"`
	ViewedAt       *time.Time     `json:"viewed_at"`
	EmailedAt      *time.Time     `json:"emailed_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

type NotificationPreference struct {
	UserID    string         `gorm:"type:varchar(128);primaryKey" json:"user_id"`
	Kind      string         `gorm:"type:varchar(50);primaryKey" json:"kind"`
	InApp     bool           `gorm:"not null;default:true" json:"in_app"`
	Email     bool           `gorm:"not null;default:false" json:"email"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Setting is a namespaced key/value row used for persisted view preferences.
type Setting struct {
	Namespace string    `gorm:"type:varchar(255);primaryKey" json:"namespace"`
	Key       string    `gorm:"column:pref_key;type:varchar(100);primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
