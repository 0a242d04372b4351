package models

import (
	"time"

	"gorm.io/gorm"
)

type Comment struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TaskID    string         `gorm:"type:varchar(36);index;not null" json:"task_id"`
	AuthorID  *string        `gorm:"type:varchar(128);index" json:"author_id"`
	ParentID  *string        `gorm:"type:varchar(36);index" json:"parent_id"`
	Body      string         `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CommentRecipient records a mention of a user in a comment.
type CommentRecipient struct {
	CommentID string         `gorm:"type:varchar(36);primaryKey" json:"comment_id"`
	UserID    string         `gorm:"type:varchar(128);primaryKey" json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
