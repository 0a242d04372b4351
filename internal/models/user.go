package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the profile row; the ID is the identity provider's uid.
type User struct {
	ID        string         `gorm:"type:varchar(128);primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255)" json:"name"`
	Surname   string         `gorm:"type:varchar(255)" json:"surname"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	RoleID    *string        `gorm:"type:varchar(36);index" json:"role_id"`
	AvatarURL *string        `gorm:"type:varchar(512)" json:"avatar_url"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
