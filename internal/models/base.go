package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newID fills an empty string primary key before insert.
func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	newID(&t.ID)
	return nil
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	newID(&u.ID)
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	newID(&n.ID)
	return nil
}

func (e *TimeEntry) BeforeCreate(tx *gorm.DB) error {
	newID(&e.ID)
	return nil
}

func (s *Status) BeforeCreate(tx *gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (p *Priority) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	newID(&r.ID)
	return nil
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Role{},
		&Status{},
		&Priority{},
		&User{},
		&Client{},
		&Project{},
		&ProjectUser{},
		&Task{},
		&TaskUser{},
		&TaskProject{},
		&TaskDuration{},
		&TimeEntry{},
		&Comment{},
		&CommentRecipient{},
		&Notification{},
		&NotificationRecipient{},
		&NotificationPreference{},
		&Setting{},
	}
}
