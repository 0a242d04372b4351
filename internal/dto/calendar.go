package dto

import (
	"github.com/yukikurage/tasker/internal/calendar"
)

// MoveRequest drops a task's group on a day (YYYY-MM-DD)
type MoveRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Date   string `json:"date" binding:"required"`
}

// MoveResponse reports the moved group
type MoveResponse struct {
	TaskIDs []string `json:"task_ids"`
	Date    string   `json:"date"`
	Changed bool     `json:"changed"`
}

// DayResponse is one day of the calendar
type DayResponse struct {
	Date   string              `json:"date"`
	Scope  string              `json:"scope"`
	Groups []calendar.DayGroup `json:"groups"`
}

// WeekResponse is the seven days starting at Monday
type WeekResponse struct {
	Start string               `json:"start"`
	Scope string               `json:"scope"`
	Days  []calendar.DayColumn `json:"days"`
}

// PreferencesDTO is the persisted view state for a scope
type PreferencesDTO struct {
	WeekAnchor string          `json:"week_anchor"`
	Expanded   map[string]bool `json:"expanded"`
}
