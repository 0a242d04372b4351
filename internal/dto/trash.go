package dto

import (
	"github.com/yukikurage/tasker/internal/cascade"
	"github.com/yukikurage/tasker/internal/utils"
)

// ReportDTO summarizes a lifecycle transition
type ReportDTO struct {
	Transition string           `json:"transition"`
	Entity     string           `json:"entity"`
	ID         string           `json:"id"`
	Rows       map[string]int64 `json:"rows"`
}

// ToReportDTO converts a cascade report
func ToReportDTO(entity cascade.EntityType, id string, report *cascade.Report) ReportDTO {
	return ReportDTO{
		Transition: string(report.Transition),
		Entity:     string(entity),
		ID:         id,
		Rows:       report.Rows,
	}
}

// ReplaceRequest is the body of POST /api/lookups/:lookup/:id/replace
type ReplaceRequest struct {
	ReplacementID string `json:"replacement_id"`
}

// TrashListResponse represents a paginated trash listing
type TrashListResponse struct {
	Entity     string                   `json:"entity"`
	Items      []cascade.TrashItem      `json:"items"`
	Pagination utils.PaginationResponse `json:"pagination"`
}
