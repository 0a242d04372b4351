package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/tasker/internal/cascade"
	"github.com/yukikurage/tasker/internal/dto"
	apierrors "github.com/yukikurage/tasker/internal/errors"
	"github.com/yukikurage/tasker/internal/utils"
)

// TrashHandler exposes the lifecycle transitions of every registered entity.
type TrashHandler struct {
	manager *cascade.Manager
}

func NewTrashHandler(manager *cascade.Manager) *TrashHandler {
	return &TrashHandler{manager: manager}
}

// SoftDelete moves a record and its dependents to the trash
func (h *TrashHandler) SoftDelete(c *gin.Context) {
	entity, id := cascade.EntityType(c.Param("entity")), c.Param("id")
	report, err := h.manager.SoftDelete(c.Request.Context(), entity, id)
	if err != nil {
		respondCascadeError(c, err, report)
		return
	}
	c.JSON(http.StatusOK, dto.ToReportDTO(entity, id, report))
}

// Restore brings a trashed record and its dependents back
func (h *TrashHandler) Restore(c *gin.Context) {
	entity, id := cascade.EntityType(c.Param("entity")), c.Param("id")
	report, err := h.manager.Restore(c.Request.Context(), entity, id)
	if err != nil {
		respondCascadeError(c, err, report)
		return
	}
	c.JSON(http.StatusOK, dto.ToReportDTO(entity, id, report))
}

// HardDelete permanently removes a record and its dependents
func (h *TrashHandler) HardDelete(c *gin.Context) {
	entity, id := cascade.EntityType(c.Param("entity")), c.Param("id")
	report, err := h.manager.HardDelete(c.Request.Context(), entity, id)
	if err != nil {
		respondCascadeError(c, err, report)
		return
	}
	c.JSON(http.StatusOK, dto.ToReportDTO(entity, id, report))
}

// ReplaceReferences reassigns every row pointing at a lookup value
func (h *TrashHandler) ReplaceReferences(c *gin.Context) {
	entity, id := cascade.EntityType(c.Param("lookup")), c.Param("id")

	var req dto.ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	report, err := h.manager.ReplaceReferences(c.Request.Context(), entity, id, req.ReplacementID)
	if err != nil {
		respondCascadeError(c, err, report)
		return
	}
	c.JSON(http.StatusOK, dto.ToReportDTO(entity, id, report))
}

// ListTrash lists trashed records of one entity type
func (h *TrashHandler) ListTrash(c *gin.Context) {
	entity := cascade.EntityType(c.Param("entity"))
	params := utils.GetPaginationParams(c)

	items, total, err := h.manager.Trash(c.Request.Context(), entity, params)
	if err != nil {
		respondCascadeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, dto.TrashListResponse{
		Entity:     string(entity),
		Items:      items,
		Pagination: params.Response(total),
	})
}

// respondCascadeError maps validation errors to 4xx. Anything else is a
// mutation failure and is passed through with its raw message and the rows
// changed before it happened.
func respondCascadeError(c *gin.Context, err error, report *cascade.Report) {
	switch {
	case errors.Is(err, cascade.ErrUnknownEntity),
		errors.Is(err, cascade.ErrNotLookup),
		errors.Is(err, cascade.ErrSameReplacement):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, cascade.ErrNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, cascade.ErrReplacementRequired):
		apierrors.Unprocessable(c, apierrors.ErrCodeReplacementRequired, err.Error())
	case errors.Is(err, cascade.ErrReplacementNotFound):
		apierrors.Unprocessable(c, apierrors.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, cascade.ErrReferencesRemain):
		apierrors.Conflict(c, apierrors.ErrCodeReferencesRemain, err.Error())
	case errors.Is(err, cascade.ErrIdentityUnavailable):
		apierrors.ServiceUnavailable(c, err.Error())
	default:
		var details interface{}
		if report != nil && len(report.Rows) > 0 {
			details = report.Rows
		}
		apierrors.OperationFailed(c, err.Error(), details)
	}
}
