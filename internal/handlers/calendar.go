package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/constants"
	"github.com/yukikurage/tasker/internal/dto"
	apierrors "github.com/yukikurage/tasker/internal/errors"
	"github.com/yukikurage/tasker/internal/middleware"
)

// CalendarHandler serves day and week views from the live projections and
// applies drag-and-drop and completion toggles through them.
type CalendarHandler struct {
	registry *calendar.Registry
	keeper   *calendar.PreferenceKeeper
	now      func() time.Time
}

func NewCalendarHandler(registry *calendar.Registry, keeper *calendar.PreferenceKeeper) *CalendarHandler {
	return &CalendarHandler{
		registry: registry,
		keeper:   keeper,
		now:      time.Now,
	}
}

func scopeOf(c *gin.Context) calendar.Scope {
	return calendar.Scope{ProjectID: c.Query("project_id")}
}

func parseDay(raw string) (time.Time, error) {
	return time.ParseInLocation(constants.DateLayout, raw, time.UTC)
}

func (h *CalendarHandler) engine(c *gin.Context, scope calendar.Scope) (*calendar.Engine, bool) {
	engine, err := h.registry.Engine(c.Request.Context(), scope)
	if err != nil {
		respondCalendarError(c, err)
		return nil, false
	}
	return engine, true
}

// Day returns the groups shown on one day
func (h *CalendarHandler) Day(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}
	day, err := parseDay(c.Query("date"))
	if err != nil {
		apierrors.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	scope := scopeOf(c)
	engine, ok := h.engine(c, scope)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.DayResponse{
		Date:   day.Format(constants.DateLayout),
		Scope:  scope.Key(),
		Groups: calendar.DayView(engine.Snapshot(), day, userID, c.Query("all") == "true"),
	})
}

// Week returns seven day columns. Without an anchor the stored week anchor
// is used, then the current week.
func (h *CalendarHandler) Week(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}
	scope := scopeOf(c)

	raw := c.Query("anchor")
	if raw == "" {
		prefs, err := h.keeper.Load(c.Request.Context(), userID, scope)
		if err != nil {
			apierrors.InternalError(c, "Failed to load preferences")
			return
		}
		raw = prefs.WeekAnchor
	}
	anchor := h.now().UTC()
	if raw != "" {
		parsed, err := parseDay(raw)
		if err != nil {
			apierrors.BadRequest(c, "anchor must be YYYY-MM-DD")
			return
		}
		anchor = parsed
	}

	engine, ok := h.engine(c, scope)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.WeekResponse{
		Start: calendar.WeekStart(anchor).Format(constants.DateLayout),
		Scope: scope.Key(),
		Days:  calendar.WeekView(engine.Snapshot(), anchor, userID, c.Query("all") == "true"),
	})
}

// Move drops a task's whole group on a day
func (h *CalendarHandler) Move(c *gin.Context) {
	var req dto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	day, err := parseDay(req.Date)
	if err != nil {
		apierrors.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	engine, ok := h.engine(c, scopeOf(c))
	if !ok {
		return
	}
	result, err := engine.MoveGroup(c.Request.Context(), req.TaskID, day)
	if err != nil {
		respondCalendarError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MoveResponse{
		TaskIDs: result.IDs,
		Date:    result.DueDate.Format(constants.DateLayout),
		Changed: result.Changed,
	})
}

// Toggle completes or reopens a task
func (h *CalendarHandler) Toggle(c *gin.Context) {
	engine, ok := h.engine(c, scopeOf(c))
	if !ok {
		return
	}
	task, err := engine.ToggleCompletion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondCalendarError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GetPreferences returns the stored view state for the scope
func (h *CalendarHandler) GetPreferences(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	prefs, err := h.keeper.Load(c.Request.Context(), userID, scopeOf(c))
	if err != nil {
		apierrors.InternalError(c, "Failed to load preferences")
		return
	}
	c.JSON(http.StatusOK, dto.PreferencesDTO(prefs))
}

// PutPreferences schedules a debounced write of the view state
func (h *CalendarHandler) PutPreferences(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	var req dto.PreferencesDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if req.WeekAnchor != "" {
		if _, err := parseDay(req.WeekAnchor); err != nil {
			apierrors.BadRequest(c, "week_anchor must be YYYY-MM-DD")
			return
		}
	}
	if req.Expanded == nil {
		req.Expanded = map[string]bool{}
	}

	h.keeper.Save(userID, scopeOf(c), calendar.Preferences(req))
	c.JSON(http.StatusAccepted, req)
}

func respondCalendarError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calendar.ErrTaskNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, calendar.ErrClosed):
		apierrors.ServiceUnavailable(c, err.Error())
	default:
		apierrors.OperationFailed(c, err.Error(), nil)
	}
}
