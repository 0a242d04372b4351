package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/dto"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/prefs"
	"github.com/yukikurage/tasker/internal/realtime"
	"github.com/yukikurage/tasker/internal/repository"
)

type calendarTestEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	handler *CalendarHandler
	keeper  *calendar.PreferenceKeeper
}

func setupCalendarTestEnv(t *testing.T) *calendarTestEnv {
	db := newTestDB(t)
	broker := realtime.NewBroker()
	repo := repository.NewTaskRepository(db, broker)

	registry := calendar.NewRegistry(repo, broker, nil, calendar.DefaultOptions())
	t.Cleanup(registry.Close)
	keeper := calendar.NewPreferenceKeeper(prefs.NewGormStore(db), time.Hour)

	handler := NewCalendarHandler(registry, keeper)
	handler.now = func() time.Time { return time.Date(2024, 6, 13, 9, 0, 0, 0, time.UTC) }

	r := gin.New()
	cal := r.Group("/api/calendar", withUser("u1"))
	cal.GET("/day", handler.Day)
	cal.GET("/week", handler.Week)
	cal.POST("/move", handler.Move)
	cal.POST("/tasks/:id/toggle", handler.Toggle)
	cal.GET("/preferences", handler.GetPreferences)
	cal.PUT("/preferences", handler.PutPreferences)

	due := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Project{ID: "p1", Name: "Launch"}).Error)
	require.NoError(t, db.Create(&models.Task{ID: "a", Name: "Launch prep", DueDate: &due}).Error)
	require.NoError(t, db.Create(&models.Task{ID: "b", Name: "Slides", ParentID: strPtr("a")}).Error)
	require.NoError(t, db.Create(&models.Task{ID: "c", Name: "Other", DueDate: &due}).Error)
	require.NoError(t, db.Create(&models.TaskUser{TaskID: "a", UserID: "u1"}).Error)
	require.NoError(t, db.Create(&models.TaskUser{TaskID: "c", UserID: "u2"}).Error)
	require.NoError(t, db.Create(&models.TaskProject{TaskID: "c", ProjectID: "p1"}).Error)

	return &calendarTestEnv{db: db, router: r, handler: handler, keeper: keeper}
}

func TestCalendarHandler_Day(t *testing.T) {
	env := setupCalendarTestEnv(t)

	w := doJSON(t, env.router, http.MethodGet, "/api/calendar/day?date=2024-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.DayResponse](t, w)
	assert.Equal(t, "all", resp.Scope)
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "a", resp.Groups[0].Parent.ID)
	assert.Empty(t, resp.Groups[0].Children)

	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/day?date=2024-06-12&all=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.DayResponse](t, w)
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, "Launch prep", resp.Groups[0].Parent.Name)
	require.Len(t, resp.Groups[0].Children, 1)
	assert.Equal(t, "b", resp.Groups[0].Children[0].ID)
	assert.Equal(t, "Other", resp.Groups[1].Parent.Name)

	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/day?date=2024-06-12&all=true&project_id=p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.DayResponse](t, w)
	assert.Equal(t, "project:p1", resp.Scope)
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "c", resp.Groups[0].Parent.ID)

	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/day?date=June", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarHandler_Week(t *testing.T) {
	env := setupCalendarTestEnv(t)

	w := doJSON(t, env.router, http.MethodGet, "/api/calendar/week", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.WeekResponse](t, w)
	assert.Equal(t, "2024-06-10", resp.Start)
	require.Len(t, resp.Days, 7)
	assert.Equal(t, "2024-06-12", resp.Days[2].Date)
	assert.Len(t, resp.Days[2].Groups, 1)

	env.keeper.Save("u1", calendar.Scope{}, calendar.Preferences{WeekAnchor: "2024-06-20", Expanded: map[string]bool{}})
	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/week", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-06-17", decode[dto.WeekResponse](t, w).Start)

	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/week?anchor=2024-06-02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-05-27", decode[dto.WeekResponse](t, w).Start)
}

func TestCalendarHandler_Move(t *testing.T) {
	env := setupCalendarTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/api/calendar/move", map[string]string{"task_id": "b", "date": "2024-06-14"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.MoveResponse](t, w)
	assert.Equal(t, []string{"a", "b"}, resp.TaskIDs)
	assert.Equal(t, "2024-06-14", resp.Date)
	assert.True(t, resp.Changed)

	var stored []models.Task
	require.NoError(t, env.db.Where("id IN ?", []string{"a", "b"}).Order("id").Find(&stored).Error)
	require.Len(t, stored, 2)
	for _, task := range stored {
		require.NotNil(t, task.DueDate)
		assert.Equal(t, "2024-06-14", task.DueDate.UTC().Format("2006-01-02"))
	}

	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/day?date=2024-06-14", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.DayResponse](t, w).Groups, 1)

	w = doJSON(t, env.router, http.MethodPost, "/api/calendar/move", map[string]string{"task_id": "a", "date": "2024-06-14"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[dto.MoveResponse](t, w).Changed)

	w = doJSON(t, env.router, http.MethodPost, "/api/calendar/move", map[string]string{"task_id": "missing", "date": "2024-06-14"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/api/calendar/move", map[string]string{"task_id": "a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarHandler_Toggle(t *testing.T) {
	env := setupCalendarTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/api/calendar/tasks/a/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[calendar.Task](t, w).EndAt)

	var stored models.Task
	require.NoError(t, env.db.First(&stored, "id = ?", "a").Error)
	assert.NotNil(t, stored.EndAt)

	w = doJSON(t, env.router, http.MethodPost, "/api/calendar/tasks/a/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[calendar.Task](t, w).EndAt)

	w = doJSON(t, env.router, http.MethodPost, "/api/calendar/tasks/missing/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalendarHandler_Preferences(t *testing.T) {
	env := setupCalendarTestEnv(t)

	w := doJSON(t, env.router, http.MethodGet, "/api/calendar/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.PreferencesDTO{Expanded: map[string]bool{}}, decode[dto.PreferencesDTO](t, w))

	body := dto.PreferencesDTO{WeekAnchor: "2024-06-10", Expanded: map[string]bool{"2024-06-12": true}}
	w = doJSON(t, env.router, http.MethodPut, "/api/calendar/preferences", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, env.router, http.MethodGet, "/api/calendar/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, decode[dto.PreferencesDTO](t, w))

	require.NoError(t, env.keeper.Flush(context.Background()))
	var stored int64
	env.db.Model(&models.Setting{}).Count(&stored)
	assert.Equal(t, int64(2), stored)

	fresh := calendar.NewPreferenceKeeper(prefs.NewGormStore(env.db), time.Hour)
	loaded, err := fresh.Load(context.Background(), "u1", calendar.Scope{})
	require.NoError(t, err)
	assert.Equal(t, calendar.Preferences(body), loaded)

	w = doJSON(t, env.router, http.MethodPut, "/api/calendar/preferences", dto.PreferencesDTO{WeekAnchor: "next week"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
