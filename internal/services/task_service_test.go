package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/database"
	"github.com/yukikurage/tasker/internal/events"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/repository"
)

type taskServiceEnv struct {
	db      *gorm.DB
	service *TaskService
	hints   []calendar.Hint
}

func setupTaskService(t *testing.T) *taskServiceEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	env := &taskServiceEnv{db: db}
	bus := events.NewMemoryBus()
	bus.Subscribe(events.TopicTaskHint, func(_ context.Context, ev events.Event) {
		env.hints = append(env.hints, ev.Payload.(calendar.Hint))
	})
	env.service = NewTaskService(repository.NewTaskRepository(db, nil), bus)
	return env
}

func TestTaskService_CreateBroadcastsInsertHint(t *testing.T) {
	env := setupTaskService(t)
	due := time.Date(2024, 6, 10, 18, 45, 0, 0, time.UTC)

	task, err := env.service.CreateTask(context.Background(), CreateTaskInput{
		Name:        "  Write report ",
		DueDate:     &due,
		AssigneeIDs: []string{"u1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Write report", task.Name)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), *task.DueDate)
	require.Len(t, env.hints, 1)
	assert.True(t, env.hints[0].Insert)
	assert.Equal(t, task.ID, env.hints[0].Patch.ID)
	assert.Equal(t, []string{"u1"}, env.hints[0].Patch.AssigneeIDs.Value)
}

func TestTaskService_CreateValidation(t *testing.T) {
	env := setupTaskService(t)
	ctx := context.Background()

	_, err := env.service.CreateTask(ctx, CreateTaskInput{Name: " "})
	assert.ErrorIs(t, err, ErrNameRequired)

	missing := "missing"
	_, err = env.service.CreateTask(ctx, CreateTaskInput{Name: "Child", ParentID: &missing})
	assert.ErrorIs(t, err, ErrParentNotFound)
	assert.Empty(t, env.hints)
}

func TestTaskService_UpdateKeepsAbsentFields(t *testing.T) {
	env := setupTaskService(t)
	ctx := context.Background()
	note := "keep me"
	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.db.Create(&models.Task{ID: "t1", Name: "Old", Note: &note, DueDate: &due}).Error)

	updated, err := env.service.UpdateTask(ctx, "t1", UpdateTaskInput{
		Name:    calendar.Value("New"),
		DueDate: calendar.Value[*time.Time](nil),
	})
	require.NoError(t, err)

	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, &note, updated.Note)
	assert.Nil(t, updated.DueDate)
	require.Len(t, env.hints, 1)
	assert.False(t, env.hints[0].Insert)
}

func TestTaskService_UpdateValidation(t *testing.T) {
	env := setupTaskService(t)
	ctx := context.Background()
	require.NoError(t, env.db.Create(&models.Task{ID: "root", Name: "Root"}).Error)
	require.NoError(t, env.db.Create(&models.Task{ID: "child", Name: "Child", ParentID: strPtr("root")}).Error)

	_, err := env.service.UpdateTask(ctx, "nope", UpdateTaskInput{Name: calendar.Value("x")})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = env.service.UpdateTask(ctx, "root", UpdateTaskInput{Name: calendar.Value("")})
	assert.ErrorIs(t, err, ErrNameEmpty)

	_, err = env.service.UpdateTask(ctx, "root", UpdateTaskInput{ParentID: calendar.Value(strPtr("child"))})
	assert.ErrorIs(t, err, ErrParentCycle)

	_, err = env.service.UpdateTask(ctx, "root", UpdateTaskInput{ParentID: calendar.Value(strPtr("root"))})
	assert.ErrorIs(t, err, ErrParentCycle)

	_, err = env.service.UpdateTask(ctx, "child", UpdateTaskInput{ParentID: calendar.Value(strPtr("ghost"))})
	assert.ErrorIs(t, err, ErrParentNotFound)

	moved, err := env.service.UpdateTask(ctx, "child", UpdateTaskInput{ParentID: calendar.Value[*string](nil)})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
}

func strPtr(s string) *string { return &s }
