package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/database"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/realtime"
)

type TaskRepositoryTestSuite struct {
	suite.Suite
	db     *gorm.DB
	broker *realtime.Broker
	repo   TaskRepository
	users  UserRepository
	ctx    context.Context

	mu      sync.Mutex
	changes []realtime.ChangeEvent
}

func (suite *TaskRepositoryTestSuite) SetupTest() {
	var err error
	suite.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(database.AutoMigrate(suite.db))

	suite.ctx = context.Background()
	suite.changes = nil
	suite.broker = realtime.NewBroker()
	record := func(_ context.Context, ev realtime.ChangeEvent) {
		suite.mu.Lock()
		defer suite.mu.Unlock()
		suite.changes = append(suite.changes, ev)
	}
	suite.broker.Subscribe("tasks", record)
	suite.broker.Subscribe("task_users", record)
	suite.broker.Subscribe("task_projects", record)

	suite.repo = NewTaskRepository(suite.db, suite.broker)
	suite.users = NewUserRepository(suite.db)
	suite.seed()
}

func (suite *TaskRepositoryTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func strPtr(s string) *string { return &s }

func date(d int) *time.Time {
	t := time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func (suite *TaskRepositoryTestSuite) seed() {
	db := suite.db
	suite.Require().NoError(db.Create(&models.Status{ID: "s1", Name: "Open", Color: "#00f"}).Error)
	suite.Require().NoError(db.Create(&models.Priority{ID: "pr1", Name: "High", Color: "#f00"}).Error)
	suite.Require().NoError(db.Create(&models.User{ID: "u1", Email: "u1@example.com"}).Error)
	suite.Require().NoError(db.Create(&models.User{ID: "u2", Email: "u2@example.com"}).Error)
	suite.Require().NoError(db.Create(&models.Project{ID: "p1", Name: "Beta"}).Error)
	suite.Require().NoError(db.Create(&models.Project{ID: "p2", Name: "Alpha"}).Error)

	suite.Require().NoError(db.Create(&models.Task{ID: "t1", Name: "Plain", DueDate: date(10)}).Error)
	suite.Require().NoError(db.Create(&models.Task{
		ID: "t2", Name: "Linked", DueDate: date(11), StatusID: strPtr("s1"), PriorityID: strPtr("pr1"),
	}).Error)
	suite.Require().NoError(db.Create(&models.Task{ID: "t3", Name: "Sub", ParentID: strPtr("t2")}).Error)
	suite.Require().NoError(db.Create(&models.Task{ID: "gone", Name: "Trashed"}).Error)
	suite.Require().NoError(db.Delete(&models.Task{ID: "gone"}).Error)

	suite.Require().NoError(db.Create(&models.TaskProject{TaskID: "t2", ProjectID: "p1"}).Error)
	suite.Require().NoError(db.Create(&models.TaskProject{TaskID: "t2", ProjectID: "p2"}).Error)
	suite.Require().NoError(db.Create(&models.TaskProject{TaskID: "t3", ProjectID: "p1"}).Error)
	suite.Require().NoError(db.Create(&models.TaskUser{TaskID: "t2", UserID: "u2"}).Error)
	suite.Require().NoError(db.Create(&models.TaskUser{TaskID: "t2", UserID: "u1"}).Error)
}

func (suite *TaskRepositoryTestSuite) recorded() []realtime.ChangeEvent {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	return append([]realtime.ChangeEvent(nil), suite.changes...)
}

func (suite *TaskRepositoryTestSuite) TestFetchScope_AllSkipsTrashed() {
	tasks, err := suite.repo.FetchScope(suite.ctx, calendar.Scope{})
	suite.Require().NoError(err)

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	suite.Equal([]string{"t1", "t2", "t3"}, ids)
}

func (suite *TaskRepositoryTestSuite) TestFetchScope_JoinsDisplayFields() {
	tasks, err := suite.repo.FetchScope(suite.ctx, calendar.Scope{ProjectID: "p1"})
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 2)

	linked := tasks[0]
	suite.Equal("t2", linked.ID)
	suite.Equal("Alpha", linked.ProjectName)
	suite.Equal([]string{"p1", "p2"}, linked.ProjectIDs)
	suite.Equal([]string{"u1", "u2"}, linked.AssigneeIDs)
	suite.Equal(&calendar.Lookup{ID: "s1", Name: "Open", Color: "#00f"}, linked.Status)
	suite.Equal(&calendar.Lookup{ID: "pr1", Name: "High", Color: "#f00"}, linked.Priority)
	suite.True(linked.DueDate.Equal(*date(11)))

	suite.Equal("t3", tasks[1].ID)
	suite.Equal(strPtr("t2"), tasks[1].ParentID)
}

func (suite *TaskRepositoryTestSuite) TestFetchScope_TrashedLookupStillShown() {
	suite.Require().NoError(suite.db.Delete(&models.Status{ID: "s1"}).Error)

	task, err := suite.repo.FetchTask(suite.ctx, "t2")
	suite.Require().NoError(err)
	suite.Require().NotNil(task.Status)
	suite.Equal("Open", task.Status.Name)
}

func (suite *TaskRepositoryTestSuite) TestFetchTask_MissingOrTrashed() {
	task, err := suite.repo.FetchTask(suite.ctx, "gone")
	suite.NoError(err)
	suite.Nil(task)

	task, err = suite.repo.FetchTask(suite.ctx, "nope")
	suite.NoError(err)
	suite.Nil(task)
}

func (suite *TaskRepositoryTestSuite) TestUpdateDueDates_OneStatementAndAnnounced() {
	due := time.Date(2024, 6, 20, 15, 30, 0, 0, time.UTC)
	suite.Require().NoError(suite.repo.UpdateDueDates(suite.ctx, []string{"t2", "t3"}, due))

	for _, id := range []string{"t2", "t3"} {
		task, err := suite.repo.FetchTask(suite.ctx, id)
		suite.Require().NoError(err)
		suite.True(task.DueDate.Equal(*date(20)), id)
	}

	changes := suite.recorded()
	suite.Require().Len(changes, 2)
	for _, ev := range changes {
		suite.Equal("tasks", ev.Table)
		suite.Equal(realtime.Update, ev.Type)
		suite.Equal(suite.broker.Origin(), ev.Origin)
		suite.Contains(string(ev.New), "2024-06-20T00:00:00Z")
	}
}

func (suite *TaskRepositoryTestSuite) TestSetCompletion() {
	done := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)
	suite.Require().NoError(suite.repo.SetCompletion(suite.ctx, "t1", &done))

	task, err := suite.repo.FetchTask(suite.ctx, "t1")
	suite.Require().NoError(err)
	suite.True(task.Completed())

	suite.Require().NoError(suite.repo.SetCompletion(suite.ctx, "t1", nil))
	task, err = suite.repo.FetchTask(suite.ctx, "t1")
	suite.Require().NoError(err)
	suite.False(task.Completed())

	suite.ErrorIs(suite.repo.SetCompletion(suite.ctx, "gone", &done), ErrTaskNotFound)
}

func (suite *TaskRepositoryTestSuite) TestCreate_WithLinks() {
	task := &models.Task{Name: "Fresh", DueDate: date(14)}
	suite.Require().NoError(suite.repo.Create(suite.ctx, task, []string{"u1", "u1"}, []string{"p2"}))
	suite.NotEmpty(task.ID)

	fetched, err := suite.repo.FetchTask(suite.ctx, task.ID)
	suite.Require().NoError(err)
	suite.Equal([]string{"u1"}, fetched.AssigneeIDs)
	suite.Equal([]string{"p2"}, fetched.ProjectIDs)

	changes := suite.recorded()
	suite.Require().Len(changes, 1)
	suite.Equal(realtime.Insert, changes[0].Type)
	suite.Equal(task.ID, changes[0].ID)
}

func (suite *TaskRepositoryTestSuite) TestReplaceAssignees_RevivesTrashedLink() {
	suite.Require().NoError(suite.db.Where("task_id = ? AND user_id = ?", "t2", "u1").Delete(&models.TaskUser{}).Error)

	suite.Require().NoError(suite.repo.ReplaceAssignees(suite.ctx, "t2", []string{"u1"}))

	task, err := suite.repo.FetchTask(suite.ctx, "t2")
	suite.Require().NoError(err)
	suite.Equal([]string{"u1"}, task.AssigneeIDs)

	changes := suite.recorded()
	suite.Require().Len(changes, 1)
	suite.Equal("task_users", changes[0].Table)
}

func (suite *TaskRepositoryTestSuite) TestReplaceProjects_KeepsTrashedLinks() {
	suite.Require().NoError(suite.db.Where("task_id = ? AND project_id = ?", "t2", "p1").Delete(&models.TaskProject{}).Error)

	suite.Require().NoError(suite.repo.ReplaceProjects(suite.ctx, "t2", nil))

	var trashed int64
	suite.Require().NoError(suite.db.Unscoped().Model(&models.TaskProject{}).
		Where("task_id = ? AND deleted_at IS NOT NULL", "t2").Count(&trashed).Error)
	suite.Equal(int64(1), trashed)

	task, err := suite.repo.FetchTask(suite.ctx, "t2")
	suite.Require().NoError(err)
	suite.Empty(task.ProjectIDs)
	suite.Empty(task.ProjectName)
}

func (suite *TaskRepositoryTestSuite) TestUpdate() {
	suite.Require().NoError(suite.repo.Update(suite.ctx, "t1", map[string]any{"name": "Renamed", "note": nil}))

	task, err := suite.repo.FindByID(suite.ctx, "t1")
	suite.Require().NoError(err)
	suite.Equal("Renamed", task.Name)

	suite.ErrorIs(suite.repo.Update(suite.ctx, "gone", map[string]any{"name": "x"}), ErrTaskNotFound)
	suite.ErrorIs(suite.repo.Update(suite.ctx, "gone", nil), ErrTaskNotFound)
	suite.NoError(suite.repo.Update(suite.ctx, "t1", nil))
}

func (suite *TaskRepositoryTestSuite) TestEnsureProfile() {
	created, err := suite.users.EnsureProfile(suite.ctx, &models.User{ID: "uid-new", Email: "new@example.com", Name: "New"})
	suite.Require().NoError(err)
	suite.Equal("new@example.com", created.Email)

	again, err := suite.users.EnsureProfile(suite.ctx, &models.User{ID: "uid-new", Email: "changed@example.com"})
	suite.Require().NoError(err)
	suite.Equal("new@example.com", again.Email)

	suite.Require().NoError(suite.db.Delete(&models.User{ID: "u2"}).Error)
	_, err = suite.users.EnsureProfile(suite.ctx, &models.User{ID: "u2", Email: "u2@example.com"})
	suite.ErrorIs(err, ErrProfileTrashed)

	_, err = suite.users.FindByID(suite.ctx, "u2")
	suite.ErrorIs(err, ErrUserNotFound)
}

func TestTaskRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(TaskRepositoryTestSuite))
}
