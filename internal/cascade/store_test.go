package cascade

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewManager(DefaultRegistry(), NewGormStore(db), nil, nil, nil), mock
}

func TestReplaceReferences_SurfacesMutationFailure(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "statuses"`)).
		WithArgs("s2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tasks" SET "status_id"`)).
		WithArgs("s2", "s1").
		WillReturnError(errors.New("permission denied for table tasks"))

	_, err := manager.ReplaceReferences(context.Background(), EntityStatus, "s1", "s2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied for table tasks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHardDelete_StopsAtFirstFailedStep(t *testing.T) {
	manager, mock := newMockManager(t)

	// no sub-tasks, no comments, then the join delete fails
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT id FROM "tasks" WHERE parent_id IN ($1)`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT id FROM "comments" WHERE task_id IN ($1)`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_users WHERE task_id IN ($1)`)).
		WithArgs("t1").
		WillReturnError(errors.New("connection reset"))

	_, err := manager.HardDelete(context.Background(), EntityTask, "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete from task_users")
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
