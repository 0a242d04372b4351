package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yukikurage/tasker/internal/cascade"
	"github.com/yukikurage/tasker/internal/dto"
	apierrors "github.com/yukikurage/tasker/internal/errors"
	"github.com/yukikurage/tasker/internal/identity"
	"github.com/yukikurage/tasker/internal/models"
)

type fakeDeleter struct {
	err     error
	deleted []string
}

func (f *fakeDeleter) DeleteIdentity(_ context.Context, uid string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, uid)
	return nil
}

func setupTrashTestEnv(t *testing.T, ident identity.Deleter) (*gorm.DB, *gin.Engine) {
	db := newTestDB(t)
	manager := cascade.NewManager(cascade.DefaultRegistry(), cascade.NewGormStore(db), nil, nil, ident)
	handler := NewTrashHandler(manager)

	r := gin.New()
	api := r.Group("/api", withUser("u1"))
	api.DELETE("/entities/:entity/:id", handler.SoftDelete)
	api.GET("/trash/:entity", handler.ListTrash)
	api.POST("/trash/:entity/:id/restore", handler.Restore)
	api.DELETE("/trash/:entity/:id", handler.HardDelete)
	api.POST("/lookups/:lookup/:id/replace", handler.ReplaceReferences)

	require.NoError(t, db.Create(&models.Status{ID: "s1", Name: "Open"}).Error)
	require.NoError(t, db.Create(&models.Status{ID: "s2", Name: "Done"}).Error)
	require.NoError(t, db.Create(&models.User{ID: "u1", Email: "u1@example.com"}).Error)
	require.NoError(t, db.Create(&models.Task{ID: "t1", Name: "Parent", StatusID: strPtr("s1")}).Error)
	require.NoError(t, db.Create(&models.Task{ID: "t2", Name: "Child", ParentID: strPtr("t1")}).Error)
	require.NoError(t, db.Create(&models.TaskUser{TaskID: "t1", UserID: "u1"}).Error)
	return db, r
}

func TestTrashHandler_SoftDeleteListRestore(t *testing.T) {
	db, r := setupTrashTestEnv(t, nil)

	w := doJSON(t, r, http.MethodDelete, "/api/entities/task/t1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[dto.ReportDTO](t, w)
	assert.Equal(t, string(cascade.SoftDelete), report.Transition)
	assert.Equal(t, int64(2), report.Rows["tasks"])

	var live int64
	db.Model(&models.Task{}).Count(&live)
	assert.Equal(t, int64(0), live)

	w = doJSON(t, r, http.MethodGet, "/api/trash/task", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.TrashListResponse](t, w)
	assert.Equal(t, "task", list.Entity)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, int64(2), list.Pagination.Total)

	w = doJSON(t, r, http.MethodPost, "/api/trash/task/t1/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)
	db.Model(&models.Task{}).Count(&live)
	assert.Equal(t, int64(2), live)
}

func TestTrashHandler_Validation(t *testing.T) {
	_, r := setupTrashTestEnv(t, nil)

	tests := []struct {
		name     string
		method   string
		url      string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown entity", http.MethodDelete, "/api/entities/widget/w1", nil, http.StatusBadRequest, apierrors.ErrCodeInvalidInput},
		{"missing record", http.MethodDelete, "/api/entities/task/missing", nil, http.StatusNotFound, apierrors.ErrCodeNotFound},
		{"replacement required", http.MethodPost, "/api/lookups/status/s1/replace", map[string]string{}, http.StatusUnprocessableEntity, apierrors.ErrCodeReplacementRequired},
		{"replacement missing", http.MethodPost, "/api/lookups/status/s1/replace", map[string]string{"replacement_id": "nope"}, http.StatusUnprocessableEntity, apierrors.ErrCodeInvalidInput},
		{"same replacement", http.MethodPost, "/api/lookups/status/s1/replace", map[string]string{"replacement_id": "s1"}, http.StatusBadRequest, apierrors.ErrCodeInvalidInput},
		{"not a lookup", http.MethodPost, "/api/lookups/task/t1/replace", map[string]string{"replacement_id": "t2"}, http.StatusBadRequest, apierrors.ErrCodeInvalidInput},
		{"references remain", http.MethodDelete, "/api/trash/status/s1", nil, http.StatusConflict, apierrors.ErrCodeReferencesRemain},
		{"identity unavailable", http.MethodDelete, "/api/trash/user/u1", nil, http.StatusServiceUnavailable, apierrors.ErrCodeServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, tt.method, tt.url, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, errorCode(t, w))
		})
	}
}

func TestTrashHandler_ReplaceThenHardDelete(t *testing.T) {
	db, r := setupTrashTestEnv(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/lookups/status/s1/replace", map[string]string{"replacement_id": "s2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), decode[dto.ReportDTO](t, w).Rows["tasks.status_id"])

	w = doJSON(t, r, http.MethodDelete, "/api/trash/status/s1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	db.Unscoped().Model(&models.Status{}).Where("id = ?", "s1").Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestTrashHandler_UserHardDelete(t *testing.T) {
	t.Run("identity removed with the profile", func(t *testing.T) {
		ident := &fakeDeleter{}
		db, r := setupTrashTestEnv(t, ident)

		w := doJSON(t, r, http.MethodDelete, "/api/trash/user/u1", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"u1"}, ident.deleted)

		var links int64
		db.Unscoped().Model(&models.TaskUser{}).Count(&links)
		assert.Equal(t, int64(0), links)
	})

	t.Run("identity failure passes the raw message through", func(t *testing.T) {
		ident := &fakeDeleter{err: errors.New("auth/user-disabled")}
		db, r := setupTrashTestEnv(t, ident)

		w := doJSON(t, r, http.MethodDelete, "/api/trash/user/u1", nil)
		require.Equal(t, http.StatusBadGateway, w.Code)
		apiErr := decode[apierrors.APIError](t, w)
		assert.Equal(t, apierrors.ErrCodeOperationFailed, apiErr.Code)
		assert.Equal(t, "auth/user-disabled", apiErr.Message)

		var users int64
		db.Unscoped().Model(&models.User{}).Count(&users)
		assert.Equal(t, int64(1), users)
	})
}
