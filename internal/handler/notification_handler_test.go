package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

type fakeNotificationSrv struct {
	items      []models.Notification
	pagination *models.Pagination
	unread     int
	err        error
	markedID   string
	markedAll  bool
}

func (f *fakeNotificationSrv) List(context.Context, string, int, int) ([]models.Notification, *models.Pagination, error) {
	return f.items, f.pagination, f.err
}

func (f *fakeNotificationSrv) UnreadCount(context.Context, string) (int, error) {
	return f.unread, f.err
}

func (f *fakeNotificationSrv) MarkRead(_ context.Context, id, _ string) error {
	f.markedID = id
	return f.err
}

func (f *fakeNotificationSrv) MarkAllRead(context.Context, string) error {
	f.markedAll = true
	return f.err
}

func TestNotificationHandlerList(t *testing.T) {
	srv := &fakeNotificationSrv{
		items:      []models.Notification{{ID: "n-1", Title: "IRB Extension"}},
		pagination: &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1, TotalPages: 1},
	}
	handler := NewNotificationHandler(srv)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodGet, "/notifications", "", models.RoleStudent)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data       []models.Notification `json:"data"`
		Pagination *models.Pagination    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "n-1", envelope.Data[0].ID)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	handler := NewNotificationHandler(&fakeNotificationSrv{unread: 3})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodGet, "/notifications/unread-count", "", models.RoleStudent)

	handler.UnreadCount(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 3, envelope.Data["unread"])
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	srv := &fakeNotificationSrv{}
	handler := NewNotificationHandler(srv)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodPatch, "/notifications/n-1/read", "", models.RoleStudent)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}

	handler.MarkRead(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "n-1", srv.markedID)
}

func TestNotificationHandlerMarkAllRead(t *testing.T) {
	srv := &fakeNotificationSrv{}
	handler := NewNotificationHandler(srv)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodPatch, "/notifications/read-all", "", models.RoleStudent)

	handler.MarkAllRead(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, srv.markedAll)
}

func TestNotificationHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewNotificationHandler(&fakeNotificationSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications", nil)

	handler.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
