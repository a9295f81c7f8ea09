package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/service"
	"github.com/noah-isme/phd-portal-api/pkg/config"
)

type handlerUserStore struct {
	user  *models.User
	roles []models.Role
}

func (f *handlerUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if f.user == nil || f.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *handlerUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *handlerUserStore) Roles(context.Context, string) ([]models.Role, error) {
	return f.roles, nil
}

func (f *handlerUserStore) SetCurrentRole(_ context.Context, _ string, role models.Role) error {
	f.user.CurrentRole = role
	return nil
}

func (f *handlerUserStore) TouchLastLogin(context.Context, string) error { return nil }

func newAuthFixture(t *testing.T) (*AuthHandler, *handlerUserStore) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	store := &handlerUserStore{
		user: &models.User{
			ID:           "user-1",
			Email:        "asha@institute.edu",
			PasswordHash: string(hash),
			FirstName:    "Asha",
			LastName:     "Verma",
			CurrentRole:  models.RoleStudent,
			Active:       true,
		},
		roles: []models.Role{models.RoleStudent},
	}
	auth := service.NewAuthService(store, nil, nil, config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	})
	return NewAuthHandler(auth), store
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	body := `{"email":"asha@institute.edu","password":"secret-pass"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Data.AccessToken)
	assert.Equal(t, models.RoleStudent, envelope.Data.User.Role)
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"asha@institute.edu","password":"wrong"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerMeRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)

	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerSwitchRole(t *testing.T) {
	handler, store := newAuthFixture(t)
	store.roles = []models.Role{models.RoleStudent, models.RoleFaculty}

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodPost, "/auth/switch-role", `{"role":"faculty"}`, models.RoleStudent)

	handler.SwitchRole(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, models.RoleFaculty, envelope.Data.User.Role)
}
