package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/pkg/config"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

type fakeUserStore struct {
	users       map[string]*models.User
	roles       map[string][]models.Role
	currentRole map[string]models.Role
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) Roles(ctx context.Context, userID string) ([]models.Role, error) {
	return f.roles[userID], nil
}

func (f *fakeUserStore) SetCurrentRole(ctx context.Context, userID string, role models.Role) error {
	if f.currentRole == nil {
		f.currentRole = map[string]models.Role{}
	}
	f.currentRole[userID] = role
	return nil
}

func (f *fakeUserStore) TouchLastLogin(ctx context.Context, userID string) error {
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeUserStore) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	store := &fakeUserStore{
		users: map[string]*models.User{
			"user-1": {
				ID:           "user-1",
				Email:        "asha@example.edu",
				PasswordHash: string(hash),
				FirstName:    "Asha",
				LastName:     "Verma",
				CurrentRole:  models.RoleStudent,
				Active:       true,
			},
		},
		roles: map[string][]models.Role{
			"user-1": {models.RoleStudent, models.RoleFaculty},
		},
	}
	svc := NewAuthService(store, nil, nil, config.JWTConfig{Secret: "test-secret", Expiration: time.Hour, RefreshExpiration: 24 * time.Hour})
	return svc, store
}

func TestLoginIssuesRoleBoundToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "asha@example.edu", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	assert.Equal(t, "Asha Verma", resp.User.FullName)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "asha@example.edu", Password: "wrong"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, store := newAuthFixture(t)
	store.users["user-1"].Active = false
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "asha@example.edu", Password: "secret123"})
	require.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestSwitchRoleToGrantedRole(t *testing.T) {
	svc, store := newAuthFixture(t)

	resp, err := svc.SwitchRole(context.Background(), "user-1", models.SwitchRoleRequest{Role: "faculty"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, resp.User.Role)
	assert.Equal(t, models.RoleFaculty, store.currentRole["user-1"])

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, claims.Role, "the fresh token carries the new role")
}

func TestSwitchRoleDeniesUngranted(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.SwitchRole(context.Background(), "user-1", models.SwitchRoleRequest{Role: "director"})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.ValidateToken("not-a-token")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshIssuesFreshPair(t *testing.T) {
	svc, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "asha@example.edu", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, login.RefreshToken)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)

	claims, err := svc.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "asha@example.edu", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: login.AccessToken})
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshTokenIsNotARequestCredential(t *testing.T) {
	svc, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "asha@example.edu", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.RefreshToken)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
