package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

// current_role is reserved in PostgreSQL, so the column is always quoted.
const userColumns = `id, email, password_hash, first_name, last_name, "current_role", active,
       last_login_at, created_at, updated_at`

// UserRepository reads and updates portal accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail fetches a user for login.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID fetches a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// Roles returns the roles granted to a user. The active role must be one
// of these.
func (r *UserRepository) Roles(ctx context.Context, userID string) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID); err != nil {
		return nil, err
	}
	return roles, nil
}

// SetCurrentRole switches the user's active role.
func (r *UserRepository) SetCurrentRole(ctx context.Context, userID string, role models.Role) error {
	const query = `UPDATE users SET "current_role" = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, role, time.Now().UTC())
	return err
}

// TouchLastLogin records a successful login.
func (r *UserRepository) TouchLastLogin(ctx context.Context, userID string) error {
	const query = `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC())
	return err
}
