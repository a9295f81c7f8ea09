package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

func newRosterRepoMock(t *testing.T) (*RosterRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRosterRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestRosterRecipientsInstituteWideRole(t *testing.T) {
	repo, mock := newRosterRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM users WHERE "current_role" = $1 AND active = TRUE`)).
		WithArgs(models.RoleDordc).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-dordc"))

	ids, err := repo.RecipientUserIDs(context.Background(), models.RoleDordc, "2021PHD001")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-dordc"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRecipientsSupervisors(t *testing.T) {
	repo, mock := newRosterRepoMock(t)

	mock.ExpectQuery(`SELECT f\.user_id FROM faculties f JOIN student_supervisors ss ON ss\.faculty_code = f\.faculty_code WHERE ss\.student_roll_no = \$1`).
		WithArgs("2021PHD001").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-sup"))

	ids, err := repo.RecipientUserIDs(context.Background(), models.RoleFaculty, "2021PHD001")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-sup"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRecipientsUnknownRole(t *testing.T) {
	repo, _ := newRosterRepoMock(t)

	_, err := repo.RecipientUserIDs(context.Background(), models.Role("registrar"), "2021PHD001")
	require.Error(t, err)
}
