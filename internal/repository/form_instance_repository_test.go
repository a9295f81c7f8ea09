package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

func newFormRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleInstance() *models.FormInstance {
	return &models.FormInstance{
		ID:          "form-1",
		FormType:    "irb-extension",
		StudentID:   "2021PHD001",
		Status:      models.FormStatusDraft,
		Completion:  models.CompletionIncomplete,
		Stage:       models.RoleStudent,
		Steps:       models.StepList{models.RoleStudent, models.RoleFaculty, models.StageComplete},
		RoleState:   models.RoleStateMap{},
		History:     models.History{{Message: "Form has been initiated", Actor: "Asha Verma", At: time.Now()}},
		Payload:     models.Payload{"reason": "fieldwork"},
		Version:     1,
	}
}

func TestFormInstanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_instances")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forms SET count = count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), sampleInstance(), "ledger-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_instances")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleInstance(), "ledger-1")
	require.ErrorIs(t, err, appErrors.ErrPendingFormExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryCreateCountExhausted(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_instances")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forms SET count = count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleInstance(), "ledger-1")
	require.ErrorIs(t, err, appErrors.ErrMaxCountReached)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryApplyTransition(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)
	inst := sampleInstance()
	inst.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE form_instances SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ledgerRows := sqlmock.NewRows([]string{
		"id", "student_id", "form_type", "form_name", "department_id", "stage",
		"count", "max_count", "availability", "created_at", "updated_at",
	}).AddRow("ledger-1", "2021PHD001", "irb-extension", "IRB Extension", "dept-1",
		"student", 1, 10, `{"student":true}`, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, form_type, form_name")).
		WithArgs("2021PHD001", "irb-extension").
		WillReturnRows(ledgerRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forms SET stage =")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyTransition(context.Background(), inst, &models.LedgerUpdate{
		StudentID: "2021PHD001",
		FormType:  "irb-extension",
		Stage:     models.RoleFaculty,
	})
	require.NoError(t, err)
	require.Equal(t, 4, inst.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryApplyTransitionConflict(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)
	inst := sampleInstance()
	inst.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE form_instances SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyTransition(context.Background(), inst, nil)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.Equal(t, 3, inst.Version, "version restored after a lost race")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "form_type", "student_id", "status", "completion", "stage", "steps",
		"current_step", "maximum_step", "role_state", "history", "payload", "version",
		"created_at", "updated_at",
	}).AddRow("form-1", "irb-extension", "2021PHD001", "pending", "incomplete", "faculty",
		`["student","faculty","complete"]`, 1, 1, `{"student":{"lock":true}}`,
		`[{"message":"Form has been initiated","actor":"Asha Verma","at":"2026-01-10T10:00:00Z"}]`,
		`{"reason":"fieldwork"}`, 2, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, form_type, student_id")).
		WithArgs("form-1").
		WillReturnRows(rows)

	inst, err := repo.GetByID(context.Background(), "form-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleFaculty, inst.Stage)
	require.True(t, inst.StateFor(models.RoleStudent).Lock)
	require.Len(t, inst.History, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryCountCompleted(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM form_instances")).
		WithArgs("irb-extension", "2021PHD001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountCompleted(context.Background(), "irb-extension", "2021PHD001")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM form_instances")).
		WithArgs("form-1", "irb-extension").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("2021PHD001"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM form_instances")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forms SET count = GREATEST(count - 1, 0)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "form-1", "irb-extension"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormInstanceRepositoryListScoped(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormInstanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM form_instances f")).
		WithArgs("irb-extension", "2021PHD001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := sqlmock.NewRows([]string{
		"id", "form_type", "student_id", "status", "completion", "stage", "steps",
		"current_step", "maximum_step", "role_state", "history", "payload", "version",
		"created_at", "updated_at", "first_name", "last_name",
	}).AddRow("form-1", "irb-extension", "2021PHD001", "pending", "incomplete", "faculty",
		`["student","faculty","complete"]`, 1, 1, `{}`, `[]`, `{}`, 2,
		time.Now(), time.Now(), "Asha", "Verma")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT f.id, f.form_type")).
		WithArgs("irb-extension", "2021PHD001", 20, 0).
		WillReturnRows(rows)

	list, total, err := repo.List(context.Background(), "irb-extension",
		models.ListScope{StudentRollNo: "2021PHD001"}, nil, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.Equal(t, "Asha Verma", list[0].StudentName())
	require.NoError(t, mock.ExpectationsWereMet())
}
