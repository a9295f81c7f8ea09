package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

const pqUniqueViolation = "23505"

const formInstanceColumns = `id, form_type, student_id, status, completion, stage, steps,
       current_step, maximum_step, role_state, history, payload, version, created_at, updated_at`

// ErrVersionConflict signals a lost optimistic-concurrency race.
var ErrVersionConflict = errors.New("form instance version conflict")

// FormInstanceRepository persists the polymorphic form instance envelope.
type FormInstanceRepository struct {
	db *sqlx.DB
}

// NewFormInstanceRepository constructs the repository.
func NewFormInstanceRepository(db *sqlx.DB) *FormInstanceRepository {
	return &FormInstanceRepository{db: db}
}

// GetByID fetches one instance.
func (r *FormInstanceRepository) GetByID(ctx context.Context, id string) (*models.FormInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM form_instances WHERE id = $1`, formInstanceColumns)
	var inst models.FormInstance
	if err := r.db.GetContext(ctx, &inst, query, id); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetByIDAndType fetches one instance scoped to a form type.
func (r *FormInstanceRepository) GetByIDAndType(ctx context.Context, id, formType string) (*models.FormInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM form_instances WHERE id = $1 AND form_type = $2`, formInstanceColumns)
	var inst models.FormInstance
	if err := r.db.GetContext(ctx, &inst, query, id, formType); err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListByStudent returns all of a student's instances of one type.
func (r *FormInstanceRepository) ListByStudent(ctx context.Context, formType, studentID string) ([]models.FormInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM form_instances WHERE form_type = $1 AND student_id = $2 ORDER BY created_at`, formInstanceColumns)
	var out []models.FormInstance
	if err := r.db.SelectContext(ctx, &out, query, formType, studentID); err != nil {
		return nil, fmt.Errorf("list form instances: %w", err)
	}
	return out, nil
}

// CountCompleted counts a student's completed instances of one type. The
// conditional director step keys off this.
func (r *FormInstanceRepository) CountCompleted(ctx context.Context, formType, studentID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM form_instances
        WHERE form_type = $1 AND student_id = $2 AND completion = 'complete'`
	if err := r.db.GetContext(ctx, &count, query, formType, studentID); err != nil {
		return 0, fmt.Errorf("count completed instances: %w", err)
	}
	return count, nil
}

// Create inserts a new instance and bumps the ledger count in one
// transaction. The partial unique index on (student_id, form_type) for
// incomplete rows backs the single-open-instance rule under races; the
// count guard in the UPDATE backs max_count the same way.
func (r *FormInstanceRepository) Create(ctx context.Context, inst *models.FormInstance, ledgerID string) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	if inst.Version == 0 {
		inst.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	const insert = `INSERT INTO form_instances
        (id, form_type, student_id, status, completion, stage, steps, current_step, maximum_step,
         role_state, history, payload, version, created_at, updated_at)
        VALUES (:id, :form_type, :student_id, :status, :completion, :stage, :steps, :current_step, :maximum_step,
         :role_state, :history, :payload, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, inst); err != nil {
		tx.Rollback() //nolint:errcheck
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return appErrors.ErrPendingFormExists
		}
		return fmt.Errorf("insert form instance: %w", err)
	}

	if ledgerID != "" {
		const bump = `UPDATE forms SET count = count + 1, updated_at = $2
            WHERE id = $1 AND count < max_count`
		result, err := tx.ExecContext(ctx, bump, ledgerID, now)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("increment form count: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("check form count rows: %w", err)
		}
		if rows == 0 {
			tx.Rollback() //nolint:errcheck
			return appErrors.ErrMaxCountReached
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit form instance: %w", err)
	}
	return nil
}

// ApplyTransition persists a mutated instance with an optimistic version
// check and syncs the ledger inside the same transaction. A lost race
// returns ErrVersionConflict without touching anything.
func (r *FormInstanceRepository) ApplyTransition(ctx context.Context, inst *models.FormInstance, ledger *models.LedgerUpdate) error {
	now := time.Now().UTC()
	previousVersion := inst.Version
	inst.Version++
	inst.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		inst.Version = previousVersion
		return err
	}

	const update = `UPDATE form_instances SET
        status = :status, completion = :completion, stage = :stage, current_step = :current_step,
        maximum_step = :maximum_step, role_state = :role_state, history = :history, payload = :payload,
        version = :version, updated_at = :updated_at
        WHERE id = :id AND version = :previous_version`
	result, err := tx.NamedExecContext(ctx, update, map[string]interface{}{
		"id":               inst.ID,
		"status":           inst.Status,
		"completion":       inst.Completion,
		"stage":            inst.Stage,
		"current_step":     inst.CurrentStep,
		"maximum_step":     inst.MaximumStep,
		"role_state":       inst.RoleState,
		"history":          inst.History,
		"payload":          inst.Payload,
		"version":          inst.Version,
		"updated_at":       inst.UpdatedAt,
		"previous_version": previousVersion,
	})
	if err != nil {
		tx.Rollback() //nolint:errcheck
		inst.Version = previousVersion
		return fmt.Errorf("update form instance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		inst.Version = previousVersion
		return fmt.Errorf("check form instance rows: %w", err)
	}
	if rows == 0 {
		tx.Rollback() //nolint:errcheck
		inst.Version = previousVersion
		return ErrVersionConflict
	}

	if ledger != nil {
		if err := applyLedgerTx(ctx, tx, ledger, now); err != nil {
			tx.Rollback() //nolint:errcheck
			inst.Version = previousVersion
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		inst.Version = previousVersion
		return fmt.Errorf("commit form transition: %w", err)
	}
	return nil
}

func applyLedgerTx(ctx context.Context, tx *sqlx.Tx, ledger *models.LedgerUpdate, now time.Time) error {
	var record models.GeneralFormRecord
	const fetch = `SELECT id, student_id, form_type, form_name, department_id, stage, count, max_count,
        availability, created_at, updated_at
        FROM forms WHERE student_id = $1 AND form_type = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &record, fetch, ledger.StudentID, ledger.FormType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Ledger-exempt types simply have no row; nothing to sync.
			return nil
		}
		return fmt.Errorf("fetch form ledger: %w", err)
	}

	record.Stage = ledger.Stage
	if ledger.EnableRole != nil {
		if record.Availability == nil {
			record.Availability = models.AvailabilityMap{}
		}
		record.Availability[ledger.EnableRole.LedgerKey()] = true
	}

	const save = `UPDATE forms SET stage = $2, availability = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, save, record.ID, record.Stage, record.Availability, now); err != nil {
		return fmt.Errorf("update form ledger: %w", err)
	}
	return nil
}

// Delete removes an instance and decrements the ledger count (admin only).
func (r *FormInstanceRepository) Delete(ctx context.Context, id, formType string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	var studentID string
	const fetch = `SELECT student_id FROM form_instances WHERE id = $1 AND form_type = $2`
	if err := tx.GetContext(ctx, &studentID, fetch, id, formType); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM form_instances WHERE id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete form instance: %w", err)
	}

	const drop = `UPDATE forms SET count = GREATEST(count - 1, 0), updated_at = $3
        WHERE student_id = $1 AND form_type = $2`
	if _, err := tx.ExecContext(ctx, drop, studentID, formType, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("decrement form count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit form delete: %w", err)
	}
	return nil
}

// List returns a page of instances for a role scope plus dynamic filters,
// joined with the student's user for display columns.
func (r *FormInstanceRepository) List(ctx context.Context, formType string, scope models.ListScope, filters *dto.FilterSet, page, pageSize int) ([]models.FormInstanceRow, int, error) {
	where := []string{"f.form_type = $1"}
	args := []interface{}{formType}

	switch {
	case scope.All:
	case scope.StudentRollNo != "":
		args = append(args, scope.StudentRollNo)
		where = append(where, fmt.Sprintf("f.student_id = $%d", len(args)))
	case len(scope.DepartmentIDs) > 0:
		args = append(args, pq.Array(scope.DepartmentIDs))
		where = append(where, fmt.Sprintf("s.department_id = ANY($%d)", len(args)))
	case scope.SupervisorCode != "":
		args = append(args, scope.SupervisorCode)
		where = append(where, fmt.Sprintf(
			"f.student_id IN (SELECT student_roll_no FROM student_supervisors WHERE faculty_code = $%d)", len(args)))
	case scope.DoctoralCode != "":
		args = append(args, scope.DoctoralCode)
		where = append(where, fmt.Sprintf(
			"f.student_id IN (SELECT student_roll_no FROM doctoral_committee_members WHERE faculty_code = $%d)", len(args)))
	default:
		return []models.FormInstanceRow{}, 0, nil
	}

	filterSQL, filterArgs, err := compileFilters(filters, len(args))
	if err != nil {
		return nil, 0, err
	}
	if filterSQL != "" {
		where = append(where, filterSQL)
		args = append(args, filterArgs...)
	}

	base := `FROM form_instances f
        JOIN students s ON s.roll_no = f.student_id
        JOIN users u ON u.id = s.user_id
        WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count form instances: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT f.id, f.form_type, f.student_id, f.status, f.completion, f.stage, f.steps,
        f.current_step, f.maximum_step, f.role_state, f.history, f.payload, f.version, f.created_at, f.updated_at,
        u.first_name, u.last_name %s
        ORDER BY f.created_at DESC LIMIT $%d OFFSET $%d`, base, len(args)-1, len(args))

	var rows []models.FormInstanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list form instances: %w", err)
	}
	return rows, total, nil
}
