package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

const generalFormColumns = `id, student_id, form_type, form_name, department_id, stage, count, max_count,
       availability, created_at, updated_at`

// GeneralFormRepository persists the per (student, form type) ledger rows
// that gate creation and surface availability.
type GeneralFormRepository struct {
	db *sqlx.DB
}

// NewGeneralFormRepository constructs the repository.
func NewGeneralFormRepository(db *sqlx.DB) *GeneralFormRepository {
	return &GeneralFormRepository{db: db}
}

// Get returns the ledger row for one student and form type, or nil when the
// form was never enabled for them.
func (r *GeneralFormRepository) Get(ctx context.Context, studentID, formType string) (*models.GeneralFormRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM forms WHERE student_id = $1 AND form_type = $2`, generalFormColumns)
	var record models.GeneralFormRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, formType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get form ledger: %w", err)
	}
	return &record, nil
}

// ListByStudent returns every ledger row a student has.
func (r *GeneralFormRepository) ListByStudent(ctx context.Context, studentID string) ([]models.GeneralFormRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM forms WHERE student_id = $1 ORDER BY form_type`, generalFormColumns)
	var out []models.GeneralFormRecord
	if err := r.db.SelectContext(ctx, &out, query, studentID); err != nil {
		return nil, fmt.Errorf("list form ledger: %w", err)
	}
	return out, nil
}

// Upsert creates or refreshes a ledger row. Used by the admin enable flow;
// an existing row keeps its count.
func (r *GeneralFormRepository) Upsert(ctx context.Context, record *models.GeneralFormRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO forms
        (id, student_id, form_type, form_name, department_id, stage, count, max_count, availability, created_at, updated_at)
        VALUES (:id, :student_id, :form_type, :form_name, :department_id, :stage, :count, :max_count, :availability, :created_at, :updated_at)
        ON CONFLICT (student_id, form_type) DO UPDATE SET
        form_name = EXCLUDED.form_name, stage = EXCLUDED.stage, max_count = EXCLUDED.max_count,
        availability = EXCLUDED.availability, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert form ledger: %w", err)
	}
	return nil
}

// SetAvailability flips one role's flag on the availability map.
func (r *GeneralFormRepository) SetAvailability(ctx context.Context, studentID, formType string, role models.Role, available bool) error {
	const query = `UPDATE forms
        SET availability = jsonb_set(COALESCE(availability, '{}'::jsonb), $3, to_jsonb($4::boolean)),
            updated_at = $5
        WHERE student_id = $1 AND form_type = $2`
	path := fmt.Sprintf("{%s}", role.LedgerKey())
	result, err := r.db.ExecContext(ctx, query, studentID, formType, path, available, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set form availability: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check availability rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a ledger row.
func (r *GeneralFormRepository) Delete(ctx context.Context, studentID, formType string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM forms WHERE student_id = $1 AND form_type = $2`, studentID, formType); err != nil {
		return fmt.Errorf("delete form ledger: %w", err)
	}
	return nil
}
