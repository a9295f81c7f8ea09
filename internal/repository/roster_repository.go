package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

// RosterRepository reads the academic roster: students, faculties,
// departments and the relationship tables that scope listings and route
// notifications.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// GetStudent fetches a student by roll number.
func (r *RosterRepository) GetStudent(ctx context.Context, rollNo string) (*models.Student, error) {
	const query = `SELECT id, roll_no, user_id, department_id, phd_title, current_status,
        date_of_joining, date_of_irb, date_of_synopsis, created_at, updated_at
        FROM students WHERE roll_no = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, rollNo); err != nil {
		return nil, err
	}
	return &student, nil
}

// GetStudentByUserID fetches the student record behind a portal account.
func (r *RosterRepository) GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error) {
	const query = `SELECT id, roll_no, user_id, department_id, phd_title, current_status,
        date_of_joining, date_of_irb, date_of_synopsis, created_at, updated_at
        FROM students WHERE user_id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// GetStudentDetail fetches a student joined with user and department rows.
func (r *RosterRepository) GetStudentDetail(ctx context.Context, rollNo string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.roll_no, s.user_id, s.department_id, s.phd_title, s.current_status,
        s.date_of_joining, s.date_of_irb, s.date_of_synopsis, s.created_at, s.updated_at,
        u.first_name, u.last_name, u.email, d.department_name
        FROM students s
        JOIN users u ON u.id = s.user_id
        JOIN departments d ON d.id = s.department_id
        WHERE s.roll_no = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, rollNo); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetFacultyByUserID fetches the faculty record behind a portal account.
func (r *RosterRepository) GetFacultyByUserID(ctx context.Context, userID string) (*models.Faculty, error) {
	const query = `SELECT id, faculty_code, user_id, department_id, designation, created_at, updated_at
        FROM faculties WHERE user_id = $1`
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, query, userID); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// IsSupervisorOf reports whether the faculty supervises the student.
func (r *RosterRepository) IsSupervisorOf(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM student_supervisors WHERE faculty_code = $1 AND student_roll_no = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, facultyCode, rollNo); err != nil {
		return false, fmt.Errorf("check supervisor link: %w", err)
	}
	return ok, nil
}

// IsOnDoctoralCommittee reports whether the faculty sits on the student's
// doctoral committee.
func (r *RosterRepository) IsOnDoctoralCommittee(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM doctoral_committee_members WHERE faculty_code = $1 AND student_roll_no = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, facultyCode, rollNo); err != nil {
		return false, fmt.Errorf("check committee link: %w", err)
	}
	return ok, nil
}

// IsHodOf reports whether the faculty heads the student's department.
func (r *RosterRepository) IsHodOf(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM students s
        JOIN departments d ON d.id = s.department_id
        WHERE s.roll_no = $2 AND d.hod_faculty_code = $1)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, facultyCode, rollNo); err != nil {
		return false, fmt.Errorf("check hod link: %w", err)
	}
	return ok, nil
}

// CoordinatesDepartment reports whether the faculty coordinates the
// student's department.
func (r *RosterRepository) CoordinatesDepartment(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM students s
        JOIN department_coordinators dc ON dc.department_id = s.department_id
        WHERE s.roll_no = $2 AND dc.faculty_code = $1)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, facultyCode, rollNo); err != nil {
		return false, fmt.Errorf("check coordinator link: %w", err)
	}
	return ok, nil
}

// AdordcDepartments returns the department ids an ADORDC oversees.
func (r *RosterRepository) AdordcDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	const query = `SELECT department_id FROM adordc_departments WHERE faculty_code = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, facultyCode); err != nil {
		return nil, fmt.Errorf("list adordc departments: %w", err)
	}
	return ids, nil
}

// CoordinatedDepartments returns the departments a coordinator manages.
func (r *RosterRepository) CoordinatedDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	const query = `SELECT department_id FROM department_coordinators WHERE faculty_code = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, facultyCode); err != nil {
		return nil, fmt.Errorf("list coordinated departments: %w", err)
	}
	return ids, nil
}

// HeadedDepartments returns the departments a faculty heads.
func (r *RosterRepository) HeadedDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	const query = `SELECT id FROM departments WHERE hod_faculty_code = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, facultyCode); err != nil {
		return nil, fmt.Errorf("list headed departments: %w", err)
	}
	return ids, nil
}

// RecipientUserIDs resolves the user accounts holding a workflow role for a
// given student. Relationship-scoped roles resolve through the roster;
// institute-wide roles resolve through the users table.
func (r *RosterRepository) RecipientUserIDs(ctx context.Context, role models.Role, rollNo string) ([]string, error) {
	var (
		query string
		args  []interface{}
	)

	switch role {
	case models.RoleStudent:
		query = `SELECT user_id FROM students WHERE roll_no = $1`
		args = []interface{}{rollNo}
	case models.RoleFaculty:
		query = `SELECT f.user_id FROM faculties f
            JOIN student_supervisors ss ON ss.faculty_code = f.faculty_code
            WHERE ss.student_roll_no = $1`
		args = []interface{}{rollNo}
	case models.RoleDoctoral, models.RoleExternal:
		query = `SELECT f.user_id FROM faculties f
            JOIN doctoral_committee_members dcm ON dcm.faculty_code = f.faculty_code
            WHERE dcm.student_roll_no = $1`
		args = []interface{}{rollNo}
	case models.RolePhdCoordinator:
		query = `SELECT f.user_id FROM faculties f
            JOIN department_coordinators dc ON dc.faculty_code = f.faculty_code
            JOIN students s ON s.department_id = dc.department_id
            WHERE s.roll_no = $1`
		args = []interface{}{rollNo}
	case models.RoleHod:
		query = `SELECT f.user_id FROM faculties f
            JOIN departments d ON d.hod_faculty_code = f.faculty_code
            JOIN students s ON s.department_id = d.id
            WHERE s.roll_no = $1`
		args = []interface{}{rollNo}
	case models.RoleAdordc:
		query = `SELECT f.user_id FROM faculties f
            JOIN adordc_departments ad ON ad.faculty_code = f.faculty_code
            JOIN students s ON s.department_id = ad.department_id
            WHERE s.roll_no = $1`
		args = []interface{}{rollNo}
	case models.RoleDordc, models.RoleDra, models.RoleDirector, models.RoleAdmin:
		query = `SELECT id FROM users WHERE "current_role" = $1 AND active = TRUE`
		args = []interface{}{role}
	default:
		return nil, fmt.Errorf("no recipient resolution for role %q", role)
	}

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve %s recipients: %w", role, err)
	}
	return ids, nil
}
