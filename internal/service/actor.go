package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

// Actor is the authenticated principal a request acts as. Role is the active
// role at token issue time; the workflow engine treats it as the acting stage.
type Actor struct {
	UserID string
	Role   models.Role
	Name   string
}

// rosterProvider is the roster surface the form services need. Both the raw
// repository and its Redis decorator satisfy it.
type rosterProvider interface {
	GetStudent(ctx context.Context, rollNo string) (*models.Student, error)
	GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error)
	GetStudentDetail(ctx context.Context, rollNo string) (*models.StudentDetail, error)
	GetFacultyByUserID(ctx context.Context, userID string) (*models.Faculty, error)
	IsSupervisorOf(ctx context.Context, facultyCode, rollNo string) (bool, error)
	IsOnDoctoralCommittee(ctx context.Context, facultyCode, rollNo string) (bool, error)
	IsHodOf(ctx context.Context, facultyCode, rollNo string) (bool, error)
	CoordinatesDepartment(ctx context.Context, facultyCode, rollNo string) (bool, error)
	AdordcDepartments(ctx context.Context, facultyCode string) ([]string, error)
	CoordinatedDepartments(ctx context.Context, facultyCode string) ([]string, error)
	HeadedDepartments(ctx context.Context, facultyCode string) ([]string, error)
	RecipientUserIDs(ctx context.Context, role models.Role, rollNo string) ([]string, error)
}

// authorizeOnForm verifies the actor's relationship to the form's student.
// Institute-wide roles pass unconditionally; relationship-scoped roles must
// hold the matching roster link. A failed check reads as the lock error so a
// probing user cannot distinguish "exists but not yours" from "locked".
func authorizeOnForm(ctx context.Context, roster rosterProvider, actor Actor, studentRollNo string) error {
	if actor.Role.Capabilities().InstituteWide {
		return nil
	}

	switch actor.Role {
	case models.RoleStudent:
		student, err := roster.GetStudentByUserID(ctx, actor.UserID)
		if err != nil {
			return rosterLookupError(err)
		}
		if student.RollNo != studentRollNo {
			return appErrors.ErrFormLocked
		}
		return nil

	case models.RoleFaculty, models.RoleDoctoral, models.RoleExternal, models.RoleHod,
		models.RolePhdCoordinator, models.RoleAdordc:
		faculty, err := roster.GetFacultyByUserID(ctx, actor.UserID)
		if err != nil {
			return rosterLookupError(err)
		}
		linked, err := hasRosterLink(ctx, roster, actor.Role, faculty, studentRollNo)
		if err != nil {
			return err
		}
		if !linked {
			return appErrors.ErrFormLocked
		}
		return nil

	default:
		return appErrors.ErrForbidden
	}
}

func hasRosterLink(ctx context.Context, roster rosterProvider, role models.Role, faculty *models.Faculty, rollNo string) (bool, error) {
	switch role {
	case models.RoleFaculty:
		return roster.IsSupervisorOf(ctx, faculty.FacultyCode, rollNo)
	case models.RoleDoctoral, models.RoleExternal:
		return roster.IsOnDoctoralCommittee(ctx, faculty.FacultyCode, rollNo)
	case models.RoleHod:
		return roster.IsHodOf(ctx, faculty.FacultyCode, rollNo)
	case models.RolePhdCoordinator:
		return roster.CoordinatesDepartment(ctx, faculty.FacultyCode, rollNo)
	case models.RoleAdordc:
		departments, err := roster.AdordcDepartments(ctx, faculty.FacultyCode)
		if err != nil {
			return false, err
		}
		student, err := roster.GetStudent(ctx, rollNo)
		if err != nil {
			return false, rosterLookupError(err)
		}
		for _, id := range departments {
			if id == student.DepartmentID {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

func rosterLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrForbidden
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "roster lookup failed")
}
