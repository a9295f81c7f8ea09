package service

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/pkg/config"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

type listingInstanceStore interface {
	GetByIDAndType(ctx context.Context, id, formType string) (*models.FormInstance, error)
	List(ctx context.Context, formType string, scope models.ListScope, filters *dto.FilterSet, page, pageSize int) ([]models.FormInstanceRow, int, error)
}

var listingFields = []string{"name", "roll_no", "stage", "status", "completion", "action_req", "created_at"}
var listingFieldTitles = []string{"Name", "Roll No", "Stage", "Status", "Completion", "Action Required", "Created"}

// FormListingService serves role-scoped listings and single-form views.
// Every role sees the same shape; only the base predicate differs.
type FormListingService struct {
	instances listingInstanceStore
	roster    rosterProvider
	logger    *zap.Logger
	cfg       config.FormsConfig
}

// NewFormListingService constructs the service.
func NewFormListingService(instances listingInstanceStore, roster rosterProvider, logger *zap.Logger, cfg config.FormsConfig) *FormListingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	return &FormListingService{instances: instances, roster: roster, logger: logger, cfg: cfg}
}

// List returns the page of a form type the actor's role may see.
func (s *FormListingService) List(ctx context.Context, actor Actor, formType string, query dto.ListFormsQuery) (*dto.ListFormsResponse, error) {
	if _, err := forms.Lookup(formType); err != nil {
		return nil, err
	}

	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	rows, total, err := s.instances.List(ctx, formType, scope, query.Filters, page, pageSize)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list forms")
	}

	items := make([]dto.FormListItem, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		items = append(items, dto.FormListItem{
			ID:         row.ID,
			Name:       row.StudentName(),
			RollNo:     row.StudentID,
			Stage:      row.Stage,
			Status:     row.Status,
			Completion: row.Completion,
			ActionReq:  row.Stage == actor.Role && !row.StateFor(actor.Role).Lock,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	return &dto.ListFormsResponse{
		Data:        items,
		Page:        page,
		Total:       total,
		TotalPages:  totalPages,
		Fields:      listingFields,
		FieldTitles: listingFieldTitles,
		Role:        actor.Role,
	}, nil
}

// Get returns one instance if the actor may view it. A reviewer whose step
// the form has not yet reached sees it as not assigned, not as existing.
func (s *FormListingService) Get(ctx context.Context, actor Actor, formType, formID string) (*models.FormInstance, error) {
	if _, err := forms.Lookup(formType); err != nil {
		return nil, err
	}

	inst, err := s.instances.GetByIDAndType(ctx, formID, formType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	if err := authorizeOnForm(ctx, s.roster, actor, inst.StudentID); err != nil {
		return nil, err
	}
	if idx := inst.Steps.Index(actor.Role); idx > inst.MaximumStep {
		return nil, appErrors.ErrNotYetAssigned
	}
	return inst, nil
}

// scopeFor translates the actor's role into the listing base predicate.
func (s *FormListingService) scopeFor(ctx context.Context, actor Actor) (models.ListScope, error) {
	if actor.Role.Capabilities().InstituteWide {
		return models.ListScope{All: true}, nil
	}

	switch actor.Role {
	case models.RoleStudent:
		student, err := s.roster.GetStudentByUserID(ctx, actor.UserID)
		if err != nil {
			return models.ListScope{}, rosterLookupError(err)
		}
		return models.ListScope{StudentRollNo: student.RollNo}, nil

	case models.RoleFaculty:
		faculty, err := s.roster.GetFacultyByUserID(ctx, actor.UserID)
		if err != nil {
			return models.ListScope{}, rosterLookupError(err)
		}
		return models.ListScope{SupervisorCode: faculty.FacultyCode}, nil

	case models.RoleDoctoral, models.RoleExternal:
		faculty, err := s.roster.GetFacultyByUserID(ctx, actor.UserID)
		if err != nil {
			return models.ListScope{}, rosterLookupError(err)
		}
		return models.ListScope{DoctoralCode: faculty.FacultyCode}, nil

	case models.RolePhdCoordinator:
		return s.departmentScope(ctx, actor, s.roster.CoordinatedDepartments)

	case models.RoleHod:
		return s.departmentScope(ctx, actor, s.roster.HeadedDepartments)

	case models.RoleAdordc:
		return s.departmentScope(ctx, actor, s.roster.AdordcDepartments)

	default:
		return models.ListScope{}, appErrors.ErrForbidden
	}
}

func (s *FormListingService) departmentScope(ctx context.Context, actor Actor, lookup func(context.Context, string) ([]string, error)) (models.ListScope, error) {
	faculty, err := s.roster.GetFacultyByUserID(ctx, actor.UserID)
	if err != nil {
		return models.ListScope{}, rosterLookupError(err)
	}
	departments, err := lookup(ctx, faculty.FacultyCode)
	if err != nil {
		return models.ListScope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve departments")
	}
	return models.ListScope{DepartmentIDs: departments}, nil
}
