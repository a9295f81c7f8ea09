package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

type creationInstanceStore interface {
	Create(ctx context.Context, inst *models.FormInstance, ledgerID string) error
	CountCompleted(ctx context.Context, formType, studentID string) (int, error)
}

type ledgerReader interface {
	Get(ctx context.Context, studentID, formType string) (*models.GeneralFormRecord, error)
}

type creationObserver interface {
	ObserveCreation(formType string)
}

// FormCreationService starts new form instances. Creation is gated by the
// ledger (availability and count) and by the single-open-instance rule.
type FormCreationService struct {
	instances creationInstanceStore
	ledgers   ledgerReader
	roster    rosterProvider
	metrics   creationObserver
	logger    *zap.Logger
}

// NewFormCreationService constructs the service.
func NewFormCreationService(instances creationInstanceStore, ledgers ledgerReader, roster rosterProvider, metrics creationObserver, logger *zap.Logger) *FormCreationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormCreationService{
		instances: instances,
		ledgers:   ledgers,
		roster:    roster,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create starts a new instance of a form type. Only the type's first step
// role may initiate; for most types that is the student, for the list of
// examiners it is the supervisor.
func (s *FormCreationService) Create(ctx context.Context, actor Actor, formType string, req dto.CreateFormRequest) (*models.FormInstance, error) {
	def, err := forms.Lookup(formType)
	if err != nil {
		return nil, err
	}

	initiator := def.Steps[0]
	if actor.Role != initiator {
		return nil, appErrors.ErrFormUnavailable
	}

	rollNo, err := s.resolveStudent(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	var ledgerID string
	if !def.LedgerExempt {
		record, err := s.ledgers.Get(ctx, rollNo, formType)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form ledger")
		}
		if record == nil || !record.AvailableFor(actor.Role) {
			return nil, appErrors.ErrFormUnavailable
		}
		if record.Count >= record.MaxCount {
			return nil, appErrors.ErrMaxCountReached
		}
		ledgerID = record.ID
	}

	priorCompleted, err := s.instances.CountCompleted(ctx, formType, rollNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completed forms")
	}

	// The step sequence is frozen now; a director step added later for
	// repeat requests never affects forms already in flight.
	stepList := def.StepsFor(priorCompleted)
	inst := forms.NewInstance(def, rollNo, actor.Name, stepList, req.Payload, time.Now().UTC())

	if err := s.instances.Create(ctx, inst, ledgerID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form")
	}

	if s.metrics != nil {
		s.metrics.ObserveCreation(formType)
	}

	s.logger.Info("form created",
		zap.String("form_type", formType),
		zap.String("form_id", inst.ID),
		zap.String("student_id", rollNo))

	return inst, nil
}

// resolveStudent determines which student the new instance belongs to. A
// student always creates for themselves; a supervisor-initiated type names
// the student and the supervision link is verified.
func (s *FormCreationService) resolveStudent(ctx context.Context, actor Actor, requested string) (string, error) {
	if actor.Role == models.RoleStudent {
		student, err := s.roster.GetStudentByUserID(ctx, actor.UserID)
		if err != nil {
			return "", rosterLookupError(err)
		}
		return student.RollNo, nil
	}

	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if _, err := s.roster.GetStudent(ctx, requested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return "", rosterLookupError(err)
	}
	if err := authorizeOnForm(ctx, s.roster, actor, requested); err != nil {
		return "", err
	}
	return requested, nil
}
