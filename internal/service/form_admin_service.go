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

type adminInstanceStore interface {
	GetByIDAndType(ctx context.Context, id, formType string) (*models.FormInstance, error)
	ListByStudent(ctx context.Context, formType, studentID string) ([]models.FormInstance, error)
	ApplyTransition(ctx context.Context, inst *models.FormInstance, ledger *models.LedgerUpdate) error
	Create(ctx context.Context, inst *models.FormInstance, ledgerID string) error
	CountCompleted(ctx context.Context, formType, studentID string) (int, error)
	Delete(ctx context.Context, id, formType string) error
}

type adminLedgerStore interface {
	Get(ctx context.Context, studentID, formType string) (*models.GeneralFormRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.GeneralFormRecord, error)
	Upsert(ctx context.Context, record *models.GeneralFormRecord) error
	SetAvailability(ctx context.Context, studentID, formType string, role models.Role, available bool) error
}

// FormAdminService exposes the override surface: enabling forms, flipping
// availability, rewriting workflow fields and deleting instances. Every
// operation here bypasses the normal guards, so handlers gate it to admin.
type FormAdminService struct {
	instances adminInstanceStore
	ledgers   adminLedgerStore
	roster    rosterProvider
	logger    *zap.Logger
}

// NewFormAdminService constructs the service.
func NewFormAdminService(instances adminInstanceStore, ledgers adminLedgerStore, roster rosterProvider, logger *zap.Logger) *FormAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormAdminService{instances: instances, ledgers: ledgers, roster: roster, logger: logger}
}

// Overview aggregates every form type for one student: the ledger row if
// the type was enabled, plus all instances.
func (s *FormAdminService) Overview(ctx context.Context, rollNo string) (*dto.StudentFormsOverview, error) {
	detail, err := s.roster.GetStudentDetail(ctx, rollNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	ledgers, err := s.ledgers.ListByStudent(ctx, rollNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form ledger")
	}
	ledgerByType := make(map[string]*models.GeneralFormRecord, len(ledgers))
	for i := range ledgers {
		ledgerByType[ledgers[i].FormType] = &ledgers[i]
	}

	overview := &dto.StudentFormsOverview{
		Student: dto.StudentSummary{
			RollNo:     detail.RollNo,
			Name:       detail.FirstName + " " + detail.LastName,
			Department: detail.DepartmentName,
		},
	}

	for _, slug := range forms.Slugs() {
		def, _ := forms.Lookup(slug)
		instances, err := s.instances.ListByStudent(ctx, slug, rollNo)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instances")
		}
		if instances == nil {
			instances = []models.FormInstance{}
		}
		ledger := ledgerByType[slug]
		overview.Forms = append(overview.Forms, dto.FormTypeOverview{
			FormType:  slug,
			FormName:  def.Name,
			Enabled:   ledger != nil,
			Ledger:    ledger,
			Instances: instances,
		})
	}
	return overview, nil
}

// EnableOrCreate enables a form type for a student, creating the ledger row
// with the initiator's availability on. With enable_form false it also
// starts an instance on the student's behalf.
func (s *FormAdminService) EnableOrCreate(ctx context.Context, actor Actor, req dto.AdminCreateFormRequest) (*models.FormInstance, error) {
	def, err := forms.Lookup(req.FormType)
	if err != nil {
		return nil, err
	}

	student, err := s.roster.GetStudent(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	var ledgerID string
	if !def.LedgerExempt {
		record, err := s.ledgers.Get(ctx, student.RollNo, req.FormType)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form ledger")
		}
		if record == nil {
			record = &models.GeneralFormRecord{
				StudentID:    student.RollNo,
				FormType:     def.Slug,
				FormName:     def.Name,
				DepartmentID: student.DepartmentID,
				Stage:        def.Steps[0],
				MaxCount:     def.MaxCount,
				Availability: models.AvailabilityMap{},
			}
		}
		record.Availability[def.Steps[0].LedgerKey()] = true
		if err := s.ledgers.Upsert(ctx, record); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enable form")
		}
		ledgerID = record.ID
	}

	if req.EnableOnly {
		return nil, nil
	}

	priorCompleted, err := s.instances.CountCompleted(ctx, req.FormType, student.RollNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completed forms")
	}
	inst := forms.NewInstance(def, student.RollNo, actor.Name, def.StepsFor(priorCompleted), models.Payload{}, time.Now().UTC())
	if err := s.instances.Create(ctx, inst, ledgerID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form")
	}

	s.logger.Info("form enabled by admin",
		zap.String("form_type", req.FormType),
		zap.String("student_id", student.RollNo),
		zap.Bool("enable_only", req.EnableOnly))
	return inst, nil
}

// ToggleAvailability flips one role's availability flag on the ledger.
func (s *FormAdminService) ToggleAvailability(ctx context.Context, req dto.ToggleAvailabilityRequest) error {
	if _, err := forms.Lookup(req.FormType); err != nil {
		return err
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if err := s.ledgers.SetAvailability(ctx, req.StudentID, req.FormType, role, req.Available); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "form is not enabled for this student")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle availability")
	}
	return nil
}

// Control rewrites workflow fields on an instance. Steps stay frozen;
// stage and step overrides must stay within them.
func (s *FormAdminService) Control(ctx context.Context, req dto.FormControlRequest) (*models.FormInstance, error) {
	def, err := forms.Lookup(req.FormType)
	if err != nil {
		return nil, err
	}

	inst, err := s.instances.GetByIDAndType(ctx, req.FormID, req.FormType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if inst.StudentID != req.StudentID {
		return nil, appErrors.ErrNotFound
	}

	if req.Stage != nil {
		stage := models.Role(*req.Stage)
		if inst.Steps.Index(stage) < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "stage is not part of this form's steps")
		}
		inst.Stage = stage
		inst.CurrentStep = inst.Steps.Index(stage)
		if stage == models.StageComplete {
			inst.Completion = models.CompletionComplete
			inst.Status = models.FormStatusApproved
		} else {
			inst.Completion = models.CompletionIncomplete
		}
	}
	if req.CurrentStep != nil {
		if *req.CurrentStep < 0 || *req.CurrentStep >= len(inst.Steps) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "current_step out of range")
		}
		inst.CurrentStep = *req.CurrentStep
		inst.Stage = inst.Steps[inst.CurrentStep]
	}
	if req.MaximumStep != nil {
		if *req.MaximumStep < 0 || *req.MaximumStep >= len(inst.Steps) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "maximum_step out of range")
		}
		inst.MaximumStep = *req.MaximumStep
	}
	for raw, lock := range req.Locks {
		role, err := models.ParseRole(raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role in locks")
		}
		state := inst.StateFor(role)
		state.Lock = lock
		inst.SetStateFor(role, state)
	}

	var ledger *models.LedgerUpdate
	if !def.LedgerExempt {
		ledger = &models.LedgerUpdate{StudentID: inst.StudentID, FormType: inst.FormType, Stage: inst.Stage}
	}
	if err := s.instances.ApplyTransition(ctx, inst, ledger); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist override")
	}
	return inst, nil
}

// SetLevel resets an instance back to a role's step and unlocks it, the
// targeted fix for a form stuck mid-flow.
func (s *FormAdminService) SetLevel(ctx context.Context, req dto.FormLevelRequest) (*models.FormInstance, error) {
	def, err := forms.Lookup(req.FormType)
	if err != nil {
		return nil, err
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	inst, err := s.instances.GetByIDAndType(ctx, req.FormID, req.FormType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if inst.StudentID != req.RollNo {
		return nil, appErrors.ErrNotFound
	}

	idx := inst.Steps.Index(role)
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role is not part of this form's steps")
	}

	inst.Stage = role
	inst.CurrentStep = idx
	inst.Completion = models.CompletionIncomplete
	inst.Status = models.FormStatusPending
	state := inst.StateFor(role)
	state.Lock = false
	inst.SetStateFor(role, state)

	var ledger *models.LedgerUpdate
	if !def.LedgerExempt {
		ledger = &models.LedgerUpdate{StudentID: inst.StudentID, FormType: inst.FormType, Stage: role}
	}
	if err := s.instances.ApplyTransition(ctx, inst, ledger); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist level reset")
	}
	return inst, nil
}

// Delete removes an instance; the ledger count drops so the student can
// file again.
func (s *FormAdminService) Delete(ctx context.Context, formType, formID string) error {
	if _, err := forms.Lookup(formType); err != nil {
		return err
	}
	if err := s.instances.Delete(ctx, formID, formType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete form")
	}
	return nil
}
