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
	"github.com/noah-isme/phd-portal-api/internal/repository"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

type submissionInstanceStore interface {
	GetByIDAndType(ctx context.Context, id, formType string) (*models.FormInstance, error)
	ApplyTransition(ctx context.Context, inst *models.FormInstance, ledger *models.LedgerUpdate) error
}

type transitionNotifier interface {
	NotifyTransition(event forms.Event)
}

type transitionObserver interface {
	ObserveTransition(formType string, kind forms.EventKind)
}

// FormSubmissionService runs the approval workflow: one role acting on one
// form instance, or a batch of approvals.
type FormSubmissionService struct {
	instances submissionInstanceStore
	roster    rosterProvider
	notifier  transitionNotifier
	metrics   transitionObserver
	logger    *zap.Logger
	bulkLimit int
}

// NewFormSubmissionService constructs the service. Notifier and metrics may
// be nil in tests.
func NewFormSubmissionService(instances submissionInstanceStore, roster rosterProvider, notifier transitionNotifier, metrics transitionObserver, logger *zap.Logger, bulkLimit int) *FormSubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bulkLimit <= 0 {
		bulkLimit = 100
	}
	return &FormSubmissionService{
		instances: instances,
		roster:    roster,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		bulkLimit: bulkLimit,
	}
}

// Submit applies one role's action to one instance. The guard order is
// fixed: payload validation, existence, workflow state, roster ownership,
// then the lock, so an unauthorized caller learns as little as possible.
func (s *FormSubmissionService) Submit(ctx context.Context, actor Actor, formType, formID string, req dto.SubmitFormRequest) (*models.FormInstance, error) {
	def, err := forms.Lookup(formType)
	if err != nil {
		return nil, err
	}

	action := forms.Action{
		Role:      actor.Role,
		ActorName: actor.Name,
		Approval:  req.Approval,
		Comments:  req.Comments,
		Now:       time.Now().UTC(),
	}
	if err := forms.ValidateAction(action); err != nil {
		return nil, err
	}

	inst, err := s.instances.GetByIDAndType(ctx, formID, formType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotYetAssigned
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	if err := forms.Guard(inst, actor.Role); err != nil {
		return nil, err
	}
	if err := authorizeOnForm(ctx, s.roster, actor, inst.StudentID); err != nil {
		return nil, err
	}
	if err := forms.GuardLock(inst, actor.Role); err != nil {
		return nil, err
	}

	// The student's submission carries the form data itself.
	if actor.Role == models.RoleStudent && len(req.Payload) > 0 {
		if inst.Payload == nil {
			inst.Payload = models.Payload{}
		}
		for key, value := range req.Payload {
			inst.Payload[key] = value
		}
	}

	event, err := forms.Apply(inst, def, action)
	if err != nil {
		return nil, err
	}

	var ledger *models.LedgerUpdate
	if !def.LedgerExempt {
		ledger = &models.LedgerUpdate{
			StudentID: inst.StudentID,
			FormType:  inst.FormType,
			Stage:     event.NextStage,
		}
		if event.NextStage != models.StageComplete {
			next := event.NextStage
			ledger.EnableRole = &next
		}
	}

	if err := s.instances.ApplyTransition(ctx, inst, ledger); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, s.resolveConflict(ctx, actor, formType, formID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist transition")
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(inst.FormType, event.Kind)
	}
	if s.notifier != nil {
		s.notifier.NotifyTransition(event)
	}

	s.logger.Info("form transition applied",
		zap.String("form_type", inst.FormType),
		zap.String("form_id", inst.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.String("kind", string(event.Kind)),
		zap.String("next_stage", string(event.NextStage)))

	return inst, nil
}

// resolveConflict re-reads the instance after a lost optimistic race and
// returns the domain error the fresh state implies. Usually the stage moved
// on or the role is now locked, both covered by the guard.
func (s *FormSubmissionService) resolveConflict(ctx context.Context, actor Actor, formType, formID string) error {
	fresh, err := s.instances.GetByIDAndType(ctx, formID, formType)
	if err != nil {
		return appErrors.Clone(appErrors.ErrConflict, "form was updated concurrently, please retry")
	}
	if err := forms.Guard(fresh, actor.Role); err != nil {
		return err
	}
	if err := forms.GuardLock(fresh, actor.Role); err != nil {
		return err
	}
	return appErrors.Clone(appErrors.ErrConflict, "form was updated concurrently, please retry")
}

// BulkSubmit approves a batch of instances as one role. Each item succeeds
// or fails on its own; rejections stay single-item because they need
// per-form comments.
func (s *FormSubmissionService) BulkSubmit(ctx context.Context, actor Actor, formType string, req dto.BulkSubmitRequest) (*dto.BulkSubmitReport, error) {
	if len(req.FormIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "form_ids must not be empty")
	}
	if len(req.FormIDs) > s.bulkLimit {
		return nil, appErrors.Clone(appErrors.ErrValidation, "too many forms in one batch")
	}

	approved := true
	report := &dto.BulkSubmitReport{Results: make([]dto.BulkItemResult, 0, len(req.FormIDs))}
	for _, formID := range req.FormIDs {
		_, err := s.Submit(ctx, actor, formType, formID, dto.SubmitFormRequest{Approval: &approved})
		result := dto.BulkItemResult{FormID: formID, OK: err == nil}
		if err != nil {
			result.Message = appErrors.FromError(err).Message
			report.Failed++
		} else {
			report.Succeeded++
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}
