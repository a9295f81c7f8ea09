package forms

import (
	"fmt"
	"time"

	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

// Action is one role's decision on a form instance.
type Action struct {
	Role      models.Role
	ActorName string
	Approval  *bool
	Comments  string
	Now       time.Time
}

// Approved reports the action outcome. The initiating student role has no
// approval field; its submission always advances.
func (a Action) Approved() bool {
	if a.Role == models.RoleStudent {
		return true
	}
	return a.Approval != nil && *a.Approval
}

// EventKind classifies a transition outcome.
type EventKind string

const (
	EventAdvanced  EventKind = "advanced"
	EventCompleted EventKind = "completed"
	EventRejected  EventKind = "rejected"
)

// Event is the side-effect description a transition produces. The engine
// mutates only the instance; ledger sync and notification fan-out consume
// the event afterwards.
type Event struct {
	Kind      EventKind
	FormType  string
	FormID    string
	StudentID string
	Actor     string
	ActorRole models.Role
	// NextStage is the stage now holding the form: the following step on
	// approval, the fallback stage on rejection, complete on completion.
	NextStage models.Role
	Comments  string
}

// Guard validates that the acting role may touch the instance at all: a
// completed form refuses everything, and only the stage holder may act.
// Ownership is the caller's concern since it needs the roster; the lock
// runs after ownership, via GuardLock.
func Guard(inst *models.FormInstance, role models.Role) error {
	if inst.Completion == models.CompletionComplete {
		return appErrors.ErrFormCompleted
	}
	if inst.Stage != role {
		return appErrors.ErrForbidden
	}
	return nil
}

// GuardLock refuses a role whose turn on the instance is already spent.
func GuardLock(inst *models.FormInstance, role models.Role) error {
	if inst.StateFor(role).Lock {
		return appErrors.ErrFormLocked
	}
	return nil
}

// ValidateAction checks the request payload before any state is read.
// Non-student roles must send an explicit approval; a rejection without
// comments is refused.
func ValidateAction(act Action) error {
	if act.Role == models.RoleStudent {
		return nil
	}
	if act.Approval == nil {
		return appErrors.Clone(appErrors.ErrValidation, "The approval field is required and must be a boolean")
	}
	if !*act.Approval && act.Comments == "" {
		return appErrors.ErrCommentsRequired
	}
	return nil
}

// Apply performs exactly one transition on the instance and returns the
// event describing it. The caller must have run ValidateAction and Guard
// (plus the ownership check) first. Apply never touches storage.
func Apply(inst *models.FormInstance, def Definition, act Action) (Event, error) {
	if act.Now.IsZero() {
		act.Now = time.Now().UTC()
	}
	if act.Approved() {
		return applyApproval(inst, act)
	}
	return applyRejection(inst, def, act)
}

func applyApproval(inst *models.FormInstance, act Action) (Event, error) {
	idx := inst.Steps.Index(act.Role)
	if idx < 0 {
		return Event{}, fmt.Errorf("stage %s not in steps of form %s", act.Role, inst.ID)
	}
	if idx >= len(inst.Steps)-1 {
		return Event{}, fmt.Errorf("stage %s has no next step on form %s", act.Role, inst.ID)
	}

	state := inst.StateFor(act.Role)
	state.Lock = true
	if act.Role != models.RoleStudent {
		approved := true
		state.Approval = &approved
		if act.Comments != "" {
			comments := act.Comments
			state.Comments = &comments
		}
	}
	inst.SetStateFor(act.Role, state)

	next := inst.Steps[idx+1]
	inst.CurrentStep = idx + 1
	if inst.CurrentStep > inst.MaximumStep {
		inst.MaximumStep = inst.CurrentStep
	}

	event := Event{
		FormType:  inst.FormType,
		FormID:    inst.ID,
		StudentID: inst.StudentID,
		Actor:     act.ActorName,
		ActorRole: act.Role,
		NextStage: next,
	}

	if next == models.StageComplete {
		inst.Completion = models.CompletionComplete
		inst.Stage = models.StageComplete
		inst.Status = models.FormStatusApproved
		event.Kind = EventCompleted
	} else {
		inst.Stage = next
		inst.Status = models.FormStatusPending
		// The next role gets a clean turn even after a rollback loop.
		inst.SetStateFor(next, models.RoleState{})
		event.Kind = EventAdvanced
	}

	inst.AppendHistory(submissionMessage(act.Role, act.ActorName), act.ActorName, nil, act.Now)
	return event, nil
}

func applyRejection(inst *models.FormInstance, def Definition, act Action) (Event, error) {
	if act.Role == models.RoleStudent {
		return Event{}, appErrors.ErrForbidden
	}

	state := inst.StateFor(act.Role)
	state.Lock = true
	comments := act.Comments
	state.Comments = &comments
	inst.SetStateFor(act.Role, state)

	prev := def.RejectTarget(act.Role, inst.Steps)
	idx := inst.Steps.Index(prev)
	if idx < 0 {
		return Event{}, fmt.Errorf("fallback stage %s not in steps of form %s", prev, inst.ID)
	}

	inst.Stage = prev
	inst.CurrentStep = idx
	if idx > inst.MaximumStep {
		inst.MaximumStep = idx
	}
	inst.Status = models.FormStatusRejected

	// Unlock the fallback role so it can act again; its earlier approval
	// and comments stay on record.
	prevState := inst.StateFor(prev)
	prevState.Lock = false
	inst.SetStateFor(prev, prevState)

	inst.AppendHistory(rejectionMessage(act.Role, act.ActorName), act.ActorName, &comments, act.Now)

	return Event{
		Kind:      EventRejected,
		FormType:  inst.FormType,
		FormID:    inst.ID,
		StudentID: inst.StudentID,
		Actor:     act.ActorName,
		ActorRole: act.Role,
		NextStage: prev,
		Comments:  act.Comments,
	}, nil
}

func submissionMessage(role models.Role, name string) string {
	return fmt.Sprintf("%s (%s) submitted the form", name, role.Title())
}

func rejectionMessage(role models.Role, name string) string {
	return fmt.Sprintf("%s (%s) Rejected the form", name, role.Title())
}

// InitialHistoryMessage is the first entry every instance starts with.
const InitialHistoryMessage = "Form has been initiated"

// NewInstance builds the envelope for a freshly created form occurrence.
func NewInstance(def Definition, studentID, actorName string, stepList models.StepList, payload models.Payload, now time.Time) *models.FormInstance {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	inst := &models.FormInstance{
		FormType:    def.Slug,
		StudentID:   studentID,
		Status:      models.FormStatusDraft,
		Completion:  models.CompletionIncomplete,
		Stage:       stepList[0],
		Steps:       stepList,
		CurrentStep: 0,
		MaximumStep: 0,
		RoleState:   models.RoleStateMap{},
		Payload:     payload,
		Version:     1,
	}
	inst.SetStateFor(stepList[0], models.RoleState{})
	inst.AppendHistory(InitialHistoryMessage, actorName, nil, now)
	return inst
}
