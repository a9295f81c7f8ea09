package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/repository"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

func boolPtr(b bool) *bool { return &b }

func seedExtensionForm(t *testing.T, store *fakeInstanceStore, id string) *models.FormInstance {
	t.Helper()
	def, err := forms.Lookup("irb-extension")
	require.NoError(t, err)
	inst := forms.NewInstance(def, "2021PHD001", "Asha Verma", def.StepsFor(0), models.Payload{}, time.Time{})
	inst.ID = id
	store.instances[id] = inst
	return inst
}

func newSubmissionFixture() (*FormSubmissionService, *fakeInstanceStore, *fakeRoster, *fakeNotifier) {
	store := newFakeInstanceStore()
	roster := newFakeRoster()
	notifier := &fakeNotifier{}
	svc := NewFormSubmissionService(store, roster, notifier, nil, nil, 10)
	return svc, store, roster, notifier
}

func TestSubmitStudentAdvancesForm(t *testing.T) {
	svc, store, roster, notifier := newSubmissionFixture()
	seedExtensionForm(t, store, "form-1")
	roster.addStudent("2021PHD001", "user-student", "dept-1")

	actor := Actor{UserID: "user-student", Role: models.RoleStudent, Name: "Asha Verma"}
	inst, err := svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{
		Payload: models.Payload{"reason": "fieldwork"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.RoleFaculty, inst.Stage)
	assert.Equal(t, "fieldwork", inst.Payload["reason"])
	require.Len(t, store.ledgerUpdates, 1)
	require.NotNil(t, store.ledgerUpdates[0])
	assert.Equal(t, models.RoleFaculty, store.ledgerUpdates[0].Stage)
	require.NotNil(t, store.ledgerUpdates[0].EnableRole)
	assert.Equal(t, models.RoleFaculty, *store.ledgerUpdates[0].EnableRole)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, forms.EventAdvanced, notifier.events[0].Kind)
}

func TestSubmitMissingFormNotAssigned(t *testing.T) {
	svc, _, roster, _ := newSubmissionFixture()
	roster.addStudent("2021PHD001", "user-student", "dept-1")

	actor := Actor{UserID: "user-student", Role: models.RoleStudent, Name: "Asha Verma"}
	_, err := svc.Submit(context.Background(), actor, "irb-extension", "ghost", dto.SubmitFormRequest{})
	require.ErrorIs(t, err, appErrors.ErrNotYetAssigned)
}

func TestSubmitWrongStageForbidden(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	seedExtensionForm(t, store, "form-1")
	roster.addFaculty("FAC1", "user-hod", "dept-1")

	actor := Actor{UserID: "user-hod", Role: models.RoleHod, Name: "Prof. Menon"}
	_, err := svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{Approval: boolPtr(true)})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSubmitUnrelatedSupervisorLocked(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	inst := seedExtensionForm(t, store, "form-1")
	inst.Stage = models.RoleFaculty
	inst.CurrentStep = 1
	roster.addStudent("2021PHD001", "user-student", "dept-1")
	roster.addFaculty("FAC9", "user-other", "dept-2")

	actor := Actor{UserID: "user-other", Role: models.RoleFaculty, Name: "Prof. Other"}
	_, err := svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{Approval: boolPtr(true)})
	require.ErrorIs(t, err, appErrors.ErrFormLocked)
}

func TestSubmitReviewerApprovalRequired(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	inst := seedExtensionForm(t, store, "form-1")
	inst.Stage = models.RoleFaculty
	inst.CurrentStep = 1
	roster.addFaculty("FAC1", "user-sup", "dept-1")
	roster.supervises["FAC1"] = []string{"2021PHD001"}

	actor := Actor{UserID: "user-sup", Role: models.RoleFaculty, Name: "Prof. Rao"}
	_, err := svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{})
	require.Error(t, err)
	assert.Equal(t, 422, appErrors.FromError(err).Status)
}

func TestSubmitRejectionRequiresComments(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	inst := seedExtensionForm(t, store, "form-1")
	inst.Stage = models.RoleFaculty
	inst.CurrentStep = 1
	roster.addFaculty("FAC1", "user-sup", "dept-1")
	roster.supervises["FAC1"] = []string{"2021PHD001"}

	actor := Actor{UserID: "user-sup", Role: models.RoleFaculty, Name: "Prof. Rao"}
	_, err := svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{Approval: boolPtr(false)})
	require.ErrorIs(t, err, appErrors.ErrCommentsRequired)
}

func TestSubmitLedgerExemptSkipsLedger(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	def, err := forms.Lookup("presentation")
	require.NoError(t, err)
	inst := forms.NewInstance(def, "2021PHD001", "Asha Verma", def.StepsFor(0), models.Payload{}, time.Time{})
	inst.ID = "form-p"
	store.instances["form-p"] = inst
	roster.addStudent("2021PHD001", "user-student", "dept-1")

	actor := Actor{UserID: "user-student", Role: models.RoleStudent, Name: "Asha Verma"}
	_, err = svc.Submit(context.Background(), actor, "presentation", "form-p", dto.SubmitFormRequest{})
	require.NoError(t, err)
	require.Len(t, store.ledgerUpdates, 1)
	assert.Nil(t, store.ledgerUpdates[0], "presentation never touches the ledger")
}

func TestSubmitChecksOwnershipBeforeLock(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	inst := seedExtensionForm(t, store, "form-1")
	inst.Stage = models.RoleFaculty
	inst.CurrentStep = 1
	inst.SetStateFor(models.RoleFaculty, models.RoleState{Lock: true})

	// A caller with no faculty record fails the ownership check, not the
	// lock, even though the role's turn is spent.
	ghost := Actor{UserID: "user-ghost", Role: models.RoleFaculty, Name: "Prof. Nobody"}
	_, err := svc.Submit(context.Background(), ghost, "irb-extension", "form-1", dto.SubmitFormRequest{Approval: boolPtr(true)})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	// The supervising faculty passes ownership and only then hits the lock.
	roster.addFaculty("FAC1", "user-sup", "dept-1")
	roster.supervises["FAC1"] = []string{"2021PHD001"}
	actor := Actor{UserID: "user-sup", Role: models.RoleFaculty, Name: "Prof. Rao"}
	_, err = svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{Approval: boolPtr(true)})
	require.ErrorIs(t, err, appErrors.ErrFormLocked)
}

func TestSubmitConflictResolvesToFreshGuard(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	inst := seedExtensionForm(t, store, "form-1")
	inst.Stage = models.RoleFaculty
	inst.CurrentStep = 1
	roster.addFaculty("FAC1", "user-sup", "dept-1")
	roster.supervises["FAC1"] = []string{"2021PHD001"}

	// The race loser re-reads a form whose stage already moved on.
	store.transitionErr = repository.ErrVersionConflict
	def, err := forms.Lookup("irb-extension")
	require.NoError(t, err)
	fresh := forms.NewInstance(def, "2021PHD001", "Asha Verma", def.StepsFor(0), models.Payload{}, time.Time{})
	fresh.ID = "form-1"
	fresh.Stage = models.RolePhdCoordinator
	fresh.CurrentStep = 2
	store.fresh = fresh

	actor := Actor{UserID: "user-sup", Role: models.RoleFaculty, Name: "Prof. Rao"}
	_, err = svc.Submit(context.Background(), actor, "irb-extension", "form-1", dto.SubmitFormRequest{Approval: boolPtr(true)})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestBulkSubmitContinuesOnFailure(t *testing.T) {
	svc, store, roster, _ := newSubmissionFixture()
	first := seedExtensionForm(t, store, "form-1")
	first.Stage = models.RoleFaculty
	first.CurrentStep = 1
	roster.addFaculty("FAC1", "user-sup", "dept-1")
	roster.supervises["FAC1"] = []string{"2021PHD001"}

	actor := Actor{UserID: "user-sup", Role: models.RoleFaculty, Name: "Prof. Rao"}
	report, err := svc.BulkSubmit(context.Background(), actor, "irb-extension", dto.BulkSubmitRequest{
		FormIDs: []string{"form-1", "missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].OK)
	assert.False(t, report.Results[1].OK)
	assert.Equal(t, appErrors.ErrNotYetAssigned.Message, report.Results[1].Message)
}

func TestBulkSubmitRejectsOversizedBatch(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture()
	ids := make([]string, 11)
	for i := range ids {
		ids[i] = "form"
	}
	actor := Actor{UserID: "u", Role: models.RoleDordc, Name: "Prof. Das"}
	_, err := svc.BulkSubmit(context.Background(), actor, "irb-extension", dto.BulkSubmitRequest{FormIDs: ids})
	require.Error(t, err)
}
