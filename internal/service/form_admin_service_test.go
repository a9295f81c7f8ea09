package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

func newAdminFixture() (*FormAdminService, *fakeInstanceStore, *fakeLedgerStore, *fakeRoster) {
	store := newFakeInstanceStore()
	ledgers := newFakeLedgerStore()
	roster := newFakeRoster()
	svc := NewFormAdminService(store, ledgers, roster, nil)
	return svc, store, ledgers, roster
}

func TestOverviewCoversEveryFormType(t *testing.T) {
	svc, store, ledgers, roster := newAdminFixture()
	roster.addStudent("2021PHD001", "user-student", "dept-1")
	seedExtensionForm(t, store, "form-1")
	enableLedger(ledgers, "2021PHD001", "irb-extension", 1, 10)

	overview, err := svc.Overview(context.Background(), "2021PHD001")
	require.NoError(t, err)

	assert.Equal(t, "2021PHD001", overview.Student.RollNo)
	assert.Len(t, overview.Forms, 12)

	var extension *dto.FormTypeOverview
	for i := range overview.Forms {
		if overview.Forms[i].FormType == "irb-extension" {
			extension = &overview.Forms[i]
		} else {
			assert.False(t, overview.Forms[i].Enabled, "only the enabled type has a ledger row")
		}
	}
	require.NotNil(t, extension)
	assert.True(t, extension.Enabled)
	assert.Len(t, extension.Instances, 1)
}

func TestOverviewUnknownStudent(t *testing.T) {
	svc, _, _, _ := newAdminFixture()
	_, err := svc.Overview(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnableOnlyCreatesLedgerWithoutInstance(t *testing.T) {
	svc, store, ledgers, roster := newAdminFixture()
	roster.addStudent("2021PHD001", "user-student", "dept-1")

	actor := Actor{UserID: "admin-1", Role: models.RoleAdmin, Name: "Admin"}
	inst, err := svc.EnableOrCreate(context.Background(), actor, dto.AdminCreateFormRequest{
		StudentID:  "2021PHD001",
		FormType:   "irb-extension",
		EnableOnly: true,
	})
	require.NoError(t, err)
	assert.Nil(t, inst)
	assert.Empty(t, store.created)

	record, err := ledgers.Get(context.Background(), "2021PHD001", "irb-extension")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.AvailableFor(models.RoleStudent))
	assert.Equal(t, 10, record.MaxCount)
}

func TestEnableAndCreateStartsInstance(t *testing.T) {
	svc, store, _, roster := newAdminFixture()
	roster.addStudent("2021PHD001", "user-student", "dept-1")

	actor := Actor{UserID: "admin-1", Role: models.RoleAdmin, Name: "Admin"}
	inst, err := svc.EnableOrCreate(context.Background(), actor, dto.AdminCreateFormRequest{
		StudentID: "2021PHD001",
		FormType:  "irb-extension",
	})
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, models.RoleStudent, inst.Stage)
	require.Len(t, store.created, 1)
}

func TestToggleAvailabilityNeedsLedgerRow(t *testing.T) {
	svc, _, _, _ := newAdminFixture()
	err := svc.ToggleAvailability(context.Background(), dto.ToggleAvailabilityRequest{
		StudentID: "2021PHD001",
		FormType:  "irb-extension",
		Role:      "student",
		Available: true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestControlRejectsForeignStage(t *testing.T) {
	svc, store, _, _ := newAdminFixture()
	seedExtensionForm(t, store, "form-1")

	stage := "director"
	_, err := svc.Control(context.Background(), dto.FormControlRequest{
		StudentID: "2021PHD001",
		FormType:  "irb-extension",
		FormID:    "form-1",
		Stage:     &stage,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestControlOverridesStageAndLocks(t *testing.T) {
	svc, store, _, _ := newAdminFixture()
	seedExtensionForm(t, store, "form-1")

	stage := "hod"
	inst, err := svc.Control(context.Background(), dto.FormControlRequest{
		StudentID: "2021PHD001",
		FormType:  "irb-extension",
		FormID:    "form-1",
		Stage:     &stage,
		Locks:     map[string]bool{"student": true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleHod, inst.Stage)
	assert.Equal(t, inst.Steps.Index(models.RoleHod), inst.CurrentStep)
	assert.True(t, inst.StateFor(models.RoleStudent).Lock)
}

func TestSetLevelUnlocksRole(t *testing.T) {
	svc, store, _, _ := newAdminFixture()
	inst := seedExtensionForm(t, store, "form-1")
	inst.Stage = models.RoleHod
	inst.CurrentStep = inst.Steps.Index(models.RoleHod)
	inst.SetStateFor(models.RoleFaculty, models.RoleState{Lock: true})

	updated, err := svc.SetLevel(context.Background(), dto.FormLevelRequest{
		FormType: "irb-extension",
		FormID:   "form-1",
		RollNo:   "2021PHD001",
		Role:     "faculty",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, updated.Stage)
	assert.False(t, updated.StateFor(models.RoleFaculty).Lock)
	assert.Equal(t, models.FormStatusPending, updated.Status)
}

func TestAdminDeleteMissingForm(t *testing.T) {
	svc, _, _, _ := newAdminFixture()
	err := svc.Delete(context.Background(), "irb-extension", "ghost")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
