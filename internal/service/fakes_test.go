package service

import (
	"context"
	"database/sql"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/internal/models"
)

type fakeRoster struct {
	students       map[string]*models.Student
	studentsByUser map[string]*models.Student
	faculties      map[string]*models.Faculty
	supervises     map[string][]string
	committee      map[string][]string
	hodDepts       map[string][]string
	coordDepts     map[string][]string
	adordcDepts    map[string][]string
	recipients     map[string][]string
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		students:       map[string]*models.Student{},
		studentsByUser: map[string]*models.Student{},
		faculties:      map[string]*models.Faculty{},
		supervises:     map[string][]string{},
		committee:      map[string][]string{},
		hodDepts:       map[string][]string{},
		coordDepts:     map[string][]string{},
		adordcDepts:    map[string][]string{},
		recipients:     map[string][]string{},
	}
}

func (f *fakeRoster) addStudent(rollNo, userID, departmentID string) {
	student := &models.Student{RollNo: rollNo, UserID: userID, DepartmentID: departmentID}
	f.students[rollNo] = student
	f.studentsByUser[userID] = student
}

func (f *fakeRoster) addFaculty(code, userID, departmentID string) {
	f.faculties[userID] = &models.Faculty{FacultyCode: code, UserID: userID, DepartmentID: departmentID}
}

func (f *fakeRoster) GetStudent(ctx context.Context, rollNo string) (*models.Student, error) {
	if s, ok := f.students[rollNo]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRoster) GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if s, ok := f.studentsByUser[userID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRoster) GetStudentDetail(ctx context.Context, rollNo string) (*models.StudentDetail, error) {
	s, ok := f.students[rollNo]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.StudentDetail{Student: *s, FirstName: "Asha", LastName: "Verma", DepartmentName: "CSE"}, nil
}

func (f *fakeRoster) GetFacultyByUserID(ctx context.Context, userID string) (*models.Faculty, error) {
	if fac, ok := f.faculties[userID]; ok {
		return fac, nil
	}
	return nil, sql.ErrNoRows
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (f *fakeRoster) IsSupervisorOf(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	return contains(f.supervises[facultyCode], rollNo), nil
}

func (f *fakeRoster) IsOnDoctoralCommittee(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	return contains(f.committee[facultyCode], rollNo), nil
}

func (f *fakeRoster) IsHodOf(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	student, ok := f.students[rollNo]
	if !ok {
		return false, nil
	}
	return contains(f.hodDepts[facultyCode], student.DepartmentID), nil
}

func (f *fakeRoster) CoordinatesDepartment(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	student, ok := f.students[rollNo]
	if !ok {
		return false, nil
	}
	return contains(f.coordDepts[facultyCode], student.DepartmentID), nil
}

func (f *fakeRoster) AdordcDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	return f.adordcDepts[facultyCode], nil
}

func (f *fakeRoster) CoordinatedDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	return f.coordDepts[facultyCode], nil
}

func (f *fakeRoster) HeadedDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	return f.hodDepts[facultyCode], nil
}

func (f *fakeRoster) RecipientUserIDs(ctx context.Context, role models.Role, rollNo string) ([]string, error) {
	return f.recipients[string(role)+":"+rollNo], nil
}

type fakeInstanceStore struct {
	instances     map[string]*models.FormInstance
	ledgerUpdates []*models.LedgerUpdate
	created       []*models.FormInstance
	completed     map[string]int

	createErr     error
	transitionErr error
	fresh         *models.FormInstance
}

func newFakeInstanceStore() *fakeInstanceStore {
	return &fakeInstanceStore{instances: map[string]*models.FormInstance{}, completed: map[string]int{}}
}

func (f *fakeInstanceStore) GetByIDAndType(ctx context.Context, id, formType string) (*models.FormInstance, error) {
	inst, ok := f.instances[id]
	if !ok || inst.FormType != formType {
		return nil, sql.ErrNoRows
	}
	return inst, nil
}

func (f *fakeInstanceStore) ApplyTransition(ctx context.Context, inst *models.FormInstance, ledger *models.LedgerUpdate) error {
	if f.transitionErr != nil {
		err := f.transitionErr
		f.transitionErr = nil
		if f.fresh != nil {
			// The winning writer's state becomes visible to the re-read.
			f.instances[inst.ID] = f.fresh
		}
		return err
	}
	f.ledgerUpdates = append(f.ledgerUpdates, ledger)
	f.instances[inst.ID] = inst
	return nil
}

func (f *fakeInstanceStore) Create(ctx context.Context, inst *models.FormInstance, ledgerID string) error {
	if f.createErr != nil {
		return f.createErr
	}
	inst.ID = "form-new"
	f.instances[inst.ID] = inst
	f.created = append(f.created, inst)
	return nil
}

func (f *fakeInstanceStore) CountCompleted(ctx context.Context, formType, studentID string) (int, error) {
	return f.completed[formType+":"+studentID], nil
}

func (f *fakeInstanceStore) ListByStudent(ctx context.Context, formType, studentID string) ([]models.FormInstance, error) {
	var out []models.FormInstance
	for _, inst := range f.instances {
		if inst.FormType == formType && inst.StudentID == studentID {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (f *fakeInstanceStore) List(ctx context.Context, formType string, scope models.ListScope, filters *dto.FilterSet, page, pageSize int) ([]models.FormInstanceRow, int, error) {
	var out []models.FormInstanceRow
	for _, inst := range f.instances {
		if inst.FormType != formType {
			continue
		}
		switch {
		case scope.All:
		case scope.StudentRollNo != "":
			if inst.StudentID != scope.StudentRollNo {
				continue
			}
		default:
			continue
		}
		out = append(out, models.FormInstanceRow{FormInstance: *inst, FirstName: "Asha", LastName: "Verma"})
	}
	return out, len(out), nil
}

func (f *fakeInstanceStore) Delete(ctx context.Context, id, formType string) error {
	if _, ok := f.instances[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.instances, id)
	return nil
}

type fakeNotifier struct {
	events []forms.Event
}

func (f *fakeNotifier) NotifyTransition(event forms.Event) {
	f.events = append(f.events, event)
}

type fakeLedgerStore struct {
	records map[string]*models.GeneralFormRecord
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{records: map[string]*models.GeneralFormRecord{}}
}

func (f *fakeLedgerStore) key(studentID, formType string) string {
	return studentID + ":" + formType
}

func (f *fakeLedgerStore) Get(ctx context.Context, studentID, formType string) (*models.GeneralFormRecord, error) {
	return f.records[f.key(studentID, formType)], nil
}

func (f *fakeLedgerStore) ListByStudent(ctx context.Context, studentID string) ([]models.GeneralFormRecord, error) {
	var out []models.GeneralFormRecord
	for _, r := range f.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeLedgerStore) Upsert(ctx context.Context, record *models.GeneralFormRecord) error {
	if record.ID == "" {
		record.ID = "ledger-" + record.FormType
	}
	f.records[f.key(record.StudentID, record.FormType)] = record
	return nil
}

func (f *fakeLedgerStore) SetAvailability(ctx context.Context, studentID, formType string, role models.Role, available bool) error {
	record, ok := f.records[f.key(studentID, formType)]
	if !ok {
		return sql.ErrNoRows
	}
	if record.Availability == nil {
		record.Availability = models.AvailabilityMap{}
	}
	record.Availability[role.LedgerKey()] = available
	return nil
}
