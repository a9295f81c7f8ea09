package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FormStatus is the coarse outcome of a form instance.
type FormStatus string

const (
	FormStatusDraft    FormStatus = "draft"
	FormStatusPending  FormStatus = "pending"
	FormStatusApproved FormStatus = "approved"
	FormStatusRejected FormStatus = "rejected"
)

// Completion marks whether an instance reached its terminal stage.
type Completion string

const (
	CompletionIncomplete Completion = "incomplete"
	CompletionComplete   Completion = "complete"
)

// RoleState holds one role's per-instance workflow fields. Keys in the
// containing map use Role.StorageKey().
type RoleState struct {
	Lock     bool    `json:"lock"`
	Approval *bool   `json:"approval,omitempty"`
	Comments *string `json:"comments,omitempty"`
}

// RoleStateMap is the role-indexed replacement for the legacy
// {role}_lock / {role}_approval / {role}_comments columns.
type RoleStateMap map[Role]RoleState

// Value implements driver.Valuer for JSONB storage.
func (m RoleStateMap) Value() (driver.Value, error) {
	if m == nil {
		m = RoleStateMap{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *RoleStateMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// StepList is the ordered role sequence frozen into an instance at creation.
type StepList []Role

// Value implements driver.Valuer.
func (s StepList) Value() (driver.Value, error) {
	if s == nil {
		s = StepList{}
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *StepList) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Index returns the zero-based position of the stage, or -1.
func (s StepList) Index(stage Role) int {
	for i, step := range s {
		if step == stage {
			return i
		}
	}
	return -1
}

// HistoryEntry is one append-only audit record on a form instance.
type HistoryEntry struct {
	Message string    `json:"message"`
	Actor   string    `json:"actor"`
	Comment *string   `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// History is the append-only transition log.
type History []HistoryEntry

// Value implements driver.Valuer.
func (h History) Value() (driver.Value, error) {
	if h == nil {
		h = History{}
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *History) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// Payload carries form-type-specific fields the workflow engine never
// interprets (reasons, file references, dates).
type Payload map[string]interface{}

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		p = Payload{}
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// FormInstance is one submitted occurrence of a form type. All twelve types
// share this envelope; type-specific fields live in Payload.
type FormInstance struct {
	ID          string       `db:"id" json:"id"`
	FormType    string       `db:"form_type" json:"form_type"`
	StudentID   string       `db:"student_id" json:"student_id"`
	Status      FormStatus   `db:"status" json:"status"`
	Completion  Completion   `db:"completion" json:"completion"`
	Stage       Role         `db:"stage" json:"stage"`
	Steps       StepList     `db:"steps" json:"steps"`
	CurrentStep int          `db:"current_step" json:"current_step"`
	MaximumStep int          `db:"maximum_step" json:"maximum_step"`
	RoleState   RoleStateMap `db:"role_state" json:"role_state"`
	History     History      `db:"history" json:"history"`
	Payload     Payload      `db:"payload" json:"payload"`
	Version     int          `db:"version" json:"-"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// StateFor returns the stored workflow state for a role, alias-normalized.
func (f *FormInstance) StateFor(role Role) RoleState {
	if f.RoleState == nil {
		return RoleState{}
	}
	return f.RoleState[role.StorageKey()]
}

// SetStateFor writes a role's workflow state, alias-normalized.
func (f *FormInstance) SetStateFor(role Role, state RoleState) {
	if f.RoleState == nil {
		f.RoleState = RoleStateMap{}
	}
	f.RoleState[role.StorageKey()] = state
}

// AppendHistory adds an audit entry. History is engine-owned and
// unconditional: every successful transition appends exactly one entry.
func (f *FormInstance) AppendHistory(message, actor string, comment *string, at time.Time) {
	f.History = append(f.History, HistoryEntry{Message: message, Actor: actor, Comment: comment, At: at})
}

// LedgerUpdate describes the ledger-side effect of a workflow transition:
// the new stage mirror and optionally a role whose availability flips on.
type LedgerUpdate struct {
	StudentID  string
	FormType   string
	Stage      Role
	EnableRole *Role
}

// AvailabilityMap is the per-role availability flags on the general form
// ledger, keyed by Role.LedgerKey().
type AvailabilityMap map[Role]bool

// Value implements driver.Valuer.
func (m AvailabilityMap) Value() (driver.Value, error) {
	if m == nil {
		m = AvailabilityMap{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *AvailabilityMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// GeneralFormRecord is the per (student, form type) ledger row gating
// creation and surfacing availability to listings.
type GeneralFormRecord struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	FormType     string          `db:"form_type" json:"form_type"`
	FormName     string          `db:"form_name" json:"form_name"`
	DepartmentID string          `db:"department_id" json:"department_id"`
	Stage        Role            `db:"stage" json:"stage"`
	Count        int             `db:"count" json:"count"`
	MaxCount     int             `db:"max_count" json:"max_count"`
	Availability AvailabilityMap `db:"availability" json:"availability"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// AvailableFor reports whether a role may currently act on this form type.
// Missing keys mean "never enabled", which gates creation the same as false.
func (r *GeneralFormRecord) AvailableFor(role Role) bool {
	if r.Availability == nil {
		return false
	}
	return r.Availability[role.LedgerKey()]
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
}
