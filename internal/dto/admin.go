package dto

import "github.com/noah-isme/phd-portal-api/internal/models"

// AdminCreateFormRequest creates or just enables a form for a student.
type AdminCreateFormRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	FormType   string `json:"form_type" validate:"required"`
	EnableOnly bool   `json:"enable_form"`
}

// ToggleAvailabilityRequest flips a role's availability on the ledger.
type ToggleAvailabilityRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	FormType  string `json:"form_type" validate:"required"`
	Role      string `json:"role" validate:"required"`
	Available bool   `json:"available"`
}

// FormControlRequest overrides workflow fields on an instance.
type FormControlRequest struct {
	StudentID   string          `json:"student_id" validate:"required"`
	FormType    string          `json:"form_type" validate:"required"`
	FormID      string          `json:"form_id" validate:"required"`
	Stage       *string         `json:"stage"`
	CurrentStep *int            `json:"current_step"`
	MaximumStep *int            `json:"maximum_step"`
	Locks       map[string]bool `json:"locks"`
}

// FormLevelRequest resets an instance back to a given role's level.
type FormLevelRequest struct {
	FormType string `json:"form_type" validate:"required"`
	FormID   string `json:"form_id" validate:"required"`
	RollNo   string `json:"roll_no" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// StudentFormsOverview aggregates every form type for one student.
type StudentFormsOverview struct {
	Student StudentSummary     `json:"student"`
	Forms   []FormTypeOverview `json:"forms"`
}

// StudentSummary is the header block of the admin overview.
type StudentSummary struct {
	RollNo     string `json:"roll_no"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// FormTypeOverview pairs a ledger row (real or default) with its instances.
type FormTypeOverview struct {
	FormType  string                    `json:"form_type"`
	FormName  string                    `json:"form_name"`
	Enabled   bool                      `json:"exists_in_forms_table"`
	Ledger    *models.GeneralFormRecord `json:"general_form,omitempty"`
	Instances []models.FormInstance     `json:"instances"`
}
