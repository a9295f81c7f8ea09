package dto

import (
	"time"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

// SubmitFormRequest is one role's action on a form instance. Approval is a
// pointer so a missing field is distinguishable from an explicit false.
// Payload fields ride along opaquely (the student's form data).
type SubmitFormRequest struct {
	Approval *bool          `json:"approval"`
	Comments string         `json:"comments"`
	Payload  models.Payload `json:"payload"`
}

// CreateFormRequest starts a new instance of a form type. StudentID is only
// needed when the initiating role is not the student (list of examiners).
type CreateFormRequest struct {
	StudentID string         `json:"student_id"`
	Payload   models.Payload `json:"payload"`
}

// BulkSubmitRequest applies an approval to a list of instances. Rejections
// stay single-item operations: they need per-form comments.
type BulkSubmitRequest struct {
	FormIDs []string `json:"form_ids" validate:"required,min=1"`
}

// BulkItemResult reports one instance's outcome inside a batch.
type BulkItemResult struct {
	FormID  string `json:"form_id"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// BulkSubmitReport aggregates a batch run; the batch never aborts on a
// single item's failure.
type BulkSubmitReport struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

// FilterCondition is one dynamic filter triple. Key may traverse a relation
// path ("student.department_id"); only whitelisted keys are accepted.
type FilterCondition struct {
	Key   string      `json:"key"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// FilterSet is the full dynamic filter payload: conditions combined with
// AND/OR, plus mandatory conditions that are always ANDed in.
type FilterSet struct {
	Combine    string            `json:"combine"`
	Conditions []FilterCondition `json:"conditions"`
	Mandatory  []FilterCondition `json:"mandatory_filter"`
}

// ListFormsQuery carries pagination and filters for listing endpoints.
type ListFormsQuery struct {
	Page     int
	PageSize int
	Filters  *FilterSet
}

// FormListItem is one row of a role-scoped listing.
type FormListItem struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	RollNo     string                 `json:"roll_no"`
	Stage      models.Role            `json:"stage"`
	Status     models.FormStatus      `json:"status"`
	Completion models.Completion      `json:"completion"`
	ActionReq  bool                   `json:"action_req"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// ListFormsResponse is the listing envelope; fields/titles drive rendering
// and are independent of filtering.
type ListFormsResponse struct {
	Data        []FormListItem `json:"data"`
	Page        int            `json:"page"`
	Total       int            `json:"total"`
	TotalPages  int            `json:"totalPages"`
	Fields      []string       `json:"fields"`
	FieldTitles []string       `json:"fieldsTitles"`
	Role        models.Role    `json:"role"`
}
