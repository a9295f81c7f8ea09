package forms

import (
	"net/http"
	"sort"

	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

// ErrUnknownFormType is returned for slugs outside the static catalog.
var ErrUnknownFormType = appErrors.New("UNKNOWN_FORM_TYPE", http.StatusBadRequest, "Invalid form type")

// Definition describes one form type: its display name, the instance cap per
// student, and the ordered approval sequence. Definitions are fixed at
// startup; the steps frozen into an instance may still differ per student
// when the type is conditional.
type Definition struct {
	Slug     string
	Name     string
	MaxCount int
	Steps    models.StepList

	// RejectOverrides maps an acting stage to the stage a rejection falls
	// back to when it is not simply the previous step.
	RejectOverrides map[models.Role]models.Role

	// DirectorOnRepeat inserts a director step before complete when the
	// student already has at least one completed instance of this type.
	DirectorOnRepeat bool

	// LedgerExempt types never touch the general form ledger.
	LedgerExempt bool
}

var registry = map[string]Definition{
	"supervisor-allocation": {
		Slug:     "supervisor-allocation",
		Name:     "Supervisor Allocation Form",
		MaxCount: 1,
		Steps:    steps(models.RoleStudent, models.RolePhdCoordinator, models.RoleHod),
	},
	"irb-constitution": {
		Slug:     "irb-constitution",
		Name:     "IRB Constitution",
		MaxCount: 1,
		Steps:    steps(models.RoleStudent, models.RoleFaculty, models.RoleHod, models.RoleAdordc, models.RoleDordc),
	},
	"irb-submission": {
		Slug:     "irb-submission",
		Name:     "Revised IRB",
		MaxCount: 1,
		Steps:    steps(models.RoleStudent, models.RoleFaculty, models.RoleExternal, models.RoleDoctoral, models.RoleHod, models.RoleAdordc, models.RoleDordc),
	},
	"irb-extension": {
		Slug:             "irb-extension",
		Name:             "IRB Extension",
		MaxCount:         10,
		Steps:            steps(models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator, models.RoleHod, models.RoleDra, models.RoleDordc),
		DirectorOnRepeat: true,
	},
	"supervisor-change": {
		Slug:     "supervisor-change",
		Name:     "Supervisor Change",
		MaxCount: 10,
		Steps:    steps(models.RoleStudent, models.RolePhdCoordinator, models.RoleHod, models.RoleDordc, models.RoleDra),
	},
	"status-change": {
		Slug:             "status-change",
		Name:             "Change of Status",
		MaxCount:         2,
		Steps:            steps(models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator, models.RoleHod, models.RoleDra, models.RoleDordc),
		DirectorOnRepeat: true,
	},
	"semester-off": {
		Slug:     "semester-off",
		Name:     "Semester Off",
		MaxCount: 10,
		Steps:    steps(models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator, models.RoleHod, models.RoleDra, models.RoleDordc, models.RoleDirector),
	},
	"list-of-examiners": {
		Slug:     "list-of-examiners",
		Name:     "List of Examiners",
		MaxCount: 1,
		Steps:    steps(models.RoleFaculty, models.RoleHod, models.RoleDordc, models.RoleDirector),
	},
	"synopsis-submission": {
		Slug:     "synopsis-submission",
		Name:     "Synopsis Submission",
		MaxCount: 1,
		Steps:    steps(models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator, models.RoleHod, models.RoleDra, models.RoleAdordc, models.RoleDordc, models.RoleDirector),
	},
	"thesis-submission": {
		Slug:     "thesis-submission",
		Name:     "Thesis Submission",
		MaxCount: 1,
		Steps:    steps(models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator, models.RoleHod, models.RoleDra, models.RoleAdordc, models.RoleDordc),
	},
	"thesis-extension": {
		Slug:     "thesis-extension",
		Name:     "Thesis Extension",
		MaxCount: 10,
		Steps:    steps(models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator, models.RoleHod, models.RoleDra, models.RoleDordc),
	},
	"presentation": {
		Slug:         "presentation",
		Name:         "Presentation",
		MaxCount:     10,
		Steps:        steps(models.RoleStudent, models.RoleExternal),
		LedgerExempt: true,
	},
}

// steps appends the terminal pseudo-stage so every sequence ends uniformly.
func steps(roles ...models.Role) models.StepList {
	out := make(models.StepList, 0, len(roles)+1)
	out = append(out, roles...)
	return append(out, models.StageComplete)
}

// Lookup resolves a form type slug against the static catalog.
func Lookup(slug string) (Definition, error) {
	def, ok := registry[slug]
	if !ok {
		return Definition{}, ErrUnknownFormType
	}
	return def, nil
}

// Slugs lists every known form type in lexical order.
func Slugs() []string {
	out := make([]string, 0, len(registry))
	for slug := range registry {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// StepsFor freezes the approval sequence for a new instance. Conditional
// types gain a director step before complete once the student has a
// completed instance; the decision is made here, once, and never revisited.
func (d Definition) StepsFor(priorCompleted int) models.StepList {
	base := make(models.StepList, len(d.Steps))
	copy(base, d.Steps)
	if !d.DirectorOnRepeat || priorCompleted == 0 {
		return base
	}
	out := make(models.StepList, 0, len(base)+1)
	for _, step := range base {
		if step == models.StageComplete {
			out = append(out, models.RoleDirector)
		}
		out = append(out, step)
	}
	return out
}

// RejectTarget resolves where a rejection at the given stage falls back to,
// using the instance's own frozen steps. Defaults to the previous step.
func (d Definition) RejectTarget(stage models.Role, instanceSteps models.StepList) models.Role {
	if target, ok := d.RejectOverrides[stage]; ok {
		return target
	}
	idx := instanceSteps.Index(stage)
	if idx <= 0 {
		return instanceSteps[0]
	}
	return instanceSteps[idx-1]
}
