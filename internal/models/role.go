package models

import "fmt"

// Role identifies one of the fixed portal roles. A user holds exactly one
// active role per session; workflow stages are named after roles.
type Role string

const (
	RoleStudent        Role = "student"
	RoleFaculty        Role = "faculty"
	RolePhdCoordinator Role = "phd_coordinator"
	RoleHod            Role = "hod"
	RoleAdordc         Role = "adordc"
	RoleDordc          Role = "dordc"
	RoleDra            Role = "dra"
	RoleDirector       Role = "director"
	RoleDoctoral       Role = "doctoral"
	RoleExternal       Role = "external"
	RoleAdmin          Role = "admin"
)

// StageComplete is the terminal pseudo-stage a form reaches after its last
// approval. It is never a Role a user can hold.
const StageComplete Role = "complete"

// Capabilities enumerates what a role may do outside the workflow itself.
type Capabilities struct {
	CanAddStudents   bool
	CanManageRoles   bool
	CanOverrideForms bool
	InstituteWide    bool
}

var roleCatalog = map[Role]Capabilities{
	RoleStudent:        {},
	RoleFaculty:        {},
	RolePhdCoordinator: {CanAddStudents: true},
	RoleHod:            {},
	RoleAdordc:         {},
	RoleDordc:          {InstituteWide: true},
	RoleDra:            {CanAddStudents: true, InstituteWide: true},
	RoleDirector:       {InstituteWide: true},
	RoleDoctoral:       {},
	RoleExternal:       {},
	RoleAdmin:          {CanAddStudents: true, CanManageRoles: true, CanOverrideForms: true, InstituteWide: true},
}

// ParseRole validates a raw role name against the catalog.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if _, ok := roleCatalog[role]; !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Known reports whether the role exists in the catalog.
func (r Role) Known() bool {
	_, ok := roleCatalog[r]
	return ok
}

// Capabilities returns the role's capability flags.
func (r Role) Capabilities() Capabilities {
	return roleCatalog[r]
}

// StorageKey maps a workflow role to the key its lock/approval/comment state
// is stored under. Historically the faculty role acted as "supervisor" on
// forms and the stored data keeps that name.
func (r Role) StorageKey() Role {
	if r == RoleFaculty {
		return Role("supervisor")
	}
	return r
}

// LedgerKey maps a workflow role to its availability flag on the general form
// ledger. The external stage shares the doctoral committee's flag.
func (r Role) LedgerKey() Role {
	if r == RoleExternal {
		return RoleDoctoral
	}
	return r
}

// Title returns the human-readable role name used in history messages.
func (r Role) Title() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleFaculty:
		return "Supervisor"
	case RolePhdCoordinator:
		return "PhD Coordinator"
	case RoleHod:
		return "HOD"
	case RoleAdordc:
		return "ADORDC"
	case RoleDordc:
		return "DORDC"
	case RoleDra:
		return "DRA"
	case RoleDirector:
		return "Director"
	case RoleDoctoral:
		return "Doctoral Committee"
	case RoleExternal:
		return "External"
	case RoleAdmin:
		return "Admin"
	default:
		return string(r)
	}
}
