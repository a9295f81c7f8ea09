package models

// ListScope is the role-derived base predicate for listing queries. Exactly
// one of the narrowing fields is set unless All is true.
type ListScope struct {
	All            bool
	StudentRollNo  string
	DepartmentIDs  []string
	SupervisorCode string
	DoctoralCode   string
}

// FormInstanceRow joins the listing columns rendered per row.
type FormInstanceRow struct {
	FormInstance
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}

// StudentName joins the student's user name for display.
func (r *FormInstanceRow) StudentName() string {
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}
