package models

import "time"

// Student is keyed by roll number; form instances reference it directly.
type Student struct {
	ID             string     `db:"id" json:"id"`
	RollNo         string     `db:"roll_no" json:"roll_no"`
	UserID         string     `db:"user_id" json:"user_id"`
	DepartmentID   string     `db:"department_id" json:"department_id"`
	PhdTitle       string     `db:"phd_title" json:"phd_title"`
	CurrentStatus  string     `db:"current_status" json:"current_status"`
	DateOfJoining  *time.Time `db:"date_of_joining" json:"date_of_joining,omitempty"`
	DateOfIrb      *time.Time `db:"date_of_irb" json:"date_of_irb,omitempty"`
	DateOfSynopsis *time.Time `db:"date_of_synopsis" json:"date_of_synopsis,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentDetail embeds the joined user columns listings render.
type StudentDetail struct {
	Student
	FirstName      string `db:"first_name" json:"first_name"`
	LastName       string `db:"last_name" json:"last_name"`
	Email          string `db:"email" json:"email"`
	DepartmentName string `db:"department_name" json:"department_name"`
}

// Faculty is keyed by faculty code; supervision and committee membership
// reference the code, not the surrogate id.
type Faculty struct {
	ID           string    `db:"id" json:"id"`
	FacultyCode  string    `db:"faculty_code" json:"faculty_code"`
	UserID       string    `db:"user_id" json:"user_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Designation  string    `db:"designation" json:"designation"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
