package models

import (
	"strings"
	"time"
)

// StudentSex is the stored sex value on a student record.
type StudentSex string

const (
	SexMale   StudentSex = "MALE"
	SexFemale StudentSex = "FEMALE"
)

// Valid reports whether the sex value is supported.
func (s StudentSex) Valid() bool {
	return s == SexMale || s == SexFemale
}

// Student represents a learner registered in the school.
type Student struct {
	ID              string     `db:"id" json:"id"`
	FirstName       string     `db:"first_name" json:"first_name"`
	LastName        string     `db:"last_name" json:"last_name"`
	Sex             StudentSex `db:"sex" json:"sex"`
	Grade           int        `db:"grade" json:"grade"`
	Active          bool       `db:"active" json:"active"`
	CreatedByUserID *string    `db:"created_by_user_id" json:"created_by_user_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins the name parts the way attendance snapshots store them.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Grade    *int
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
