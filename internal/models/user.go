package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
)

// Valid reports whether the role is supported.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// CredentialKind names the secret type a role authenticates with. The users
// table carries a single secret_hash column; its kind follows the role, so
// "exactly one secret per role" holds structurally rather than by runtime
// convention.
type CredentialKind string

const (
	CredentialPassword CredentialKind = "PASSWORD"
	CredentialPIN      CredentialKind = "PIN"
)

// CredentialKindFor maps a role to the secret type it authenticates with.
func CredentialKindFor(role UserRole) CredentialKind {
	if role == RoleTeacher {
		return CredentialPIN
	}
	return CredentialPassword
}

// User represents an application user stored in the users table.
type User struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Role       UserRole   `db:"role" json:"role"`
	SecretHash string     `db:"secret_hash" json:"-"`
	Active     bool       `db:"active" json:"active"`
	LastLogin  *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// CredentialKind returns the secret type implied by the user's role.
func (u User) CredentialKind() CredentialKind {
	return CredentialKindFor(u.Role)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
