package models

import (
	"encoding/json"
	"time"
)

// Action labels recorded by the server. Attendance and student-creation
// labels embed the student's display name; LogActionPrefix* match them.
const (
	LogActionLogin          = "LOGIN"
	LogActionLogout         = "LOGOUT"
	LogActionUserCreate     = "USER_CREATE"
	LogActionUserUpdate     = "USER_UPDATE"
	LogActionUserArchive    = "USER_ARCHIVE"
	LogActionUserDelete     = "USER_DELETE"
	LogActionSecretChange   = "SECRET_CHANGE"
	LogActionStudentDeleted = "Student Deleted"

	LogActionPrefixStudentAdded = "Student Added"
	LogActionPrefixMarkedAbsent = "Student Marked Absent"
	LogActionPrefixUpdated      = "Attendance Updated"
)

// Entity types tagged on log entries.
const (
	EntityAttendance = "Attendance"
	EntityStudent    = "Student"
	EntityUser       = "User"
	EntityGrade      = "Grade"
)

// LogEntry is an append-only audit record. Entries are immutable; the After
// snapshot, when present, is the authoritative source for what changed since
// Before is often null.
type LogEntry struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType *string         `db:"entity_type" json:"entity_type,omitempty"`
	EntityID   *string         `db:"entity_id" json:"entity_id,omitempty"`
	Before     json.RawMessage `db:"before" json:"before,omitempty"`
	After      json.RawMessage `db:"after" json:"after,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address"`
	UserAgent  string          `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// LogFilter captures query parameters for listing log entries.
type LogFilter struct {
	UserID     string
	Action     string
	EntityType string
	Page       int
	PageSize   int
}
