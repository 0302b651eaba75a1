package models

import "time"

// Grade is a labeled grade level owned by one teacher. Name and number are
// unique among that teacher's *active* grades; soft-deleted rows are revived
// in place when a matching grade is re-created.
type Grade struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Number    int       `db:"number" json:"number"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Active    bool      `db:"active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
