package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollbook/rollbook-api/internal/models"
)

// GradeRepository manages persistence for teacher-scoped grade labels.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = "id, name, number, teacher_id, active, created_at, updated_at"

// ListActiveByTeacher returns a teacher's active grades, number ascending.
func (r *GradeRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE teacher_id = $1 AND active = TRUE ORDER BY number ASC", gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, teacherID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// FindByID fetches a grade by id.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE id = $1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindMatch returns the teacher's grade whose name or number collides,
// restricted to the given active state. Used both for the duplicate guard
// (active = true) and for revival candidates (active = false).
func (r *GradeRepository) FindMatch(ctx context.Context, teacherID, name string, number int, active bool) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE teacher_id = $1 AND active = $2 AND (name = $3 OR number = $4) LIMIT 1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, teacherID, active, name, number); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade match: %w", err)
	}
	return &grade, nil
}

// Create inserts a new grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, name, number, teacher_id, active, created_at, updated_at)
        VALUES (:id, :name, :number, :teacher_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Revive reactivates a soft-deleted grade in place, taking on the submitted
// name and number.
func (r *GradeRepository) Revive(ctx context.Context, id, name string, number int) (*models.Grade, error) {
	query := fmt.Sprintf(`UPDATE grades SET name = $2, number = $3, active = TRUE, updated_at = $4 WHERE id = $1 RETURNING %s`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id, name, number, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("revive grade: %w", err)
	}
	return &grade, nil
}

// Deactivate soft-deletes a grade.
func (r *GradeRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE grades SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate grade: %w", err)
	}
	return nil
}

// CountActiveByTeacher counts a teacher's active grades.
func (r *GradeRepository) CountActiveByTeacher(ctx context.Context, teacherID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM grades WHERE teacher_id = $1 AND active = TRUE`, teacherID); err != nil {
		return 0, fmt.Errorf("count grades: %w", err)
	}
	return count, nil
}
