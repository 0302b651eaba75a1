package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type mockGradeRepo struct {
	grades []*models.Grade
}

func (m *mockGradeRepo) ListActiveByTeacher(_ context.Context, teacherID string) ([]models.Grade, error) {
	var out []models.Grade
	for _, g := range m.grades {
		if g.TeacherID == teacherID && g.Active {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockGradeRepo) FindByID(_ context.Context, id string) (*models.Grade, error) {
	for _, g := range m.grades {
		if g.ID == id {
			found := *g
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) FindMatch(_ context.Context, teacherID, name string, number int, active bool) (*models.Grade, error) {
	for _, g := range m.grades {
		if g.TeacherID == teacherID && g.Active == active && (g.Name == name || g.Number == number) {
			found := *g
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) Create(_ context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	stored := *grade
	m.grades = append(m.grades, &stored)
	return nil
}

func (m *mockGradeRepo) Revive(_ context.Context, id, name string, number int) (*models.Grade, error) {
	for _, g := range m.grades {
		if g.ID == id {
			g.Name = name
			g.Number = number
			g.Active = true
			revived := *g
			return &revived, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) Deactivate(_ context.Context, id string) error {
	for _, g := range m.grades {
		if g.ID == id {
			g.Active = false
		}
	}
	return nil
}

func (m *mockGradeRepo) CountActiveByTeacher(_ context.Context, teacherID string) (int, error) {
	count := 0
	for _, g := range m.grades {
		if g.TeacherID == teacherID && g.Active {
			count++
		}
	}
	return count, nil
}

type mockGradeStudents struct {
	countByGrade map[int]int
}

func (m *mockGradeStudents) CountByGrade(_ context.Context, grade int) (int, error) {
	return m.countByGrade[grade], nil
}

func newGradeFixture(grades ...*models.Grade) (*mockGradeRepo, *mockGradeStudents, *GradeService) {
	repo := &mockGradeRepo{grades: grades}
	students := &mockGradeStudents{countByGrade: map[int]int{}}
	svc := NewGradeService(repo, students, &mockLogRepo{}, nil, nil)
	return repo, students, svc
}

func TestGradeServiceCreate(t *testing.T) {
	repo, _, svc := newGradeFixture()

	grade, err := svc.Create(context.Background(), "t-1", CreateGradeRequest{Name: "Primary 1", Number: 1})
	require.NoError(t, err)
	assert.True(t, grade.Active)
	assert.Equal(t, "t-1", grade.TeacherID)
	assert.Len(t, repo.grades, 1)
}

func TestGradeServiceCreateConflictsOnNameOrNumber(t *testing.T) {
	_, _, svc := newGradeFixture(
		&models.Grade{ID: "g-1", Name: "Primary 1", Number: 1, TeacherID: "t-1", Active: true},
	)

	_, err := svc.Create(context.Background(), "t-1", CreateGradeRequest{Name: "Primary 1", Number: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), "t-1", CreateGradeRequest{Name: "Class One", Number: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceCreateIsScopedPerTeacher(t *testing.T) {
	repo, _, svc := newGradeFixture(
		&models.Grade{ID: "g-1", Name: "Primary 1", Number: 1, TeacherID: "t-1", Active: true},
	)

	// The same label under a different teacher is not a collision.
	_, err := svc.Create(context.Background(), "t-2", CreateGradeRequest{Name: "Primary 1", Number: 1})
	require.NoError(t, err)
	assert.Len(t, repo.grades, 2)
}

func TestGradeServiceCreateRevivesSoftDeleted(t *testing.T) {
	repo, _, svc := newGradeFixture(
		&models.Grade{ID: "g-1", Name: "Primary 1", Number: 1, TeacherID: "t-1", Active: false},
	)

	grade, err := svc.Create(context.Background(), "t-1", CreateGradeRequest{Name: "Class One", Number: 1})
	require.NoError(t, err)
	assert.Equal(t, "g-1", grade.ID)
	assert.Equal(t, "Class One", grade.Name)
	assert.True(t, grade.Active)
	assert.Len(t, repo.grades, 1)
}

func TestGradeServiceDeleteGuards(t *testing.T) {
	_, students, svc := newGradeFixture(
		&models.Grade{ID: "g-1", Name: "Primary 1", Number: 1, TeacherID: "t-1", Active: true},
		&models.Grade{ID: "g-2", Name: "Primary 2", Number: 2, TeacherID: "t-1", Active: true},
	)

	students.countByGrade[1] = 3
	err := svc.Delete(context.Background(), "t-1", "g-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	students.countByGrade[1] = 0
	require.NoError(t, svc.Delete(context.Background(), "t-1", "g-1"))

	// g-2 is now the last active grade.
	err = svc.Delete(context.Background(), "t-1", "g-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceDeleteForeignGrade(t *testing.T) {
	_, _, svc := newGradeFixture(
		&models.Grade{ID: "g-1", Name: "Primary 1", Number: 1, TeacherID: "t-1", Active: true},
	)

	err := svc.Delete(context.Background(), "t-2", "g-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
