package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type mockStudentRepo struct {
	students []*models.Student
	deleted  []string
	bulkErr  error
}

func (m *mockStudentRepo) List(_ context.Context, _ models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, len(m.students))
	for i, s := range m.students {
		out[i] = *s
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	for _, s := range m.students {
		if s.ID == id {
			found := *s
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(_ context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	stored := *student
	m.students = append(m.students, &stored)
	return nil
}

func (m *mockStudentRepo) BulkCreate(_ context.Context, students []models.Student) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	for i := range students {
		if students[i].ID == "" {
			students[i].ID = uuid.NewString()
		}
		stored := students[i]
		m.students = append(m.students, &stored)
	}
	return nil
}

func (m *mockStudentRepo) Update(_ context.Context, student *models.Student) error {
	for _, s := range m.students {
		if s.ID == student.ID {
			*s = *student
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockStudentRepo) SetActive(_ context.Context, id string, active bool) error {
	for _, s := range m.students {
		if s.ID == id {
			s.Active = active
		}
	}
	return nil
}

func (m *mockStudentRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	kept := m.students[:0]
	for _, s := range m.students {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	m.students = kept
	return nil
}

func (m *mockStudentRepo) DeleteByGrade(_ context.Context, grade int) (int, error) {
	kept := m.students[:0]
	removed := 0
	for _, s := range m.students {
		if s.Grade == grade {
			m.deleted = append(m.deleted, s.ID)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.students = kept
	return removed, nil
}

func TestStudentServiceCreateWritesAssociationLog(t *testing.T) {
	repo := &mockStudentRepo{}
	logs := &mockLogRepo{}
	svc := NewStudentService(repo, logs, nil, nil, nil)

	student, err := svc.Create(context.Background(), "t-1", StudentPayload{
		FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	require.NotNil(t, student.CreatedByUserID)
	assert.Equal(t, "t-1", *student.CreatedByUserID)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, "Student Added - Kwame Mensah", entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "t-1", *entry.UserID)

	// The roster resolver reads the new student's id out of the snapshot.
	var after map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.After, &after))
	assert.Equal(t, student.ID, after["id"])
}

func TestStudentServiceBulkCreateLogsEachStudent(t *testing.T) {
	repo := &mockStudentRepo{}
	logs := &mockLogRepo{}
	svc := NewStudentService(repo, logs, nil, nil, nil)

	students, err := svc.BulkCreate(context.Background(), "t-1", BulkCreateStudentsRequest{
		Students: []StudentPayload{
			{FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 3},
			{FirstName: "Abena", LastName: "Owusu", Sex: models.SexFemale, Grade: 3},
		},
	})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Len(t, repo.students, 2)
	assert.Len(t, logs.entries, 2)
}

func TestStudentServiceBulkCreateRejectsEmptyBatch(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockLogRepo{}, nil, nil, nil)

	_, err := svc.BulkCreate(context.Background(), "t-1", BulkCreateStudentsRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceArchiveAndRestore(t *testing.T) {
	repo := &mockStudentRepo{students: []*models.Student{
		{ID: "s-1", FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 3, Active: true},
	}}
	logs := &mockLogRepo{}
	svc := NewStudentService(repo, logs, nil, nil, nil)

	student, err := svc.SetActive(context.Background(), "t-1", "s-1", false)
	require.NoError(t, err)
	assert.False(t, student.Active)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, "Student Archived - Kwame Mensah", logs.entries[0].Action)

	// Archiving an already-archived student is a no-op without a log entry.
	_, err = svc.SetActive(context.Background(), "t-1", "s-1", false)
	require.NoError(t, err)
	assert.Len(t, logs.entries, 1)

	student, err = svc.SetActive(context.Background(), "t-1", "s-1", true)
	require.NoError(t, err)
	assert.True(t, student.Active)
	assert.Equal(t, "Student Restored - Kwame Mensah", logs.entries[1].Action)
}

func TestStudentServiceDeleteWritesSnapshotLog(t *testing.T) {
	repo := &mockStudentRepo{students: []*models.Student{
		{ID: "s-1", FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 3, Active: true},
	}}
	logs := &mockLogRepo{}
	svc := NewStudentService(repo, logs, nil, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "t-1", "s-1"))
	assert.Equal(t, []string{"s-1"}, repo.deleted)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, models.LogActionStudentDeleted, entry.Action)

	var before map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Before, &before))
	assert.Equal(t, "Kwame", before["first_name"])
	assert.Equal(t, float64(3), before["grade"])
}

func TestStudentServiceDeleteUnknown(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockLogRepo{}, nil, nil, nil)

	err := svc.Delete(context.Background(), "t-1", "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceResetGrade(t *testing.T) {
	repo := &mockStudentRepo{students: []*models.Student{
		{ID: "s-1", FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 3, Active: true},
		{ID: "s-2", FirstName: "Abena", LastName: "Owusu", Sex: models.SexFemale, Grade: 3, Active: true},
		{ID: "s-3", FirstName: "Yaw", LastName: "Boateng", Sex: models.SexMale, Grade: 4, Active: true},
	}}
	logs := &mockLogRepo{}
	svc := NewStudentService(repo, logs, nil, nil, nil)

	deleted, err := svc.ResetGrade(context.Background(), "u-1", ResetStudentsRequest{Grade: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// Only the other grade survives.
	require.Len(t, repo.students, 1)
	assert.Equal(t, "s-3", repo.students[0].ID)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, "Students Reset - Grade 3", entry.Action)

	var after map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.After, &after))
	assert.Equal(t, float64(3), after["grade"])
	assert.Equal(t, float64(2), after["deletedCount"])
}

func TestStudentServiceResetGradeRequiresGrade(t *testing.T) {
	repo := &mockStudentRepo{}
	logs := &mockLogRepo{}
	svc := NewStudentService(repo, logs, nil, nil, nil)

	_, err := svc.ResetGrade(context.Background(), "u-1", ResetStudentsRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, logs.entries)
}
