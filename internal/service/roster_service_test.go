package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
)

type mockRosterStudents struct {
	students map[string]models.Student
	calls    int
}

func (m *mockRosterStudents) FindByIDs(_ context.Context, ids []string) ([]models.Student, error) {
	m.calls++
	var out []models.Student
	for _, id := range ids {
		if st, ok := m.students[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

type mockRosterLogs struct {
	created []string
}

func (m *mockRosterLogs) StudentIDsCreatedBy(_ context.Context, _ string) ([]string, error) {
	return m.created, nil
}

type mockRosterAttendance struct {
	recorded []string
}

func (m *mockRosterAttendance) StudentIDsByRecorder(_ context.Context, _ string) ([]string, error) {
	return m.recorded, nil
}

func TestRosterServiceUnionsBothSignals(t *testing.T) {
	students := &mockRosterStudents{students: map[string]models.Student{
		"s-1": {ID: "s-1", FirstName: "Ama", LastName: "Boateng", Sex: models.SexFemale, Grade: 2, Active: true},
		"s-2": {ID: "s-2", FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 1, Active: true},
		"s-3": {ID: "s-3", FirstName: "Yaw", LastName: "Darko", Sex: models.SexMale, Grade: 2, Active: true},
	}}
	// s-2 appears in both signals; the roster must not duplicate it.
	logs := &mockRosterLogs{created: []string{"s-1", "s-2"}}
	attendance := &mockRosterAttendance{recorded: []string{"s-2", "s-3"}}
	svc := NewRosterService(students, logs, attendance, nil, time.Minute, zap.NewNop())

	roster, err := svc.StudentsManagedBy(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, roster, 3)

	ids := []string{roster[0].ID, roster[1].ID, roster[2].ID}
	assert.ElementsMatch(t, []string{"s-1", "s-2", "s-3"}, ids)
}

func TestRosterServiceSortOrder(t *testing.T) {
	students := &mockRosterStudents{students: map[string]models.Student{
		"s-1": {ID: "s-1", FirstName: "Ama", LastName: "Boateng", Sex: models.SexFemale, Grade: 1, Active: true},
		"s-2": {ID: "s-2", FirstName: "Kwame", LastName: "Mensah", Sex: models.SexMale, Grade: 1, Active: true},
		"s-3": {ID: "s-3", FirstName: "Abena", LastName: "Owusu", Sex: models.SexFemale, Grade: 1, Active: true},
		"s-4": {ID: "s-4", FirstName: "Yaw", LastName: "Darko", Sex: models.SexMale, Grade: 2, Active: true},
	}}
	logs := &mockRosterLogs{created: []string{"s-4", "s-3", "s-2", "s-1"}}
	svc := NewRosterService(students, logs, &mockRosterAttendance{}, nil, time.Minute, zap.NewNop())

	roster, err := svc.StudentsManagedBy(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, roster, 4)

	// Grade ascending, boys before girls within a grade, then alphabetical.
	assert.Equal(t, "s-2", roster[0].ID)
	assert.Equal(t, "s-3", roster[1].ID)
	assert.Equal(t, "s-1", roster[2].ID)
	assert.Equal(t, "s-4", roster[3].ID)
}

func TestRosterServiceSkipsArchivedAndDeleted(t *testing.T) {
	students := &mockRosterStudents{students: map[string]models.Student{
		"s-1": {ID: "s-1", FirstName: "Ama", LastName: "Boateng", Sex: models.SexFemale, Grade: 1, Active: false},
	}}
	// "s-gone" was deleted after its creation log was written.
	logs := &mockRosterLogs{created: []string{"s-1", "s-gone"}}
	svc := NewRosterService(students, logs, &mockRosterAttendance{}, nil, time.Minute, zap.NewNop())

	roster, err := svc.StudentsManagedBy(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Empty(t, roster)
}

func TestRosterServiceCaches(t *testing.T) {
	students := &mockRosterStudents{students: map[string]models.Student{
		"s-1": {ID: "s-1", FirstName: "Ama", LastName: "Boateng", Sex: models.SexFemale, Grade: 1, Active: true},
	}}
	logs := &mockRosterLogs{created: []string{"s-1"}}
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewRosterService(students, logs, &mockRosterAttendance{}, cacheSvc, time.Minute, zap.NewNop())

	first, err := svc.StudentsManagedBy(context.Background(), "t-1")
	require.NoError(t, err)
	second, err := svc.StudentsManagedBy(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, students.calls)
}
