package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook-api/internal/models"
)

func TestLogRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLogRepository(db)

	mock.ExpectExec("INSERT INTO log_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.LogEntry{Action: "Student Added - Kwame Mensah"}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepositoryListWithActionPrefix(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLogRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "entity_type", "entity_id", "before", "after", "ip_address", "user_agent", "created_at"}).
		AddRow("l-1", "t-1", "Student Added - Kwame Mensah", "Student", "s-1", nil, []byte(`{"id":"s-1"}`), "", "", time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND action LIKE $1 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("Student Added%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM log_entries WHERE 1=1 AND action LIKE $1")).
		WithArgs("Student Added%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.List(context.Background(), models.LogFilter{Action: "Student Added"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepositoryListEscapesWildcards(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLogRepository(db)

	// A filter containing LIKE metacharacters matches only as a literal.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND action LIKE $1 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs(`\%\_50\\%`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "entity_type", "entity_id", "before", "after", "ip_address", "user_agent", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM log_entries WHERE 1=1 AND action LIKE $1")).
		WithArgs(`\%\_50\\%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.LogFilter{Action: `%_50\`})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepositoryStudentIDsCreatedBy(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT after->>'id' FROM log_entries")).
		WithArgs("t-1", "Student Added%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1").AddRow("s-2"))

	ids, err := repo.StudentIDsCreatedBy(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
