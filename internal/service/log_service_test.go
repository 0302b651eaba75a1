package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type mockTrailRepo struct {
	entries []*models.LogEntry
	err     error
}

func (m *mockTrailRepo) Create(_ context.Context, entry *models.LogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockTrailRepo) List(_ context.Context, filter models.LogFilter) ([]models.LogEntry, int, error) {
	out := make([]models.LogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if filter.UserID != "" && (e.UserID == nil || *e.UserID != filter.UserID) {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func TestLogRecordAttributesEntry(t *testing.T) {
	repo := &mockTrailRepo{}
	svc := NewLogService(repo, nil)

	entityType := "Student"
	entry, err := svc.Record(context.Background(), "u-1", "10.0.0.1", "test-agent", AppendLogRequest{
		Action:     "Student Viewed - Kwame Mensah",
		EntityType: &entityType,
		After:      json.RawMessage(`{"id":"s-1"}`),
	})
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.Equal(t, "test-agent", entry.UserAgent)
}

func TestLogRecordRequiresAction(t *testing.T) {
	repo := &mockTrailRepo{}
	svc := NewLogService(repo, nil)

	_, err := svc.Record(context.Background(), "u-1", "", "", AppendLogRequest{Action: "  "})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.entries)
}

func TestLogAppendSwallowsFailures(t *testing.T) {
	repo := &mockTrailRepo{err: errors.New("connection reset")}
	svc := NewLogService(repo, nil)

	// Must not panic or surface the error.
	svc.Append(context.Background(), &models.LogEntry{Action: models.LogActionLogin})
	assert.Empty(t, repo.entries)
}

func TestLogListFiltersByUser(t *testing.T) {
	repo := &mockTrailRepo{}
	svc := NewLogService(repo, nil)

	for _, uid := range []string{"u-1", "u-2", "u-1"} {
		id := uid
		repo.entries = append(repo.entries, &models.LogEntry{UserID: &id, Action: models.LogActionLogin})
	}

	entries, pagination, err := svc.List(context.Background(), models.LogFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	require.NotNil(t, pagination)
	assert.Equal(t, 2, pagination.TotalCount)
}
