package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type mockExportRepo struct {
	rows []models.AttendanceExportRow
}

func (m *mockExportRepo) ExportRows(_ context.Context, status *models.AttendanceStatus, _, _ *time.Time) ([]models.AttendanceExportRow, error) {
	if status == nil {
		return m.rows, nil
	}
	var out []models.AttendanceExportRow
	for _, r := range m.rows {
		if r.Status == *status {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestExportServiceRenderCSV(t *testing.T) {
	reason := "sick"
	repo := &mockExportRepo{rows: []models.AttendanceExportRow{
		{StudentID: "s-1", StudentName: "Kwame Mensah", Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Status: models.AttendanceAbsent, Reason: &reason},
		{StudentID: "s-2", StudentName: "Abena Owusu", Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Status: models.AttendanceLate},
	}}
	svc := NewExportService(repo, 366, nil)

	result, err := svc.Render(context.Background(), ExportCSV, ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	body := string(result.Body)
	assert.Contains(t, body, "Student,Date,Status,Reason")
	assert.Contains(t, body, "Kwame Mensah,2026-03-09,ABSENT,sick")
	assert.Contains(t, body, "Abena Owusu,2026-03-09,LATE,")
}

func TestExportServiceRenderPDF(t *testing.T) {
	repo := &mockExportRepo{rows: []models.AttendanceExportRow{
		{StudentID: "s-1", StudentName: "Kwame Mensah", Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Status: models.AttendanceAbsent},
	}}
	svc := NewExportService(repo, 366, nil)

	result, err := svc.Render(context.Background(), ExportPDF, ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Body), "%PDF"))
}

func TestExportServiceRejectsOversizedRange(t *testing.T) {
	svc := NewExportService(&mockExportRepo{}, 30, nil)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 45)
	_, err := svc.Rows(context.Background(), ExportFilter{From: &from, To: &to})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// Inverted ranges are also rejected.
	_, err = svc.Rows(context.Background(), ExportFilter{From: &to, To: &from})
	require.Error(t, err)
}

func TestExportServiceUnknownFormat(t *testing.T) {
	svc := NewExportService(&mockExportRepo{}, 366, nil)

	_, err := svc.Render(context.Background(), ExportFormat("xlsx"), ExportFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
