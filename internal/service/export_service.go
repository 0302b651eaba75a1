package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
	"github.com/rollbook/rollbook-api/pkg/export"
)

type exportAttendanceRepository interface {
	ExportRows(ctx context.Context, status *models.AttendanceStatus, from, to *time.Time) ([]models.AttendanceExportRow, error)
}

// ExportFormat selects the encoding of an attendance export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportPDF  ExportFormat = "pdf"
)

// ExportFilter bounds an export query.
type ExportFilter struct {
	Status *models.AttendanceStatus
	From   *time.Time
	To     *time.Time
}

// ExportResult carries rendered bytes plus the response headers to serve
// them with.
type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte
}

// ExportService renders attendance records as JSON, CSV or PDF.
type ExportService struct {
	repo         exportAttendanceRepository
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	maxRangeDays int
	logger       *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(repo exportAttendanceRepository, maxRangeDays int, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRangeDays <= 0 {
		maxRangeDays = 366
	}
	return &ExportService{
		repo:         repo,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		maxRangeDays: maxRangeDays,
		logger:       logger,
	}
}

// Rows returns the raw export rows for JSON responses.
func (s *ExportService) Rows(ctx context.Context, filter ExportFilter) ([]models.AttendanceExportRow, error) {
	if err := s.checkRange(filter); err != nil {
		return nil, err
	}
	rows, err := s.repo.ExportRows(ctx, filter.Status, filter.From, filter.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export rows")
	}
	if rows == nil {
		rows = []models.AttendanceExportRow{}
	}
	return rows, nil
}

// Render produces the export in the requested format.
func (s *ExportService) Render(ctx context.Context, format ExportFormat, filter ExportFilter) (*ExportResult, error) {
	rows, err := s.Rows(ctx, filter)
	if err != nil {
		return nil, err
	}

	stamp := time.Now().UTC().Format("2006-01-02")
	switch format {
	case ExportCSV:
		body, err := s.csv.Render(buildTable(rows))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{ContentType: "text/csv", Filename: "attendance-" + stamp + ".csv", Body: body}, nil
	case ExportPDF:
		body, err := s.pdf.Render(buildTable(rows), "Attendance Report")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{ContentType: "application/pdf", Filename: "attendance-" + stamp + ".pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *ExportService) checkRange(filter ExportFilter) error {
	if filter.From != nil && filter.To != nil {
		if filter.To.Before(*filter.From) {
			return appErrors.Clone(appErrors.ErrValidation, "date range is inverted")
		}
		if filter.To.Sub(*filter.From) > time.Duration(s.maxRangeDays)*24*time.Hour {
			return appErrors.Clone(appErrors.ErrValidation, "date range exceeds the export limit")
		}
	}
	return nil
}

func buildTable(rows []models.AttendanceExportRow) export.Table {
	t := export.Table{Columns: []string{"Student", "Date", "Status", "Reason"}}
	t.Rows = make([][]string, 0, len(rows))
	for _, row := range rows {
		reason := ""
		if row.Reason != nil {
			reason = *row.Reason
		}
		t.Rows = append(t.Rows, []string{
			row.StudentName,
			row.Date.Format("2006-01-02"),
			string(row.Status),
			reason,
		})
	}
	return t
}
