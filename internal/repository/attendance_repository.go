package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollbook/rollbook-api/internal/models"
)

// AttendanceRepository handles persistence for the attendance ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = "id, student_id, date, status, reason, student_name, recorded_by_user_id, created_at, updated_at"

// Upsert inserts or updates the record for (student_id, date) as one
// conditional write. Two concurrent writers for the same key race at the
// uniqueness constraint and the database decides the final state; neither
// caller sees an error. Snapshot fields are refreshed on update, created_at
// and the original recorder are kept.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO attendance_records (id, student_id, date, status, reason, student_name, recorded_by_user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id, date)
DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason, student_name = EXCLUDED.student_name, updated_at = EXCLUDED.updated_at
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.StudentID, record.Date, record.Status, record.Reason,
		record.StudentName, record.RecordedByUserID, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// ListRange returns a student's records within [from, to], date ascending.
// The monthly calendar fetch is a single whole-month range.
func (r *AttendanceRepository) ListRange(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE student_id = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC`, attendanceColumns)
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	return rows, nil
}

// ListByDate returns the records for a set of students on one day.
func (r *AttendanceRepository) ListByDate(ctx context.Context, studentIDs []string, date time.Time) ([]models.AttendanceRecord, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM attendance_records WHERE date = ? AND student_id IN (?)", attendanceColumns), date, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build attendance by date: %w", err)
	}
	query = r.db.Rebind(query)
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance by date: %w", err)
	}
	return rows, nil
}

// ExportRows returns ledger rows reshaped for spreadsheet export, optionally
// constrained by status and date range.
func (r *AttendanceRepository) ExportRows(ctx context.Context, status *models.AttendanceStatus, from, to *time.Time) ([]models.AttendanceExportRow, error) {
	where := []string{"1=1"}
	var args []interface{}
	if status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *status)
	}
	if from != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT student_id, student_name, date, status, reason FROM attendance_records WHERE %s ORDER BY date ASC, student_name ASC`, strings.Join(where, " AND "))
	var rows []models.AttendanceExportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("export attendance: %w", err)
	}
	return rows, nil
}

// StudentIDsByRecorder returns the distinct students a user has recorded
// attendance for. This is one of the two association resolver signals.
func (r *AttendanceRepository) StudentIDsByRecorder(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT student_id FROM attendance_records WHERE recorded_by_user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("attendance student ids by recorder: %w", err)
	}
	return ids, nil
}
