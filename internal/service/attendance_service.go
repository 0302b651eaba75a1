package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	ListRange(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceRecord, error)
	ListByDate(ctx context.Context, studentIDs []string, date time.Time) ([]models.AttendanceRecord, error)
}

type attendanceStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type attendanceLogRepository interface {
	Create(ctx context.Context, entry *models.LogEntry) error
}

// RecordAttendanceRequest marks one student for one calendar day.
type RecordAttendanceRequest struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Date      string                  `json:"date" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Reason    *string                 `json:"reason,omitempty"`
}

// AttendanceService handles the attendance ledger use cases.
type AttendanceService struct {
	repo      attendanceRepository
	students  attendanceStudentRepository
	logs      attendanceLogRepository
	cache     *CacheService
	monthTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students attendanceStudentRepository, logs attendanceLogRepository, cache *CacheService, monthTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monthTTL <= 0 {
		monthTTL = 5 * time.Minute
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		logs:      logs,
		cache:     cache,
		monthTTL:  monthTTL,
		validator: validate,
		logger:    logger,
	}
}

// Record writes the attendance mark for (student, day), replacing any earlier
// mark for the same day including its reason. The student's display name and
// the actor are snapshotted onto the row; on a replay the original recorder
// is kept. Exactly one log entry is written per call.
func (s *AttendanceService) Record(ctx context.Context, actorID string, req RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	day, err := parseDay(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if req.Status == models.AttendanceAbsent || req.Status == models.AttendanceExcused {
		if req.Reason != nil && *req.Reason == "" {
			req.Reason = nil
		}
	} else {
		// Reasons only make sense on absences.
		req.Reason = nil
	}

	record := &models.AttendanceRecord{
		StudentID:        student.ID,
		Date:             day,
		Status:           req.Status,
		Reason:           req.Reason,
		StudentName:      student.FullName(),
		RecordedByUserID: actorID,
	}

	saved, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	// The label keys on status alone: any ABSENT mark, fresh or replacing,
	// reads as an absence in the audit trail.
	label := fmt.Sprintf("%s - %s", models.LogActionPrefixUpdated, student.FullName())
	if req.Status == models.AttendanceAbsent {
		label = fmt.Sprintf("%s - %s", models.LogActionPrefixMarkedAbsent, student.FullName())
	}
	s.appendLog(ctx, actorID, label, saved, student.Sex)

	s.invalidate(ctx, student.ID)

	return saved, nil
}

// Month returns a student's records for one calendar month ("YYYY-MM"),
// oldest first, served from cache when possible.
func (s *AttendanceService) Month(ctx context.Context, studentID, month string) ([]models.AttendanceRecord, error) {
	from, err := time.ParseInLocation("2006-01", month, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	key := fmt.Sprintf("month:%s:%s", studentID, month)
	var records []models.AttendanceRecord
	if hit, _ := s.cache.Get(ctx, key, &records); hit {
		return records, nil
	}

	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	records, err = s.repo.ListRange(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}

	if err := s.cache.Set(ctx, key, records, s.monthTTL); err != nil {
		s.logger.Warn("failed to cache month attendance", zap.Error(err), zap.String("key", key))
	}

	return records, nil
}

// ByDate returns the marks for a set of students on one day, keyed by
// student id. Students without a mark are simply absent from the map.
func (s *AttendanceService) ByDate(ctx context.Context, studentIDs []string, date string) (map[string]models.AttendanceRecord, error) {
	day, err := parseDay(date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	if len(studentIDs) == 0 {
		return map[string]models.AttendanceRecord{}, nil
	}

	records, err := s.repo.ListByDate(ctx, studentIDs, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	byStudent := make(map[string]models.AttendanceRecord, len(records))
	for _, r := range records {
		byStudent[r.StudentID] = r
	}
	return byStudent, nil
}

func (s *AttendanceService) appendLog(ctx context.Context, actorID, action string, record *models.AttendanceRecord, sex models.StudentSex) {
	entityType := models.EntityAttendance
	entry := &models.LogEntry{
		Action:     action,
		EntityType: &entityType,
		EntityID:   &record.ID,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	entry.After, _ = json.Marshal(map[string]interface{}{
		"student_id":   record.StudentID,
		"student_name": record.StudentName,
		"date":         record.Date.Format("2006-01-02"),
		"status":       record.Status,
		"reason":       record.Reason,
		"sex":          sex,
	})
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record attendance log entry", zap.Error(err))
	}
}

func (s *AttendanceService) invalidate(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("month:%s:*", studentID)); err != nil {
		s.logger.Warn("failed to invalidate month cache", zap.Error(err))
	}
	// New attendance may associate a teacher with a student for the first time.
	if err := s.cache.Invalidate(ctx, "roster:*"); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
}

// parseDay accepts a date-only string or a full RFC3339 timestamp and
// normalizes either to the start of its UTC day.
func parseDay(value string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", value, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return models.NormalizeDay(t), nil
}
