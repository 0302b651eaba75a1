package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type gradeRepository interface {
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.Grade, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindMatch(ctx context.Context, teacherID, name string, number int, active bool) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Revive(ctx context.Context, id, name string, number int) (*models.Grade, error)
	Deactivate(ctx context.Context, id string) error
	CountActiveByTeacher(ctx context.Context, teacherID string) (int, error)
}

type gradeStudentRepository interface {
	CountByGrade(ctx context.Context, grade int) (int, error)
}

type gradeLogRepository interface {
	Create(ctx context.Context, entry *models.LogEntry) error
}

// CreateGradeRequest adds a grade to a teacher's set.
type CreateGradeRequest struct {
	Name   string `json:"name" validate:"required"`
	Number int    `json:"number" validate:"required,min=1,max=13"`
}

// GradeService manages each teacher's set of grade labels.
type GradeService struct {
	repo      gradeRepository
	students  gradeStudentRepository
	logs      gradeLogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs the grade service.
func NewGradeService(repo gradeRepository, students gradeStudentRepository, logs gradeLogRepository, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, students: students, logs: logs, validator: validate, logger: logger}
}

// List returns the teacher's active grades, number ascending.
func (s *GradeService) List(ctx context.Context, teacherID string) ([]models.Grade, error) {
	grades, err := s.repo.ListActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	if grades == nil {
		grades = []models.Grade{}
	}
	return grades, nil
}

// Create adds a grade. A collision with an active grade's name or number is
// a conflict; a collision with a soft-deleted grade revives that row under
// the submitted name and number instead of inserting a duplicate.
func (s *GradeService) Create(ctx context.Context, teacherID string, req CreateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	if _, err := s.repo.FindMatch(ctx, teacherID, req.Name, req.Number, true); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a grade with this name or number already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade uniqueness")
	}

	if dormant, err := s.repo.FindMatch(ctx, teacherID, req.Name, req.Number, false); err == nil {
		revived, err := s.repo.Revive(ctx, dormant.ID, req.Name, req.Number)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revive grade")
		}
		s.appendLog(ctx, teacherID, "GRADE_RESTORE", revived)
		return revived, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check revival candidates")
	}

	grade := &models.Grade{
		Name:      req.Name,
		Number:    req.Number,
		TeacherID: teacherID,
		Active:    true,
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}
	s.appendLog(ctx, teacherID, "GRADE_CREATE", grade)
	return grade, nil
}

// Delete soft-deletes a grade. It refuses when active students still sit in
// that grade number, and refuses to remove the teacher's last active grade.
func (s *GradeService) Delete(ctx context.Context, teacherID, id string) error {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if grade.TeacherID != teacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "grade belongs to another teacher")
	}
	if !grade.Active {
		return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
	}

	inUse, err := s.students.CountByGrade(ctx, grade.Number)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade usage")
	}
	if inUse > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "students are still assigned to this grade")
	}

	remaining, err := s.repo.CountActiveByTeacher(ctx, teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count grades")
	}
	if remaining <= 1 {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete the last remaining grade")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	s.appendLog(ctx, teacherID, "GRADE_DELETE", grade)
	return nil
}

func (s *GradeService) appendLog(ctx context.Context, actorID, action string, grade *models.Grade) {
	entityType := models.EntityGrade
	entry := &models.LogEntry{
		Action:     action,
		EntityType: &entityType,
		EntityID:   &grade.ID,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	entry.After, _ = json.Marshal(map[string]interface{}{
		"id": grade.ID, "name": grade.Name, "number": grade.Number,
	})
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record grade log entry", zap.Error(err))
	}
}
