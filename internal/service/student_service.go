package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	BulkCreate(ctx context.Context, students []models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	DeleteByGrade(ctx context.Context, grade int) (int, error)
}

type studentLogRepository interface {
	Create(ctx context.Context, entry *models.LogEntry) error
}

// StudentPayload is one student in a create or bulk-import request.
type StudentPayload struct {
	FirstName string            `json:"first_name" validate:"required"`
	LastName  string            `json:"last_name" validate:"required"`
	Sex       models.StudentSex `json:"sex" validate:"required,oneof=MALE FEMALE"`
	Grade     int               `json:"grade" validate:"required,min=1,max=13"`
}

// UpdateStudentRequest modifies an existing student.
type UpdateStudentRequest struct {
	FirstName string            `json:"first_name" validate:"required"`
	LastName  string            `json:"last_name" validate:"required"`
	Sex       models.StudentSex `json:"sex" validate:"required,oneof=MALE FEMALE"`
	Grade     int               `json:"grade" validate:"required,min=1,max=13"`
}

// BulkCreateStudentsRequest imports several students in one transaction.
type BulkCreateStudentsRequest struct {
	Students []StudentPayload `json:"students" validate:"required,min=1,dive"`
}

// ResetStudentsRequest wipes every student in one grade.
type ResetStudentsRequest struct {
	Grade int `json:"grade" validate:"required,min=1,max=13"`
}

// StudentService handles the student roster use cases.
type StudentService struct {
	repo      studentRepository
	logs      studentLogRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, logs studentLogRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logs: logs, cache: cache, validator: validate, logger: logger}
}

// List returns students matching the filter with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student and records who added them. The creation log
// entry doubles as an association signal between the actor and the student,
// so its After snapshot must carry the new student's id.
func (s *StudentService) Create(ctx context.Context, actorID string, req StudentPayload) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Sex:       req.Sex,
		Grade:     req.Grade,
		Active:    true,
	}
	if actorID != "" {
		student.CreatedByUserID = &actorID
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logCreation(ctx, actorID, student)
	s.invalidateRosters(ctx)

	return student, nil
}

// BulkCreate imports a batch of students atomically and writes one creation
// log entry per student, same as single creates.
func (s *StudentService) BulkCreate(ctx context.Context, actorID string, req BulkCreateStudentsRequest) ([]models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk import payload")
	}

	students := make([]models.Student, len(req.Students))
	for i, p := range req.Students {
		students[i] = models.Student{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Sex:       p.Sex,
			Grade:     p.Grade,
			Active:    true,
		}
		if actorID != "" {
			students[i].CreatedByUserID = &actorID
		}
	}

	if err := s.repo.BulkCreate(ctx, students); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import students")
	}

	for i := range students {
		s.logCreation(ctx, actorID, &students[i])
	}
	s.invalidateRosters(ctx)

	return students, nil
}

// Update modifies a student's details.
func (s *StudentService) Update(ctx context.Context, actorID, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := map[string]interface{}{
		"first_name": student.FirstName,
		"last_name":  student.LastName,
		"sex":        student.Sex,
		"grade":      student.Grade,
	}

	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.Sex = req.Sex
	student.Grade = req.Grade

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.appendLog(ctx, actorID, "Student Updated - "+student.FullName(), student.ID, before, map[string]interface{}{
		"id":         student.ID,
		"first_name": student.FirstName,
		"last_name":  student.LastName,
		"sex":        student.Sex,
		"grade":      student.Grade,
	})
	s.invalidateRosters(ctx)

	return student, nil
}

// SetActive archives or restores a student. Archived students keep their
// attendance history and drop out of default listings.
func (s *StudentService) SetActive(ctx context.Context, actorID, id string, active bool) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if student.Active == active {
		return student, nil
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change student status")
	}

	label := "Student Archived - " + student.FullName()
	if active {
		label = "Student Restored - " + student.FullName()
	}
	s.appendLog(ctx, actorID, label, id, map[string]interface{}{"active": student.Active}, map[string]interface{}{"active": active})
	s.invalidateRosters(ctx)

	student.Active = active
	return student, nil
}

// Delete removes a student and all their attendance records. Log entries
// referencing the student stay behind; their snapshots keep the history
// readable after the row is gone.
func (s *StudentService) Delete(ctx context.Context, actorID, id string) error {
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}

	s.appendLog(ctx, actorID, models.LogActionStudentDeleted, id, map[string]interface{}{
		"id":         student.ID,
		"first_name": student.FirstName,
		"last_name":  student.LastName,
		"sex":        student.Sex,
		"grade":      student.Grade,
	}, nil)
	s.invalidateRosters(ctx)

	return nil
}

// ResetGrade deletes every student in the grade, cascading their attendance,
// and returns how many were removed. One log entry summarizes the wipe.
func (s *StudentService) ResetGrade(ctx context.Context, actorID string, req ResetStudentsRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}

	deleted, err := s.repo.DeleteByGrade(ctx, req.Grade)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset students")
	}

	entityType := models.EntityStudent
	entry := &models.LogEntry{
		Action:     fmt.Sprintf("Students Reset - Grade %d", req.Grade),
		EntityType: &entityType,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	entry.After, _ = json.Marshal(map[string]interface{}{
		"grade":        req.Grade,
		"deletedCount": deleted,
	})
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record student log entry", zap.Error(err))
	}
	s.invalidateRosters(ctx)

	return deleted, nil
}

func (s *StudentService) logCreation(ctx context.Context, actorID string, student *models.Student) {
	action := fmt.Sprintf("%s - %s", models.LogActionPrefixStudentAdded, student.FullName())
	s.appendLog(ctx, actorID, action, student.ID, nil, map[string]interface{}{
		"id":         student.ID,
		"first_name": student.FirstName,
		"last_name":  student.LastName,
		"sex":        student.Sex,
		"grade":      student.Grade,
	})
}

func (s *StudentService) appendLog(ctx context.Context, actorID, action, studentID string, before, after map[string]interface{}) {
	entityType := models.EntityStudent
	entry := &models.LogEntry{
		Action:     action,
		EntityType: &entityType,
		EntityID:   &studentID,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if before != nil {
		entry.Before, _ = json.Marshal(before)
	}
	if after != nil {
		entry.After, _ = json.Marshal(after)
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record student log entry", zap.Error(err))
	}
}

func (s *StudentService) invalidateRosters(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "roster:*"); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
}
