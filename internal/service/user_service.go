package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListByRole(ctx context.Context, role models.UserRole, activeOnly bool) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateSecret(ctx context.Context, id, secretHash string, updatedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type userLogRepository interface {
	Create(ctx context.Context, entry *models.LogEntry) error
}

// CreateUserRequest carries the account payload. The secret field that must
// be set follows the role: password for ADMIN, pin for TEACHER.
type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required"`
	Email    string          `json:"email" validate:"omitempty,email"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER"`
	Password string          `json:"password" validate:"omitempty,min=6"`
	PIN      string          `json:"pin" validate:"omitempty,min=4,numeric"`
}

// UpdateUserRequest updates mutable account fields.
type UpdateUserRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

// ChangePasswordRequest replaces an admin's password.
type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ChangePINRequest replaces a teacher's PIN.
type ChangePINRequest struct {
	NewPIN string `json:"new_pin" validate:"required,min=4,numeric"`
}

// UserService handles account lifecycle use cases.
type UserService struct {
	repo      userRepository
	logs      userLogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userRepository, logs userLogRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logs: logs, validator: validate, logger: logger}
}

// List returns users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a new account. Teachers get a PIN, admins a password;
// the wrong secret for a role is a validation failure. A teacher PIN that
// collides with another active teacher's PIN is rejected so that PIN login
// can never be ambiguous.
func (s *UserService) Create(ctx context.Context, actorID string, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	var secret string
	switch req.Role {
	case models.RoleTeacher:
		if req.PIN == "" || req.Password != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teachers authenticate with a pin only")
		}
		secret = req.PIN
		if err := s.ensurePINUnique(ctx, req.PIN, ""); err != nil {
			return nil, err
		}
	case models.RoleAdmin:
		if req.Password == "" || req.PIN != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "admins authenticate with a password only")
		}
		secret = req.Password
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash secret")
	}

	user := &models.User{
		Name:       req.Name,
		Role:       req.Role,
		SecretHash: string(hash),
		Active:     true,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.appendLog(ctx, actorID, models.LogActionUserCreate, user.ID, nil, map[string]interface{}{
		"id": user.ID, "name": user.Name, "role": user.Role,
	})

	return user, nil
}

// Update modifies name and email.
func (s *UserService) Update(ctx context.Context, actorID, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := map[string]interface{}{"name": user.Name, "email": user.Email}

	user.Name = req.Name
	if req.Email != "" {
		user.Email = &req.Email
	} else {
		user.Email = nil
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.appendLog(ctx, actorID, models.LogActionUserUpdate, user.ID, before, map[string]interface{}{
		"name": user.Name, "email": user.Email,
	})

	return user, nil
}

// ChangePassword replaces an admin's password and revokes their sessions.
func (s *UserService) ChangePassword(ctx context.Context, actorID, id string, req ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "only admin accounts use a password")
	}
	return s.replaceSecret(ctx, actorID, user, req.NewPassword)
}

// ChangePIN replaces a teacher's PIN and revokes their sessions.
func (s *UserService) ChangePIN(ctx context.Context, actorID, id string, req ChangePINRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pin payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrValidation, "only teacher accounts use a pin")
	}
	if err := s.ensurePINUnique(ctx, req.NewPIN, user.ID); err != nil {
		return err
	}
	return s.replaceSecret(ctx, actorID, user, req.NewPIN)
}

func (s *UserService) replaceSecret(ctx context.Context, actorID string, user *models.User, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash secret")
	}
	if err := s.repo.UpdateSecret(ctx, user.ID, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update secret")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after secret change", zap.Error(err))
	}
	s.appendLog(ctx, actorID, models.LogActionSecretChange, user.ID, nil, map[string]interface{}{
		"id": user.ID, "credential": user.CredentialKind(),
	})
	return nil
}

// Archive flags an account inactive and revokes its sessions.
func (s *UserService) Archive(ctx context.Context, actorID, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions on archive", zap.Error(err))
	}
	s.appendLog(ctx, actorID, models.LogActionUserArchive, id, map[string]interface{}{"active": user.Active}, map[string]interface{}{"active": false})
	return nil
}

// Delete removes an account permanently.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.appendLog(ctx, actorID, models.LogActionUserDelete, id, map[string]interface{}{
		"id": user.ID, "name": user.Name, "role": user.Role,
	}, nil)
	return nil
}

// ensurePINUnique compares the candidate PIN against every other active
// teacher's hash. Hashes are salted, so the only way to detect a collision
// is the same comparison login performs.
func (s *UserService) ensurePINUnique(ctx context.Context, pin, excludeID string) error {
	teachers, err := s.repo.ListByRole(ctx, models.RoleTeacher, true)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pin uniqueness")
	}
	for i := range teachers {
		if teachers[i].ID == excludeID || teachers[i].SecretHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(teachers[i].SecretHash), []byte(pin)) == nil {
			return appErrors.Clone(appErrors.ErrConflict, "pin already in use by another teacher")
		}
	}
	return nil
}

func (s *UserService) appendLog(ctx context.Context, actorID, action, entityID string, before, after map[string]interface{}) {
	entityType := models.EntityUser
	entry := &models.LogEntry{
		Action:     action,
		EntityType: &entityType,
		EntityID:   &entityID,
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
		s.logger.Warn("failed to record user log entry", zap.Error(err))
	}
}
