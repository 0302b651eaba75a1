package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type mockUserRepo struct {
	users   []*models.User
	revoked []string
	deleted []string
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			found := *u
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, len(m.users))
	for i, u := range m.users {
		out[i] = *u
	}
	return out, len(out), nil
}

func (m *mockUserRepo) ListByRole(_ context.Context, role models.UserRole, activeOnly bool) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.Role != role {
			continue
		}
		if activeOnly && !u.Active {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	stored := *user
	m.users = append(m.users, &stored)
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.ID == user.ID {
			*u = *user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) UpdateSecret(_ context.Context, id, secretHash string, _ time.Time) error {
	for _, u := range m.users {
		if u.ID == id {
			u.SecretHash = secretHash
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) SetActive(_ context.Context, id string, active bool) error {
	for _, u := range m.users {
		if u.ID == id {
			u.Active = active
		}
	}
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	kept := m.users[:0]
	for _, u := range m.users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	m.users = kept
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func teacherWithPIN(t *testing.T, id, name, pin string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: id, Name: name, Role: models.RoleTeacher, Active: true, SecretHash: string(hash)}
}

func TestUserServiceCreateTeacher(t *testing.T) {
	repo := &mockUserRepo{}
	logs := &mockLogRepo{}
	svc := NewUserService(repo, logs, nil, nil)

	user, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Name: "Ama", Role: models.RoleTeacher, PIN: "4321",
	})
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.SecretHash), []byte("4321")))

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.LogActionUserCreate, logs.entries[0].Action)
}

func TestUserServiceCreateRejectsWrongSecretForRole(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, &mockLogRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Name: "Ama", Role: models.RoleTeacher, Password: "longpassword",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Name: "Head", Role: models.RoleAdmin, PIN: "1234", Password: "longpassword",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateTeacherRejectsDuplicatePIN(t *testing.T) {
	repo := &mockUserRepo{users: []*models.User{teacherWithPIN(t, "t-1", "Ama", "1234")}}
	svc := NewUserService(repo, &mockLogRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Name: "Kofi", Role: models.RoleTeacher, PIN: "1234",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// A different PIN goes through.
	_, err = svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Name: "Kofi", Role: models.RoleTeacher, PIN: "9876",
	})
	require.NoError(t, err)
}

func TestUserServiceChangePIN(t *testing.T) {
	repo := &mockUserRepo{users: []*models.User{
		teacherWithPIN(t, "t-1", "Ama", "1234"),
		teacherWithPIN(t, "t-2", "Kofi", "5678"),
	}}
	logs := &mockLogRepo{}
	svc := NewUserService(repo, logs, nil, nil)

	// Colliding with another teacher's PIN is rejected.
	err := svc.ChangePIN(context.Background(), "t-1", "t-1", ChangePINRequest{NewPIN: "5678"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// Re-submitting your own current PIN is not a collision.
	require.NoError(t, svc.ChangePIN(context.Background(), "t-1", "t-1", ChangePINRequest{NewPIN: "1234"}))

	require.NoError(t, svc.ChangePIN(context.Background(), "t-1", "t-1", ChangePINRequest{NewPIN: "2468"}))
	assert.Contains(t, repo.revoked, "t-1")
}

func TestUserServiceChangePasswordRequiresAdminTarget(t *testing.T) {
	repo := &mockUserRepo{users: []*models.User{teacherWithPIN(t, "t-1", "Ama", "1234")}}
	svc := NewUserService(repo, &mockLogRepo{}, nil, nil)

	err := svc.ChangePassword(context.Background(), "admin-1", "t-1", ChangePasswordRequest{NewPassword: "longpassword"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceArchiveRevokesSessions(t *testing.T) {
	repo := &mockUserRepo{users: []*models.User{teacherWithPIN(t, "t-1", "Ama", "1234")}}
	logs := &mockLogRepo{}
	svc := NewUserService(repo, logs, nil, nil)

	require.NoError(t, svc.Archive(context.Background(), "admin-1", "t-1"))
	assert.False(t, repo.users[0].Active)
	assert.Contains(t, repo.revoked, "t-1")
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.LogActionUserArchive, logs.entries[0].Action)
}

func TestUserServiceDeleteKeepsAuditSnapshot(t *testing.T) {
	repo := &mockUserRepo{users: []*models.User{teacherWithPIN(t, "t-1", "Ama", "1234")}}
	logs := &mockLogRepo{}
	svc := NewUserService(repo, logs, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "admin-1", "t-1"))
	assert.Equal(t, []string{"t-1"}, repo.deleted)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.LogActionUserDelete, logs.entries[0].Action)
	assert.NotEmpty(t, logs.entries[0].Before)
}
