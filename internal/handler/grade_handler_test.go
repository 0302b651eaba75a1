package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/rollbook/rollbook-api/internal/middleware"
	"github.com/rollbook/rollbook-api/internal/models"
	"github.com/rollbook/rollbook-api/internal/service"
)

type gradeRepoStub struct {
	grades []models.Grade
}

func (s *gradeRepoStub) ListActiveByTeacher(_ context.Context, teacherID string) ([]models.Grade, error) {
	var out []models.Grade
	for _, g := range s.grades {
		if g.TeacherID == teacherID && g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *gradeRepoStub) FindByID(_ context.Context, id string) (*models.Grade, error) {
	for i := range s.grades {
		if s.grades[i].ID == id {
			return &s.grades[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *gradeRepoStub) FindMatch(_ context.Context, teacherID, name string, number int, active bool) (*models.Grade, error) {
	for i := range s.grades {
		g := s.grades[i]
		if g.TeacherID == teacherID && g.Active == active && (g.Name == name || g.Number == number) {
			return &g, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *gradeRepoStub) Create(_ context.Context, grade *models.Grade) error {
	grade.ID = "g-new"
	s.grades = append(s.grades, *grade)
	return nil
}

func (s *gradeRepoStub) Revive(_ context.Context, id, name string, number int) (*models.Grade, error) {
	for i := range s.grades {
		if s.grades[i].ID == id {
			s.grades[i].Name = name
			s.grades[i].Number = number
			s.grades[i].Active = true
			return &s.grades[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *gradeRepoStub) Deactivate(_ context.Context, id string) error {
	for i := range s.grades {
		if s.grades[i].ID == id {
			s.grades[i].Active = false
		}
	}
	return nil
}

func (s *gradeRepoStub) CountActiveByTeacher(_ context.Context, teacherID string) (int, error) {
	count := 0
	for _, g := range s.grades {
		if g.TeacherID == teacherID && g.Active {
			count++
		}
	}
	return count, nil
}

type gradeStudentStub struct{ counts map[int]int }

func (s *gradeStudentStub) CountByGrade(_ context.Context, grade int) (int, error) {
	return s.counts[grade], nil
}

type logRepoStub struct{}

func (logRepoStub) Create(_ context.Context, _ *models.LogEntry) error { return nil }

func buildGradeRouter(repo *gradeRepoStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: "t-1",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	svc := service.NewGradeService(repo, &gradeStudentStub{counts: map[int]int{}}, logRepoStub{}, nil, nil)
	h := NewGradeHandler(svc)

	secured := router.Group("")
	secured.GET("/grades", internalmiddleware.RequireRoles(models.RoleTeacher), h.List)
	secured.POST("/grades", internalmiddleware.RequireRoles(models.RoleTeacher), h.Create)
	secured.DELETE("/grades/:id", internalmiddleware.RequireRoles(models.RoleTeacher), h.Delete)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGradeRoutesRequireTeacherRole(t *testing.T) {
	router := buildGradeRouter(&gradeRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/grades", nil)
	resp := performRequest(router, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/grades", nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp = performRequest(router, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestGradeRoutesRejectMalformedClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, "not-claims")
		c.Next()
	})
	router.GET("/grades", internalmiddleware.RequireRoles(models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	resp := performRequest(router, httptest.NewRequest(http.MethodGet, "/grades", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestGradeRoutesCreateAndConflict(t *testing.T) {
	router := buildGradeRouter(&gradeRepoStub{})

	body := bytes.NewBufferString(`{"name":"Primary 1","number":1}`)
	req := httptest.NewRequest(http.MethodPost, "/grades", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleTeacher))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	var envelope struct {
		Data models.Grade `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "Primary 1", envelope.Data.Name)
	assert.Equal(t, "t-1", envelope.Data.TeacherID)

	// Same number again is a conflict.
	body = bytes.NewBufferString(`{"name":"Class One","number":1}`)
	req = httptest.NewRequest(http.MethodPost, "/grades", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleTeacher))
	resp = performRequest(router, req)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestGradeRoutesDeleteLastGrade(t *testing.T) {
	repo := &gradeRepoStub{grades: []models.Grade{
		{ID: "g-1", Name: "Primary 1", Number: 1, TeacherID: "t-1", Active: true},
	}}
	router := buildGradeRouter(repo)

	req := httptest.NewRequest(http.MethodDelete, "/grades/g-1", nil)
	req.Header.Set("X-Test-Role", string(models.RoleTeacher))
	resp := performRequest(router, req)
	assert.Equal(t, http.StatusConflict, resp.Code)
}
