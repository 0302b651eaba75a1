package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/rollbook/rollbook-api/internal/middleware"
	"github.com/rollbook/rollbook-api/internal/models"
	"github.com/rollbook/rollbook-api/internal/service"
)

// Handlers bundles the HTTP handlers for route registration.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Students   *StudentHandler
	Attendance *AttendanceHandler
	Grades     *GradeHandler
	Logs       *LogHandler
	Exports    *ExportHandler
}

// RegisterRoutes attaches every API route under the prefix. Authentication
// and role checks live here so the route table reads as the access policy.
func RegisterRoutes(r *gin.Engine, prefix string, auth *service.AuthService, h Handlers) {
	api := r.Group(prefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login/teacher", h.Auth.LoginTeacher)
		authGroup.POST("/login/admin", h.Auth.LoginAdmin)
		authGroup.POST("/refresh", h.Auth.Refresh)

		secured := authGroup.Group("", middleware.JWT(auth))
		secured.POST("/logout", h.Auth.Logout)
		secured.GET("/me", h.Auth.Me)
	}

	secured := api.Group("", middleware.JWT(auth))

	students := secured.Group("/students")
	{
		students.GET("", middleware.RequireRoles(models.RoleAdmin), h.Students.List)
		students.GET("/mine", middleware.RequireRoles(models.RoleTeacher), h.Students.Mine)
		students.GET("/by-teacher/:id", middleware.RequireRoles(models.RoleAdmin), h.Students.ByTeacher)
		students.GET("/:id", h.Students.Get)
		students.POST("", h.Students.Create)
		students.POST("/bulk", h.Students.BulkCreate)
		students.POST("/reset", h.Students.Reset)
		students.PUT("/:id", h.Students.Update)
		students.POST("/:id/archive", h.Students.Archive)
		students.POST("/:id/restore", h.Students.Restore)
		students.DELETE("/:id", h.Students.Delete)
	}

	attendance := secured.Group("/attendance")
	{
		attendance.POST("", h.Attendance.Record)
		attendance.GET("/daily", middleware.RequireRoles(models.RoleTeacher), h.Attendance.Daily)
		attendance.GET("/by-date", h.Attendance.ByDate)
		attendance.GET("/students/:id", h.Attendance.Month)
	}

	grades := secured.Group("/grades", middleware.RequireRoles(models.RoleTeacher))
	{
		grades.GET("", h.Grades.List)
		grades.POST("", h.Grades.Create)
		grades.DELETE("/:id", h.Grades.Delete)
	}

	users := secured.Group("/users")
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), h.Users.List)
		users.GET("/:id", middleware.RBAC("ADMIN", "SELF"), h.Users.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), h.Users.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Update)
		users.PUT("/:id/password", middleware.RBAC("ADMIN", "SELF"), h.Users.ChangePassword)
		users.PUT("/:id/pin", middleware.RBAC("ADMIN", "SELF"), h.Users.ChangePIN)
		users.POST("/:id/archive", middleware.RequireRoles(models.RoleAdmin), h.Users.Archive)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Delete)
	}

	secured.GET("/logs", middleware.RequireRoles(models.RoleAdmin), h.Logs.List)
	secured.POST("/logs", h.Logs.Create)
	secured.GET("/exports/attendance", middleware.RequireRoles(models.RoleAdmin), h.Exports.Export)
}
