package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rollbook/rollbook-api/internal/service"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
	"github.com/rollbook/rollbook-api/pkg/response"
)

// AttendanceHandler exposes the attendance ledger endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	roster     *service.RosterService
}

// NewAttendanceHandler constructs the attendance handler.
func NewAttendanceHandler(attendance *service.AttendanceService, roster *service.RosterService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, roster: roster}
}

// Record godoc
// @Summary Mark a student for a day
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Record(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Month godoc
// @Summary One student's records for a calendar month
// @Tags Attendance
// @Produce json
// @Param id path string true "Student id"
// @Param month query string true "Month as YYYY-MM"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/students/{id} [get]
func (h *AttendanceHandler) Month(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "month query parameter is required"))
		return
	}
	records, err := h.attendance.Month(c.Request.Context(), c.Param("id"), month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ByDate godoc
// @Summary Records for a set of students on one day
// @Tags Attendance
// @Produce json
// @Param date query string true "Date as YYYY-MM-DD"
// @Param student_ids query string true "Comma-separated student ids"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/by-date [get]
func (h *AttendanceHandler) ByDate(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	var ids []string
	for _, id := range strings.Split(c.Query("student_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	marks, err := h.attendance.ByDate(c.Request.Context(), ids, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Daily godoc
// @Summary The current teacher's roster with marks for one day
// @Tags Attendance
// @Produce json
// @Param date query string true "Date as YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/daily [get]
func (h *AttendanceHandler) Daily(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}

	students, err := h.roster.StudentsManagedBy(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	marks, err := h.attendance.ByDate(c.Request.Context(), ids, date)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"students": students, "records": marks}, nil)
}
