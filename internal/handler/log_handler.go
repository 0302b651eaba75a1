package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rollbook/rollbook-api/internal/models"
	"github.com/rollbook/rollbook-api/internal/service"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
	"github.com/rollbook/rollbook-api/pkg/response"
)

// LogHandler exposes the audit trail.
type LogHandler struct {
	logs *service.LogService
}

// NewLogHandler constructs the log handler.
func NewLogHandler(logs *service.LogService) *LogHandler {
	return &LogHandler{logs: logs}
}

// List godoc
// @Summary List audit log entries
// @Tags Logs
// @Produce json
// @Param user_id query string false "Filter by actor"
// @Param action query string false "Action prefix filter"
// @Param entity_type query string false "Filter by entity type"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /logs [get]
func (h *LogHandler) List(c *gin.Context) {
	filter := models.LogFilter{
		UserID:     c.Query("user_id"),
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 50),
	}
	entries, pagination, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Create godoc
// @Summary Append an audit log entry
// @Tags Logs
// @Accept json
// @Produce json
// @Param payload body service.AppendLogRequest true "Log entry"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /logs [post]
func (h *LogHandler) Create(c *gin.Context) {
	var req service.AppendLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.logs.Record(c.Request.Context(), actorID(c), c.ClientIP(), c.Request.UserAgent(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
