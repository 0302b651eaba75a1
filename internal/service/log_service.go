package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type logRepository interface {
	Create(ctx context.Context, entry *models.LogEntry) error
	List(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, int, error)
}

// AppendLogRequest is a client-originated audit entry, such as a UI event
// the server itself would not otherwise record.
type AppendLogRequest struct {
	Action     string          `json:"action"`
	EntityType *string         `json:"entity_type"`
	EntityID   *string         `json:"entity_id"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
}

// LogService exposes the append-only audit trail.
type LogService struct {
	repo   logRepository
	logger *zap.Logger
}

// NewLogService constructs the log service.
func NewLogService(repo logRepository, logger *zap.Logger) *LogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogService{repo: repo, logger: logger}
}

// List returns log entries newest first with pagination metadata.
func (s *LogService) List(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Record appends a client-submitted entry attributed to the calling user.
// Unlike Append, failures surface to the caller since the append is the
// whole request.
func (s *LogService) Record(ctx context.Context, userID, ip, userAgent string, req AppendLogRequest) (*models.LogEntry, error) {
	if strings.TrimSpace(req.Action) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action is required")
	}
	entry := &models.LogEntry{
		UserID:     &userID,
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Before:     req.Before,
		After:      req.After,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append log entry")
	}
	return entry, nil
}

// Append records one entry. Failures are logged and swallowed: the audit
// trail never blocks the operation it describes.
func (s *LogService) Append(ctx context.Context, entry *models.LogEntry) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to append log entry", zap.Error(err))
	}
}
