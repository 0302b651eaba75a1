package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollbook/rollbook-api/internal/models"
)

// LogRepository provides access to the append-only audit trail.
type LogRepository struct {
	db *sqlx.DB
}

// NewLogRepository constructs a LogRepository.
func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

const logColumns = "id, user_id, action, entity_type, entity_id, before, after, ip_address, user_agent, created_at"

// Create appends one entry. Entries are never updated or deleted.
func (r *LogRepository) Create(ctx context.Context, entry *models.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO log_entries (id, user_id, action, entity_type, entity_id, before, after, ip_address, user_agent, created_at)
        VALUES (:id, :user_id, :action, :entity_type, :entity_id, :before, :after, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create log entry: %w", err)
	}
	return nil
}

// List returns entries newest first with a total count.
func (r *LogRepository) List(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, int, error) {
	base := "FROM log_entries WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action LIKE $%d", len(args)+1))
		args = append(args, escapeLike(filter.Action)+"%")
	}
	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", logColumns, base, size, offset)
	var entries []models.LogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list log entries: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count log entries: %w", err)
	}
	return entries, total, nil
}

// StudentIDsCreatedBy extracts the student ids from "Student Added" entries
// authored by the user, reading the id out of the after snapshot. This is
// the creation-log signal of the association resolver; entries without an id
// in the snapshot carry no signal and are skipped.
func (r *LogRepository) StudentIDsCreatedBy(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT DISTINCT after->>'id' FROM log_entries
        WHERE user_id = $1 AND action LIKE $2 AND after->>'id' IS NOT NULL`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, models.LogActionPrefixStudentAdded+"%"); err != nil {
		return nil, fmt.Errorf("log student ids created by: %w", err)
	}
	return ids, nil
}

// escapeLike neutralizes LIKE metacharacters so a filter value only ever
// matches as a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
