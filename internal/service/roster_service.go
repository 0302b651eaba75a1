package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rollbook/rollbook-api/internal/models"
	appErrors "github.com/rollbook/rollbook-api/pkg/errors"
)

type rosterStudentRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

type rosterLogRepository interface {
	StudentIDsCreatedBy(ctx context.Context, userID string) ([]string, error)
}

type rosterAttendanceRepository interface {
	StudentIDsByRecorder(ctx context.Context, userID string) ([]string, error)
}

// RosterService resolves which students a teacher manages. There is no
// explicit assignment table; the association is derived from two signals:
// students the teacher created, and students the teacher has ever marked
// attendance for.
type RosterService struct {
	students   rosterStudentRepository
	logs       rosterLogRepository
	attendance rosterAttendanceRepository
	cache      *CacheService
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRosterService constructs the roster resolver.
func NewRosterService(students rosterStudentRepository, logs rosterLogRepository, attendance rosterAttendanceRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RosterService{
		students:   students,
		logs:       logs,
		attendance: attendance,
		cache:      cache,
		ttl:        ttl,
		logger:     logger,
	}
}

// StudentsManagedBy returns the teacher's active students, grade ascending,
// boys before girls within a grade, then alphabetical.
func (s *RosterService) StudentsManagedBy(ctx context.Context, teacherID string) ([]models.Student, error) {
	key := "roster:" + teacherID
	var cached []models.Student
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	createdIDs, err := s.logs.StudentIDsCreatedBy(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve created students")
	}
	recordedIDs, err := s.attendance.StudentIDsByRecorder(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recorded students")
	}

	seen := make(map[string]struct{}, len(createdIDs)+len(recordedIDs))
	ids := make([]string, 0, len(createdIDs)+len(recordedIDs))
	for _, id := range append(createdIDs, recordedIDs...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	students := []models.Student{}
	if len(ids) > 0 {
		all, err := s.students.FindByIDs(ctx, ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster students")
		}
		// Deleted ids silently drop out here; archived students stay off
		// the daily roster but keep their ledger.
		for _, st := range all {
			if st.Active {
				students = append(students, st)
			}
		}
	}

	sortRoster(students)

	if err := s.cache.Set(ctx, key, students, s.ttl); err != nil {
		s.logger.Warn("failed to cache roster", zap.Error(err), zap.String("key", key))
	}

	return students, nil
}

func sortRoster(students []models.Student) {
	sort.SliceStable(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		if a.Sex != b.Sex {
			return a.Sex == models.SexMale
		}
		return strings.ToLower(a.FullName()) < strings.ToLower(b.FullName())
	})
}
